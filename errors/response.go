package errors

import (
	stderrors "errors"
)

// ErrorResponse is the JSON body sent to HTTP clients for a failed request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the client-visible part of an AppError. Causes stay server-side.
type ErrorBody struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// ToResponse converts e to its JSON body.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: ErrorBody{
		Code:      e.Code,
		Message:   e.Message,
		Retryable: e.Retryable,
		Details:   e.Details,
	}}
}

// Response returns the HTTP status and body for err. Errors that carry no
// AppError are reported as INTERNAL_ERROR.
func Response(err error) (int, ErrorResponse) {
	appErr := Wrap(err)
	return appErr.HTTPStatus, appErr.ToResponse()
}

// IsAppError reports whether err or anything it wraps is an AppError.
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
