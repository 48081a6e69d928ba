package httpapi

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/queryflow/logger"
	"github.com/kbukum/queryflow/observability"
)

// Observe records request metrics and wraps each request in an
// http.request span. A nil metrics only traces.
func Observe(metrics *observability.Metrics, service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := observability.StartSpan(c.Request.Context(), observability.SpanHTTPRequest)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observability.SetSpanAttribute(ctx, observability.AttrServiceName, service)
		observability.SetSpanAttribute(ctx, observability.AttrOperationName, c.Request.Method+" "+route)

		metrics.RecordRequestStart(ctx)
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		observability.SetSpanAttribute(ctx, observability.AttrStatus, status)
		observability.SetSpanAttribute(ctx, observability.AttrDurationMs, time.Since(start).Milliseconds())
		if status >= 500 {
			observability.SetSpanError(ctx, fmt.Errorf("%s %s: status %d", c.Request.Method, route, status))
		}
		metrics.RecordRequestEnd(ctx, service, c.Request.Method+" "+route, strconv.Itoa(status), time.Since(start))
	}
}

// RequestLogger logs every request with method, path, status and latency.
// Health paths are skipped. A nil log uses the global logger.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isHealthEndpoint(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path = path + "?" + q
		}

		fields := map[string]interface{}{
			"method":  c.Request.Method,
			"path":    path,
			"status":  status,
			"latency": latency.String(),
			"client":  c.ClientIP(),
		}
		if id := c.Writer.Header().Get(HeaderFlowID); id != "" {
			fields["flow_id"] = id
		}
		if latency > 500*time.Millisecond && !strings.HasSuffix(c.FullPath(), "/stream") {
			fields["slow"] = true
		}
		logByStatus(log, fields, status)
	}
}

func isHealthEndpoint(path string) bool {
	for _, hp := range []string{"/health", "/alive", "/ready", "/metrics"} {
		if path == hp || strings.HasSuffix(path, hp) {
			return true
		}
	}
	return false
}

// logByStatus logs request fields at a level chosen by status code.
func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	logErr := logger.Error
	logWarn := logger.Warn
	logDebug := logger.Debug
	if log != nil {
		logErr = log.Error
		logWarn = log.Warn
		logDebug = log.Debug
	}

	switch {
	case status >= 500:
		logErr("Request completed", fields)
	case status >= 400:
		logWarn("Request completed", fields)
	default:
		logDebug("Request completed", fields)
	}
}
