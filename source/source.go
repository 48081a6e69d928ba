package source

import (
	"context"

	"github.com/kbukum/queryflow/validation"
)

// Query describes what a flow reads from a Querier.
type Query struct {
	// Target names the observed collection: a table, a key prefix, a file path.
	Target string `json:"target"`
	// Projection lists the columns to return; empty means all columns.
	Projection []string `json:"projection,omitempty"`
	// Selection is a filter with one "?" placeholder per SelectionArgs entry.
	Selection string `json:"selection,omitempty"`
	// SelectionArgs are bound to the placeholders of Selection in order.
	SelectionArgs []any `json:"selection_args,omitempty"`
	// SortOrder is a comma separated list of "column [ASC|DESC]" terms.
	SortOrder string `json:"sort_order,omitempty"`
}

// Validate checks that the query names a target and is well formed.
func (q Query) Validate() error {
	v := validation.New().
		Required("target", q.Target).
		SortOrder("sort_order", q.SortOrder).
		Placeholders("selection", q.Selection, len(q.SelectionArgs))
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// Cursor reads query results one row at a time. *sql.Rows satisfies it.
type Cursor interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// Querier runs a query and returns a cursor over its rows. A nil cursor
// with a nil error means the query produced no rows.
type Querier interface {
	Query(ctx context.Context, q Query) (Cursor, error)
}

// QuerierFunc adapts a function to the Querier interface.
type QuerierFunc func(ctx context.Context, q Query) (Cursor, error)

// Query calls f(ctx, q).
func (f QuerierFunc) Query(ctx context.Context, q Query) (Cursor, error) {
	return f(ctx, q)
}

// Subscription is an active change-notification registration.
type Subscription interface {
	// Cancel stops notifications. It is safe to call more than once.
	Cancel()
}

// Notifier delivers change notifications for targets. The listener may be
// called from any goroutine and must not block.
type Notifier interface {
	Subscribe(target string, notifyForDescendants bool, listener func()) (Subscription, error)
}

// Source is a data source that can be both queried and observed.
type Source interface {
	Querier
	Notifier
}

type composite struct {
	Querier
	Notifier
}

// Compose builds a Source from a Querier and a separate Notifier, such as an
// S3 listing paired with a Kafka change feed.
func Compose(q Querier, n Notifier) Source {
	return composite{Querier: q, Notifier: n}
}
