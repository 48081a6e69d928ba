package flow

import (
	"context"
	"fmt"

	"github.com/kbukum/queryflow/errors"
	"github.com/kbukum/queryflow/logger"
	"github.com/kbukum/queryflow/observability"
	"github.com/kbukum/queryflow/resilience"
	"github.com/kbukum/queryflow/source"
)

// Transform turns a cursor into items. It must consume the cursor but not
// close it.
type Transform[T any] func(source.Cursor) ([]T, error)

// executor runs the flow query and converts every outcome into a Result.
type executor[T any] struct {
	flow      string
	querier   source.Querier
	query     source.Query
	transform Transform[T]
	bulkhead  *resilience.Bulkhead
	metrics   *observability.Metrics
	log       *logger.Logger
}

// execute never returns an error; failures are encoded as Failure.
func (e *executor[T]) execute(ctx context.Context) Result[T] {
	oc := observability.NewOperationContext(e.flow, "query", e.query.Target, e.metrics)
	ctx, span := oc.StartSpanForOperation(ctx, observability.SpanFlowQuery)

	res := e.admit(ctx)

	oc.EndOperation(ctx, span, res.Status(), len(res.items), res.err)
	if res.IsFailure() {
		e.log.Warn("query failed", logger.MergeWithError(logger.Fields(
			logger.FieldTarget, e.query.Target,
			logger.FieldDuration, oc.Duration().Milliseconds(),
		), res.err))
	}
	return res
}

func (e *executor[T]) admit(ctx context.Context) Result[T] {
	if e.bulkhead == nil {
		return e.read(ctx)
	}
	var (
		res      Result[T]
		admitted bool
	)
	err := e.bulkhead.Execute(ctx, func() error {
		admitted = true
		res = e.read(ctx)
		return nil
	})
	if !admitted {
		if err == nil {
			err = resilience.ErrBulkheadFull
		}
		return Failure[T](err)
	}
	return res
}

func (e *executor[T]) read(ctx context.Context) (res Result[T]) {
	cursor, err := e.querier.Query(ctx, e.query)
	if err != nil {
		return Failure[T](err)
	}
	if cursor == nil {
		return Success[T](nil)
	}
	defer func() {
		if err := cursor.Close(); err != nil {
			e.log.Warn("cursor close failed", logger.MergeWithError(logger.Fields(logger.FieldTarget, e.query.Target), err))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			res = Failure[T](errors.Internal(fmt.Errorf("transform panicked: %v", r)))
		}
	}()

	items, err := e.transform(cursor)
	if err != nil {
		return Failure[T](err)
	}
	if err := cursor.Err(); err != nil {
		return Failure[T](err)
	}
	return Success(items)
}
