// Package observability provides OpenTelemetry tracing and metrics for flows
// and the HTTP surface that exposes them.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, &cfg)
//	defer tp.Shutdown(ctx)
//
//	oc := observability.NewOperationContext("orders", observability.SpanFlowQuery, "orders", metrics)
//	ctx, span := oc.StartSpanForOperation(ctx, observability.SpanFlowQuery)
//	defer oc.EndOperation(ctx, span, "success", n, nil)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &meterCfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("queryflow"))
//	metrics.RecordPublish(ctx, "orders")
//
// Health Checks:
//
//	health := observability.NewServiceHealth("my-service", "1.0.0")
//	health.AddComponent(observability.Health{Name: "orders", Status: observability.HealthStatusUp})
package observability
