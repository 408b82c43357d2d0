// Package instrumentation provides OpenTelemetry instrumentation for inboxrules.
//
// # Metrics
//
// Processing:
//   - emails_processed_total: Counter of evaluated emails by result (matched, unmatched)
//   - rule_actions_total: Counter of applied rule actions by action and status
//   - batch_duration_seconds: Histogram of processing batch durations
//   - processing_jobs_active: Gauge of running background jobs
//
// Google API:
//   - google_api_operations_total: Counter of Gmail API operations by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Gmail API operation durations
//
// HTTP:
//   - http_requests_total: Counter of API requests by method, route template and status
//   - http_request_duration_seconds: Histogram of API request durations
//
// # Tracing
//
// Spans are created for each processing batch (inboxrules.process) and for
// every Gmail API call (google.gmail.<operation>).
//
// # Audit
//
// AuditLogger writes one line per mailbox mutation. Addresses are reduced to
// domains unless AUDIT_LOGGING_INCLUDE_PII is set.
//
// # Configuration
//
// Instrumentation is configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: inboxrules)
//   - METRICS_EXPORT_INTERVAL: Push interval of the otlp and stdout exporters (default: 10s)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	metrics := provider.Metrics()
//	metrics.RecordEmailProcessed(ctx, instrumentation.ResultMatched)
//	metrics.RecordRuleAction(ctx, "tag", "Bills", instrumentation.StatusSuccess)
package instrumentation
