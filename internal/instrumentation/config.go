package instrumentation

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"

	// Email outcome values for emails_processed_total
	ResultMatched   = "matched"
	ResultUnmatched = "unmatched"

	// Google service names
	ServiceGmail = "gmail"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// DefaultMetricInterval is the push interval of periodic metric exporters.
	DefaultMetricInterval = 10 * time.Second
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName defaults to inboxrules.
	ServiceName    string
	ServiceVersion string

	// InstanceID identifies this process. Falls back to the pod name, then
	// the hostname.
	InstanceID string

	// Namespace is the Kubernetes namespace, if any.
	Namespace string

	// Enabled set to false (INSTRUMENTATION_ENABLED=false) turns metrics and
	// tracing into no-ops. Audit logging is unaffected.
	Enabled bool

	Metrics MetricsConfig
	Tracing TracingConfig
	OTLP    OTLPConfig
	Audit   AuditLoggingConfig
}

// MetricsConfig selects how rule processing metrics are exported.
type MetricsConfig struct {
	// Exporter is prometheus (default), otlp or stdout.
	Exporter string

	// Interval applies to the push exporters (otlp, stdout).
	Interval time.Duration

	// DetailedLabels adds the user-defined label name to rule action
	// metrics. Label names are free text; keep this off in production.
	DetailedLabels bool
}

// TracingConfig selects how processing spans are exported.
type TracingConfig struct {
	// Exporter is none (default), otlp or stdout.
	Exporter string

	// SamplingRate is the parent-based ratio of sampled batches, 0.0 to 1.0.
	SamplingRate float64
}

// OTLPConfig is shared by the OTLP metric and trace exporters.
type OTLPConfig struct {
	// Endpoint is host:port without a scheme, e.g. "localhost:4318".
	Endpoint string

	// Insecure disables TLS. Spans carry account names and rule ids, so only
	// use this against a local collector.
	Insecure bool
}

// AuditLoggingConfig holds configuration for the mailbox mutation audit trail.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	Enabled bool

	// IncludePII controls whether full user addresses and senders are logged.
	// When false (default), only anonymized identifiers and sender domains are used.
	IncludePII bool
}

// DefaultConfig returns the configuration described by the process environment.
func DefaultConfig() Config {
	return ConfigFromEnv(os.Getenv)
}

// ConfigFromEnv builds a Config from the OTEL_* and inboxrules instrumentation
// variables looked up with getenv. Unparseable values fall back to defaults.
func ConfigFromEnv(getenv func(string) string) Config {
	env := envLookup(getenv)

	return Config{
		ServiceName:    env.str("OTEL_SERVICE_NAME", "inboxrules"),
		ServiceVersion: "unknown",
		InstanceID:     env.str("OTEL_SERVICE_INSTANCE_ID", env.str("K8S_POD_NAME", env.str("HOSTNAME", ""))),
		Namespace:      env.str("K8S_NAMESPACE", env.str("POD_NAMESPACE", "")),
		Enabled:        env.boolean("INSTRUMENTATION_ENABLED", true),
		Metrics: MetricsConfig{
			Exporter:       env.str("METRICS_EXPORTER", ExporterPrometheus),
			Interval:       env.duration("METRICS_EXPORT_INTERVAL", DefaultMetricInterval),
			DetailedLabels: env.boolean("METRICS_DETAILED_LABELS", false),
		},
		Tracing: TracingConfig{
			Exporter:     env.str("TRACING_EXPORTER", ExporterNone),
			SamplingRate: env.float("OTEL_TRACES_SAMPLER_ARG", 0.1),
		},
		OTLP: OTLPConfig{
			Endpoint: env.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure: env.boolean("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
		Audit: AuditLoggingConfig{
			Enabled:    env.boolean("AUDIT_LOGGING_ENABLED", true),
			IncludePII: env.boolean("AUDIT_LOGGING_INCLUDE_PII", false),
		},
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %g", c.Tracing.SamplingRate))
	}

	switch c.Metrics.Exporter {
	case "", ExporterPrometheus, ExporterStdout:
	case ExporterOTLP:
		if c.OTLP.Endpoint == "" {
			errs = append(errs, errors.New("OTLP endpoint is required when using OTLP metrics exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.Metrics.Exporter))
	}

	switch c.Tracing.Exporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.OTLP.Endpoint == "" {
			errs = append(errs, errors.New("OTLP endpoint is required when using OTLP tracing exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.Tracing.Exporter))
	}

	if c.Metrics.Interval < 0 {
		errs = append(errs, errors.New("metrics export interval must not be negative"))
	}

	return errors.Join(errs...)
}

type envLookup func(string) string

func (e envLookup) str(key, def string) string {
	if v := e(key); v != "" {
		return v
	}
	return def
}

func (e envLookup) boolean(key string, def bool) bool {
	if v, err := strconv.ParseBool(e(key)); err == nil {
		return v
	}
	return def
}

func (e envLookup) float(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(e(key), 64); err == nil {
		return v
	}
	return def
}

func (e envLookup) duration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(e(key)); err == nil {
		return v
	}
	return def
}
