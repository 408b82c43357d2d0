// Package server provides the HTTP surface of inboxrules.
//
// # Key Components
//
// API exposes rule management, inbox preview, background processing jobs and
// dashboard statistics under /api, routed with gorilla/mux. The acting user
// is identified by the X-User-ID header; authentication is expected to
// happen in front of the service.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed. Readiness
// includes dependency checks such as a database ping.
//
// MetricsServer exposes Prometheus metrics on a dedicated port, separate from
// API traffic. Every API request is counted by route template, never by raw
// path, to keep label cardinality bounded.
package server
