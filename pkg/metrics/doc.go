// Package metrics exposes gqlgate's Prometheus metrics.
//
// A Metrics value owns its own registry. It instruments three places:
//   - the HTTP handler, through Middleware
//   - every backend, through WrapFetcher passed to gateway.OpenBackends
//   - executed GraphQL responses, through ObserveResponse
//
// Handler serves the registry in the Prometheus text or OpenMetrics format.
//
// # Metric names
//
//	gqlgate_http_requests_total{code,method}
//	gqlgate_http_request_duration_seconds{method}
//	gqlgate_http_requests_in_flight
//	gqlgate_graphql_responses_total{outcome}
//	gqlgate_graphql_errors_total{code}
//	gqlgate_backend_fetches_total{backend,type,outcome}
//	gqlgate_backend_fetch_duration_seconds{backend}
//	gqlgate_backend_rows_total{backend}
//	gqlgate_config_types
//	gqlgate_config_info{version}
package metrics
