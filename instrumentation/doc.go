// Package instrumentation provides OpenTelemetry instrumentation for the authorization server.
//
// Metrics are exported through a dedicated Prometheus registry and traces optionally
// through the stdout exporter:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:         true,
//		ServiceName:     "agency-oauth",
//		MetricsExporter: instrumentation.MetricsExporterPrometheus,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// OAuth Flows:
//   - oauth.authorization.requests{result, error}
//   - oauth.consent.decisions{action}
//   - oauth.code.issued
//   - oauth.code.exchanged{result, error}
//   - oauth.client.registered
//   - oauth.token.validations{result}
//
// Security:
//   - oauth.rate_limit.exceeded{endpoint}
//   - oauth.pkce.validation_failed{method}
//   - oauth.audit.events{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.sweep.removed{store}
//   - storage.codes.count, storage.tokens.count (gauges)
//
// When Enabled is false every provider is a no-op and recording is free.
package instrumentation
