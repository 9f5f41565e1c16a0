package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Result attribute values shared by several counters
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds all metric instruments for the authorization server
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// OAuth Flow Metrics
	AuthorizationRequests metric.Int64Counter
	ConsentDecisions      metric.Int64Counter
	CodesIssued           metric.Int64Counter
	CodeExchanges         metric.Int64Counter
	ClientRegistered      metric.Int64Counter
	TokenValidations      metric.Int64Counter

	// Security Metrics
	RateLimitExceeded    metric.Int64Counter
	PKCEValidationFailed metric.Int64Counter
	AuditEventsTotal     metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageSweepRemoved      metric.Int64Counter
	StorageCodesCount        metric.Int64ObservableGauge
	StorageTokensCount       metric.Int64ObservableGauge
}

type counterDef struct {
	dst         *metric.Int64Counter
	meter       metric.Meter
	name        string
	description string
	unit        string
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	counters := []counterDef{
		{&m.HTTPRequestsTotal, httpMeter, "oauth.http.requests.total", "Total number of HTTP requests", "{request}"},
		{&m.AuthorizationRequests, serverMeter, "oauth.authorization.requests", "Authorization requests by validation result", "{request}"},
		{&m.ConsentDecisions, serverMeter, "oauth.consent.decisions", "Consent decisions by action", "{decision}"},
		{&m.CodesIssued, serverMeter, "oauth.code.issued", "Authorization codes issued", "{code}"},
		{&m.CodeExchanges, serverMeter, "oauth.code.exchanged", "Authorization code exchanges by result", "{exchange}"},
		{&m.ClientRegistered, serverMeter, "oauth.client.registered", "Dynamic client registrations", "{client}"},
		{&m.TokenValidations, serverMeter, "oauth.token.validations", "Bearer token validations by result", "{validation}"},
		{&m.RateLimitExceeded, securityMeter, "oauth.rate_limit.exceeded", "Number of rate limit violations", "{violation}"},
		{&m.PKCEValidationFailed, securityMeter, "oauth.pkce.validation_failed", "PKCE verifier mismatches", "{failure}"},
		{&m.AuditEventsTotal, securityMeter, "oauth.audit.events", "Security audit events emitted", "{event}"},
		{&m.StorageOperationTotal, storageMeter, "storage.operation.total", "Storage operations by result", "{operation}"},
		{&m.StorageSweepRemoved, storageMeter, "storage.sweep.removed", "Expired records removed by the background sweep", "{record}"},
	}

	for _, c := range counters {
		counter, err := c.meter.Int64Counter(c.name,
			metric.WithDescription(c.description),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"oauth.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StorageCodesCount, err = storageMeter.Int64ObservableGauge(
		"storage.codes.count",
		metric.WithDescription("Authorization codes currently held"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.codes.count gauge: %w", err)
	}

	m.StorageTokensCount, err = storageMeter.Int64ObservableGauge(
		"storage.tokens.count",
		metric.WithDescription("Access tokens currently held"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.tokens.count gauge: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with its duration
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// RecordAuthorizationRequest records the outcome of validating an authorization request.
// errorCode is empty on success.
func (m *Metrics) RecordAuthorizationRequest(ctx context.Context, errorCode string) {
	result := ResultSuccess
	if errorCode != "" {
		result = ResultFailure
	}
	m.AuthorizationRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("error", errorCode),
	))
}

// RecordConsentDecision records an approve or deny decision
func (m *Metrics) RecordConsentDecision(ctx context.Context, action string) {
	m.ConsentDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
	))
}

// RecordCodeIssued records a newly minted authorization code
func (m *Metrics) RecordCodeIssued(ctx context.Context) {
	m.CodesIssued.Add(ctx, 1)
}

// RecordCodeExchange records a code redemption attempt. errorCode is empty on success.
func (m *Metrics) RecordCodeExchange(ctx context.Context, errorCode string) {
	result := ResultSuccess
	if errorCode != "" {
		result = ResultFailure
	}
	m.CodeExchanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("error", errorCode),
	))
}

// RecordClientRegistration records a client registration
func (m *Metrics) RecordClientRegistration(ctx context.Context) {
	m.ClientRegistered.Add(ctx, 1)
}

// RecordTokenValidation records a bearer token check
func (m *Metrics) RecordTokenValidation(ctx context.Context, valid bool) {
	result := ResultSuccess
	if !valid {
		result = ResultFailure
	}
	m.TokenValidations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// RecordPKCEValidationFailed records a PKCE verification failure
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context) {
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", "S256"),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordSweep records how many records a sweep removed from a store ("codes" or "tokens")
func (m *Metrics) RecordSweep(ctx context.Context, store string, removed int) {
	if removed == 0 {
		return
	}
	m.StorageSweepRemoved.Add(ctx, int64(removed), metric.WithAttributes(
		attribute.String("store", store),
	))
}
