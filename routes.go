package oauth

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/agencyflow/agency-oauth/instrumentation"
	"github.com/agencyflow/agency-oauth/security"
	"github.com/agencyflow/agency-oauth/server"
)

// RegisterRoutes mounts the discovery documents and the OAuth endpoints on mux:
//
//	GET      /.well-known/oauth-protected-resource[/...]
//	GET      /.well-known/oauth-authorization-server[/...]
//	GET,POST /oauth/authorize
//	POST     /oauth/token
//	POST     /oauth/register
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	prm := h.instrument("protected_resource_metadata", h.ServeProtectedResourceMetadata)
	mux.Handle(server.ProtectedResourceMetadataPath, prm)
	mux.Handle(server.ProtectedResourceMetadataPath+"/", prm)

	asm := h.instrument("authorization_server_metadata", h.ServeAuthorizationServerMetadata)
	mux.Handle(server.AuthorizationServerMetadataPath, asm)
	mux.Handle(server.AuthorizationServerMetadataPath+"/", asm)

	mux.Handle(server.AuthorizationEndpointPath, h.instrument("authorization", h.ServeAuthorization))
	mux.Handle(server.TokenEndpointPath, h.instrument("token", h.ServeToken))
	mux.Handle(server.RegistrationEndpointPath, h.instrument("register", h.ServeClientRegistration))
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// instrument wraps an endpoint with a span, request metrics and a debug log line
func (h *Handler) instrument(endpoint string, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ctx := r.Context()

		var span trace.Span
		if h.tracer != nil {
			ctx, span = h.tracer.Start(ctx, "oauth.http."+endpoint)
			defer span.End()
			if h.server.Instrumentation.ShouldLogClientIPs() {
				instrumentation.AddSecurityAttributes(span, h.clientIP(r))
			}
		}

		rec := &statusRecorder{ResponseWriter: w}
		fn(rec, r.WithContext(ctx))

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}

		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, status)
		if status >= http.StatusInternalServerError {
			instrumentation.SetSpanError(span, http.StatusText(status))
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		h.recordHTTPMetrics(r, endpoint, status, startTime)

		h.logger.Debug("HTTP request",
			"endpoint", endpoint,
			"method", r.Method,
			"status", status,
			"duration", time.Since(startTime),
			"request_id", security.GetRequestID(ctx))
	})
}

func (h *Handler) recordHTTPMetrics(r *http.Request, endpoint string, status int, startTime time.Time) {
	if h.server.Instrumentation == nil {
		return
	}

	duration := time.Since(startTime).Seconds() * 1000 // convert to milliseconds
	h.server.Instrumentation.Metrics().RecordHTTPRequest(r.Context(), r.Method, endpoint, status, duration)
}

// routeLabel names the matched route without leaking arbitrary request paths into metric labels
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}
