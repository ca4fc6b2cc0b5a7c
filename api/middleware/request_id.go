package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/freshcart-backend/pkg/logger"
	"github.com/angelmondragon/freshcart-backend/pkg/requestid"
)

const (
	requestIDHeader = "X-Request-Id"
	// cloudTraceHeader is set by Google load balancers as TRACE_ID/SPAN_ID;o=1.
	cloudTraceHeader = "X-Cloud-Trace-Context"
)

// Inbound ids are echoed into logs and headers, so only short opaque tokens
// are accepted; anything else is replaced.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{8,128}$`)

func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := inboundRequestID(r.Header)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := requestid.With(r.Context(), reqID)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// inboundRequestID prefers the caller's request id and falls back to the
// load balancer trace id, so API logs join the platform's request logs.
func inboundRequestID(h http.Header) string {
	if id := h.Get(requestIDHeader); requestIDPattern.MatchString(id) {
		return id
	}
	trace, _, _ := strings.Cut(h.Get(cloudTraceHeader), "/")
	if requestIDPattern.MatchString(trace) {
		return trace
	}
	return ""
}
