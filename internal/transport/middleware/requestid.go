package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/frahmantamala/receptionist-billing/pkg/logger"
)

const HeaderTraceID = "X-Trace-ID"

// RequestID puts a trace id on the request logger and echoes it back. The
// gateway's own X-Request-Id is logged next to it when present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		fields := []any{"trace_id", traceID}
		if gatewayReq := r.Header.Get("X-Request-Id"); gatewayReq != "" {
			fields = append(fields, "gateway_request_id", gatewayReq)
		}
		ctx := logger.With(r.Context(), fields...)

		w.Header().Set(HeaderTraceID, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
