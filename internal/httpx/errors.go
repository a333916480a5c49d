package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quickshare/quickshare/internal/app"
	"github.com/quickshare/quickshare/internal/domain"
)

// writeError writes a JSON error body with given status code.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
	if cid, ok := GetCorrelationID(ctx); ok {
		slog.Debug("wrote error response", "cid", cid, "status", code, "msg", msg)
	}
}

// mapServiceError maps domain/store/service errors to HTTP responses. A
// missing token and a spent token must stay distinguishable (404 vs 410).
func (h *Handler) mapServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	cid, _ := GetCorrelationID(ctx)
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrInvalidToken):
		slog.Warn("service error", "cid", cid, "code", "invalid_token")
		h.writeError(ctx, w, http.StatusBadRequest, "invalid token")
	case errors.Is(err, domain.ErrPolicyInvalid):
		slog.Warn("service error", "cid", cid, "code", "policy_invalid")
		h.writeError(ctx, w, http.StatusBadRequest, "invalid policy")
	case errors.Is(err, app.ErrPayloadTooLarge), errors.As(err, &maxBytes):
		slog.Warn("service error", "cid", cid, "code", "payload_too_large")
		h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "payload too large")
	case errors.Is(err, app.ErrNotFound):
		slog.Info("service error", "cid", cid, "code", "not_found")
		h.writeError(ctx, w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrGone):
		slog.Info("service error", "cid", cid, "code", "gone")
		h.writeError(ctx, w, http.StatusGone, "gone")
	case errors.Is(err, app.ErrConflict):
		slog.Warn("service error", "cid", cid, "code", "conflict")
		h.writeError(ctx, w, http.StatusConflict, "conflict")
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("service error", "cid", cid, "code", "timeout")
		h.writeError(ctx, w, http.StatusGatewayTimeout, "timeout")
	default:
		// Internal / unexpected: do not log raw error string to avoid leaking
		// tokens or storage paths.
		slog.Error("unhandled service error", "cid", cid, "code", "unhandled")
		h.writeError(ctx, w, http.StatusInternalServerError, "internal")
	}
}
