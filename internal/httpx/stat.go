package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

// statResponse is the JSON body for GET /api/share/{token}/stat. Nil Remaining
// means the download budget is unlimited.
type statResponse struct {
	Token     string     `json:"token"`
	Filename  string     `json:"filename,omitempty"`
	Size      int64      `json:"size"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Remaining *int64     `json:"remaining,omitempty"`
}

// handleStat implements GET /api/share/{token}/stat without consuming a
// download slot.
func (h *Handler) handleStat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info, err := h.Service.Stat(ctx, r.PathValue("token"))
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(statResponse{
		Token:     info.Token,
		Filename:  info.Filename,
		Size:      info.Size,
		CreatedAt: info.CreatedAt,
		ExpiresAt: info.ExpiresAt,
		Remaining: info.Remaining,
	})
}
