package httpx

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/quickshare/quickshare/internal/app"
)

// handleDownload implements GET /share/{token}. The download slot is spent
// before the first byte goes out; an aborted transfer is not refunded.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info, rc, err := h.Service.Retrieve(ctx, r.PathValue("token"))
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	defer rc.Close()
	setBlobHeaders(w, info)
	w.WriteHeader(http.StatusOK)
	_, _ = io.CopyN(w, rc, info.Size)
}

// handleStatHead implements HEAD /share/{token}: the download headers
// without the body, and without consuming a slot.
func (h *Handler) handleStatHead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info, err := h.Service.Stat(ctx, r.PathValue("token"))
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	setBlobHeaders(w, info)
	w.WriteHeader(http.StatusOK)
}

func setBlobHeaders(w http.ResponseWriter, info app.ShareInfo) {
	name := info.Filename
	if name == "" {
		name = info.Token
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
}
