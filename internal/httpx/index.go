package httpx

import "net/http"

// handleIndex serves the embedded upload form.
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if len(h.Index) == 0 {
		h.writeError(r.Context(), w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.Index)
}
