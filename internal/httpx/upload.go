package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/quickshare/quickshare/internal/domain"
)

// createResponse is the JSON body returned by POST /api/share.
type createResponse struct {
	Token       string     `json:"token"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	DownloadURL string     `json:"download_url"`
}

// handleCreateShare implements POST /api/share: the raw request body becomes
// the blob, with the policy carried in headers.
func (h *Handler) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clHeader := r.Header.Get("Content-Length")
	if clHeader == "" {
		h.writeError(ctx, w, http.StatusLengthRequired, "content length required")
		return
	}
	cl, err := strconv.ParseInt(clHeader, 10, 64)
	if err != nil || cl <= 0 {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid content length")
		return
	}
	if h.MaxBody > 0 && cl > h.MaxBody {
		h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	pol, err := parsePolicy(r.Header.Get("X-Share-TTL"), r.Header.Get("X-Share-Max-Downloads"))
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	filename := sanitizeFilename(r.Header.Get("X-Share-Filename"))

	body := http.MaxBytesReader(w, r.Body, cl)
	defer body.Close()
	token, expiresAt, svcErr := h.Service.Ingest(ctx, body, cl, filename, pol)
	if svcErr != nil {
		h.mapServiceError(ctx, w, svcErr)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createResponse{
		Token:       token.String(),
		ExpiresAt:   expiresAt,
		DownloadURL: shareURL(r, token.String()),
	})
}

// handleFormUpload implements POST /: a multipart form with the blob in the
// "file" part. Optional "ttl" and "max_downloads" fields must precede the
// file part since the form is consumed as a stream, never buffered. Responds
// with the share URL as plain text so it pastes straight out of curl.
func (h *Handler) handleFormUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.MaxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBody)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "multipart form required")
		return
	}
	var ttlStr, maxStr string
	for {
		part, perr := mr.NextPart()
		if perr == io.EOF {
			h.writeError(ctx, w, http.StatusBadRequest, "missing file field")
			return
		}
		if perr != nil {
			h.mapServiceError(ctx, w, perr)
			return
		}
		switch part.FormName() {
		case "ttl":
			ttlStr = readFormValue(part)
		case "max_downloads":
			maxStr = readFormValue(part)
		case "file":
			pol, polErr := parsePolicy(ttlStr, maxStr)
			if polErr != nil {
				h.writeError(ctx, w, http.StatusBadRequest, polErr.Error())
				return
			}
			token, _, svcErr := h.Service.Ingest(ctx, part, -1, sanitizeFilename(part.FileName()), pol)
			if svcErr != nil {
				h.mapServiceError(ctx, w, svcErr)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, shareURL(r, token.String())+"\n")
			return
		default:
			// Unknown parts are drained and ignored.
			_, _ = io.Copy(io.Discard, part)
		}
		_ = part.Close()
	}
}

// parsePolicy converts the optional TTL and download budget strings into a
// Policy. Empty strings leave the corresponding limit unset.
func parsePolicy(ttlStr, maxStr string) (domain.Policy, error) {
	var pol domain.Policy
	if ttlStr != "" {
		ttl, err := time.ParseDuration(ttlStr)
		if err != nil {
			return domain.Policy{}, errors.New("invalid ttl")
		}
		pol.TTL = ttl
	}
	if maxStr != "" {
		n, err := strconv.ParseInt(maxStr, 10, 64)
		if err != nil {
			return domain.Policy{}, errors.New("invalid max downloads")
		}
		pol.MaxDownloads = n
	}
	return pol, nil
}

// readFormValue reads a small form field, capped so a hostile field cannot
// balloon memory.
func readFormValue(part io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(part, 256))
	return strings.TrimSpace(string(b))
}

// sanitizeFilename strips any path components and control characters from a
// client-supplied filename.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
}

// shareURL builds the public download URL for a token, honoring proxy
// forwarding headers so the link works behind a TLS terminator.
func shareURL(r *http.Request, token string) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return scheme + "://" + host + "/share/" + token
}
