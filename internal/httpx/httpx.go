// Package httpx contains the HTTP delivery layer (net/http handlers) for the
// quickshare service. It maps HTTP requests to the application service while
// enforcing size limits, security headers, streaming semantics, and error
// translation. Handlers are split across files (upload.go, download.go,
// stat.go, pipe.go, health.go, errors.go).
package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/quickshare/quickshare/internal/app"
	"github.com/quickshare/quickshare/internal/domain"
)

// ServicePort abstracts the subset of app.Service used by the HTTP layer.
// It is satisfied by *app.Service in production and mocked in tests.
type ServicePort interface {
	Ingest(ctx context.Context, body io.Reader, declaredSize int64, filename string, pol domain.Policy) (domain.Token, *time.Time, error)
	Retrieve(ctx context.Context, token string) (app.ShareInfo, io.ReadCloser, error)
	Stat(ctx context.Context, token string) (app.ShareInfo, error)
}

// PipeStream is the receiver side of a rendezvous handoff. CloseWithError
// reports a failed drain back to the blocked sender.
type PipeStream interface {
	io.Reader
	Close() error
	CloseWithError(err error)
}

// PipePort abstracts the rendezvous relay hub.
type PipePort interface {
	Send(ctx context.Context, name string, r io.Reader) error
	Receive(ctx context.Context, name string) (PipeStream, error)
}

// Handler wires HTTP endpoints to the application service.
// It is safe for concurrent use. Zero-value is not valid; construct via New.
type Handler struct {
	Service   ServicePort
	Pipes     PipePort                    // nil disables /pipe routes
	MaxBody   int64                       // mirror service.MaxBytes (defense-in-depth)
	Readiness func(context.Context) error // optional readiness probe
	Metrics   http.Handler                // optional /metricsz handler
	Index     []byte                      // embedded upload form page
	NoUpload  bool                        // disables both upload routes
}

// New returns a configured Handler.
// svc: application service port implementation.
// maxBody: maximum allowed request body size (0 disables extra check).
// readiness: optional probe function for /readyz (nil => always ready).
func New(svc ServicePort, maxBody int64, readiness func(context.Context) error) *Handler {
	return &Handler{Service: svc, MaxBody: maxBody, Readiness: readiness}
}

// Router constructs and returns an http.Handler with all routes mounted and
// the correlation ID + security headers middleware applied.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleIndex)
	if !h.NoUpload {
		mux.HandleFunc("POST /{$}", h.handleFormUpload)
		mux.HandleFunc("POST /api/share", h.handleCreateShare)
	}
	mux.HandleFunc("GET /share/{token}", h.handleDownload)
	mux.HandleFunc("HEAD /share/{token}", h.handleStatHead)
	mux.HandleFunc("GET /api/share/{token}/stat", h.handleStat)
	if h.Pipes != nil {
		mux.HandleFunc("POST /pipe/{name}", h.handlePipeSend)
		mux.HandleFunc("GET /pipe/{name}", h.handlePipeReceive)
	}
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
	if h.Metrics != nil {
		mux.Handle("GET /metricsz", h.Metrics)
	}
	return CorrelationIDMiddleware(h.secureHeaders(mux))
}

// secureHeaders middleware adds standard security & cache control headers.
func (h *Handler) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		if ct := w.Header().Get("Content-Type"); ct == "" {
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Pragma", "no-cache")
		}
		w.Header().Set("Content-Security-Policy", "default-src 'none'; script-src 'self'; style-src 'self'; img-src 'self' data:; connect-src 'self'; font-src 'self'; frame-ancestors 'none'; base-uri 'none'; form-action 'self'")
		next.ServeHTTP(w, r)
	})
}
