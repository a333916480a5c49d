package httpx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quickshare/quickshare/internal/app"
	"github.com/quickshare/quickshare/internal/domain"
)

const testToken = "0123456789abcdef0123456789abcdef"

// fakeService is a configurable ServicePort for handler tests. Ingest drains
// the body so streaming behavior is observable.
type fakeService struct {
	ingestToken domain.Token
	ingestExp   *time.Time
	ingestErr   error
	gotSize     int64
	gotFilename string
	gotPolicy   domain.Policy
	gotBody     []byte

	info        app.ShareInfo
	blob        string
	retrieveErr error
	statErr     error
}

func (f *fakeService) Ingest(_ context.Context, body io.Reader, declaredSize int64, filename string, pol domain.Policy) (domain.Token, *time.Time, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", nil, err
	}
	f.gotBody = b
	f.gotSize = declaredSize
	f.gotFilename = filename
	f.gotPolicy = pol
	if f.ingestErr != nil {
		return "", nil, f.ingestErr
	}
	return f.ingestToken, f.ingestExp, nil
}

func (f *fakeService) Retrieve(context.Context, string) (app.ShareInfo, io.ReadCloser, error) {
	if f.retrieveErr != nil {
		return app.ShareInfo{}, nil, f.retrieveErr
	}
	return f.info, io.NopCloser(strings.NewReader(f.blob)), nil
}

func (f *fakeService) Stat(context.Context, string) (app.ShareInfo, error) {
	if f.statErr != nil {
		return app.ShareInfo{}, f.statErr
	}
	return f.info, nil
}

func TestRouterSecurityHeaders(t *testing.T) {
	h := &Handler{Service: &fakeService{}}
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("missing CSP header")
	}
	if rr.Header().Get(CorrelationIDHeader) == "" {
		t.Fatalf("missing correlation id header")
	}
}

func TestRouterNoUploadDisablesRoutes(t *testing.T) {
	h := &Handler{Service: &fakeService{}, NoUpload: true}
	router := h.Router()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/share", nil))
	if rr.Code == http.StatusCreated {
		t.Fatalf("upload route should be unavailable, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health should still serve, got %d", rr.Code)
	}
}

func TestRouterNoPipesWithoutHub(t *testing.T) {
	h := &Handler{Service: &fakeService{}}
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pipe/demo", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unmounted pipe route, got %d", rr.Code)
	}
}

func TestRouterMetricsMount(t *testing.T) {
	h := &Handler{
		Service: &fakeService{},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	}
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metricsz", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("metrics handler not mounted, got %d", rr.Code)
	}
}

func TestIndexServed(t *testing.T) {
	h := &Handler{Service: &fakeService{}, Index: []byte("<html>form</html>")}
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if rr.Body.String() != "<html>form</html>" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "text/html; charset=utf-8" {
		t.Fatalf("content type %q", rr.Header().Get("Content-Type"))
	}
}

func TestIndexMissingPage(t *testing.T) {
	h := &Handler{Service: &fakeService{}}
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status %d", rr.Code)
	}
}
