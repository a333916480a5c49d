package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quickshare/quickshare/internal/app"
	"github.com/quickshare/quickshare/internal/domain"
)

func TestStatSuccess(t *testing.T) {
	svc := &fakeService{info: shareInfoFixture()}
	h := &Handler{Service: svc}
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/share/"+testToken+"/stat", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var resp statResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token != testToken || resp.Filename != "notes.txt" || resp.Size != 11 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Remaining == nil || *resp.Remaining != 2 {
		t.Fatalf("remaining %v", resp.Remaining)
	}
	if resp.ExpiresAt != nil {
		t.Fatalf("expires_at should be omitted, got %v", resp.ExpiresAt)
	}
}

func TestStatUnlimitedOmitsRemaining(t *testing.T) {
	info := shareInfoFixture()
	info.Remaining = nil
	h := &Handler{Service: &fakeService{info: info}}
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/share/"+testToken+"/stat", nil))

	var raw map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, present := raw["remaining"]; present {
		t.Fatalf("remaining should be omitted for unlimited shares")
	}
}

func TestStatErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid token", domain.ErrInvalidToken, http.StatusBadRequest},
		{"not found", app.ErrNotFound, http.StatusNotFound},
		{"gone", app.ErrGone, http.StatusGone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := &Handler{Service: &fakeService{statErr: tc.err}}
			rr := httptest.NewRecorder()
			h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/share/"+testToken+"/stat", nil))
			if rr.Code != tc.wantStatus {
				t.Fatalf("status %d want %d", rr.Code, tc.wantStatus)
			}
		})
	}
}
