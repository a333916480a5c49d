package httpx

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quickshare/quickshare/internal/app"
	"github.com/quickshare/quickshare/internal/domain"
)

func TestCreateShareSuccess(t *testing.T) {
	exp := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	svc := &fakeService{ingestToken: domain.Token(testToken), ingestExp: &exp}
	h := &Handler{Service: svc, MaxBody: 1 << 20}
	router := h.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/share", strings.NewReader("hello world"))
	req.Header.Set("Content-Length", "11")
	req.Header.Set("X-Share-TTL", "1h")
	req.Header.Set("X-Share-Max-Downloads", "3")
	req.Header.Set("X-Share-Filename", "notes.txt")
	req.Host = "share.example.com"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", rr.Code, rr.Body.String())
	}
	var resp createResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token != testToken {
		t.Fatalf("token %q", resp.Token)
	}
	if resp.ExpiresAt == nil || !resp.ExpiresAt.Equal(exp) {
		t.Fatalf("expires_at %v", resp.ExpiresAt)
	}
	if want := "http://share.example.com/share/" + testToken; resp.DownloadURL != want {
		t.Fatalf("download_url %q want %q", resp.DownloadURL, want)
	}
	if string(svc.gotBody) != "hello world" || svc.gotSize != 11 {
		t.Fatalf("body not streamed: %q size %d", svc.gotBody, svc.gotSize)
	}
	if svc.gotFilename != "notes.txt" {
		t.Fatalf("filename %q", svc.gotFilename)
	}
	if svc.gotPolicy.TTL != time.Hour || svc.gotPolicy.MaxDownloads != 3 {
		t.Fatalf("policy %+v", svc.gotPolicy)
	}
}

func TestCreateShareForwardedHeaders(t *testing.T) {
	svc := &fakeService{ingestToken: domain.Token(testToken)}
	h := &Handler{Service: svc}
	req := httptest.NewRequest(http.MethodPost, "/api/share", strings.NewReader("x"))
	req.Header.Set("Content-Length", "1")
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "files.example.org")
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d", rr.Code)
	}
	var resp createResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if want := "https://files.example.org/share/" + testToken; resp.DownloadURL != want {
		t.Fatalf("download_url %q", resp.DownloadURL)
	}
	if resp.ExpiresAt != nil {
		t.Fatalf("expected no expiry, got %v", resp.ExpiresAt)
	}
}

func TestCreateShareEarlyFailures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
	}{
		{
			name:       "missing content length",
			setup:      func(r *http.Request) { r.Header.Del("Content-Length") },
			wantStatus: http.StatusLengthRequired,
		},
		{
			name:       "invalid content length",
			setup:      func(r *http.Request) { r.Header.Set("Content-Length", "abc") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "zero content length",
			setup:      func(r *http.Request) { r.Header.Set("Content-Length", "0") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "declared size over cap",
			setup:      func(r *http.Request) { r.Header.Set("Content-Length", "2048") },
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name: "invalid ttl header",
			setup: func(r *http.Request) {
				r.Header.Set("Content-Length", "1")
				r.Header.Set("X-Share-TTL", "soon")
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "invalid max downloads header",
			setup: func(r *http.Request) {
				r.Header.Set("Content-Length", "1")
				r.Header.Set("X-Share-Max-Downloads", "many")
			},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := &Handler{Service: &fakeService{ingestToken: domain.Token(testToken)}, MaxBody: 1024}
			req := httptest.NewRequest(http.MethodPost, "/api/share", strings.NewReader("x"))
			tc.setup(req)
			rr := httptest.NewRecorder()
			h.Router().ServeHTTP(rr, req)
			if rr.Code != tc.wantStatus {
				t.Fatalf("status %d want %d", rr.Code, tc.wantStatus)
			}
		})
	}
}

func TestCreateShareServiceError(t *testing.T) {
	h := &Handler{Service: &fakeService{ingestErr: app.ErrPayloadTooLarge}}
	req := httptest.NewRequest(http.MethodPost, "/api/share", strings.NewReader("x"))
	req.Header.Set("Content-Length", "1")
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d", rr.Code)
	}
}

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestFormUploadSuccess(t *testing.T) {
	svc := &fakeService{ingestToken: domain.Token(testToken)}
	h := &Handler{Service: svc}
	body, ct := multipartBody(t, map[string]string{"ttl": "30m", "max_downloads": "1"}, "report.pdf", "pdf bytes")
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", ct)
	req.Host = "share.example.com"
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rr.Code, rr.Body.String())
	}
	if want := "http://share.example.com/share/" + testToken + "\n"; rr.Body.String() != want {
		t.Fatalf("body %q want %q", rr.Body.String(), want)
	}
	if string(svc.gotBody) != "pdf bytes" {
		t.Fatalf("file not streamed: %q", svc.gotBody)
	}
	if svc.gotSize != -1 {
		t.Fatalf("multipart size should be undeclared, got %d", svc.gotSize)
	}
	if svc.gotFilename != "report.pdf" {
		t.Fatalf("filename %q", svc.gotFilename)
	}
	if svc.gotPolicy.TTL != 30*time.Minute || svc.gotPolicy.MaxDownloads != 1 {
		t.Fatalf("policy %+v", svc.gotPolicy)
	}
}

func TestFormUploadMissingFile(t *testing.T) {
	h := &Handler{Service: &fakeService{}}
	body, ct := multipartBody(t, map[string]string{"ttl": "30m"}, "", "")
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestFormUploadNotMultipart(t *testing.T) {
	h := &Handler{Service: &fakeService{}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("plain"))
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"notes.txt", "notes.txt"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\secret.doc`, "secret.doc"},
		{"dir/sub/file.bin", "file.bin"},
		{"bad\x00name\n.txt", "badname.txt"},
		{".", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
