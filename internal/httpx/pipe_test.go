package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quickshare/quickshare/internal/pipe"
)

func pipeHandler() *Handler {
	return &Handler{Service: &fakeService{}, Pipes: PipeHub{Hub: pipe.New(nil)}}
}

func TestPipeRoundTrip(t *testing.T) {
	h := pipeHandler()
	router := h.Router()

	sendDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/pipe/demo", strings.NewReader("payload")))
		sendDone <- rr
	}()

	recvRR := httptest.NewRecorder()
	router.ServeHTTP(recvRR, httptest.NewRequest(http.MethodGet, "/pipe/demo", nil))
	if recvRR.Code != http.StatusOK {
		t.Fatalf("receive status %d", recvRR.Code)
	}
	if recvRR.Body.String() != "payload" {
		t.Fatalf("receive body %q", recvRR.Body.String())
	}

	select {
	case sendRR := <-sendDone:
		if sendRR.Code != http.StatusOK {
			t.Fatalf("send status %d", sendRR.Code)
		}
		if sendRR.Body.String() != "piped\n" {
			t.Fatalf("send body %q", sendRR.Body.String())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sender did not unblock after drain")
	}
}

func TestPipeNameTooLong(t *testing.T) {
	h := pipeHandler()
	router := h.Router()
	long := strings.Repeat("n", maxPipeName+1)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pipe/"+long, nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("receive status %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/pipe/"+long, strings.NewReader("x")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("send status %d", rr.Code)
	}
}

func TestPipeIndependentNames(t *testing.T) {
	h := pipeHandler()
	router := h.Router()

	for _, name := range []string{"alpha", "beta"} {
		name := name
		go func() {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/pipe/"+name, strings.NewReader("for "+name)))
		}()
	}

	for _, name := range []string{"beta", "alpha"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pipe/"+name, nil))
		if rr.Body.String() != "for "+name {
			t.Fatalf("pipe %q delivered %q", name, rr.Body.String())
		}
	}
}
