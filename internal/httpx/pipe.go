package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/quickshare/quickshare/internal/pipe"
)

const maxPipeName = 128

// PipeHub adapts *pipe.Hub to the PipePort interface.
type PipeHub struct {
	Hub *pipe.Hub
}

func (p PipeHub) Send(ctx context.Context, name string, r io.Reader) error {
	return p.Hub.Send(ctx, name, r)
}

func (p PipeHub) Receive(ctx context.Context, name string) (PipeStream, error) {
	s, err := p.Hub.Receive(ctx, name)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// handlePipeSend implements POST /pipe/{name}. The request body is offered on
// the named relay and the response is withheld until a receiver has drained
// it, so the sender knows the handoff completed.
func (h *Handler) handlePipeSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	if len(name) > maxPipeName {
		h.writeError(ctx, w, http.StatusBadRequest, "pipe name too long")
		return
	}
	if err := h.Pipes.Send(ctx, name, r.Body); err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away; nobody is listening for a response.
			return
		}
		h.writeError(ctx, w, http.StatusInternalServerError, "pipe failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "piped\n")
}

// handlePipeReceive implements GET /pipe/{name}, blocking until a sender
// arrives and then streaming its body straight through.
func (h *Handler) handlePipeReceive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	if len(name) > maxPipeName {
		h.writeError(ctx, w, http.StatusBadRequest, "pipe name too long")
		return
	}
	stream, err := h.Pipes.Receive(ctx, name)
	if err != nil {
		// Only a context error can occur here; the client is gone.
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, stream); err != nil {
		stream.CloseWithError(err)
		return
	}
	_ = stream.Close()
}
