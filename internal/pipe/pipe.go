// Package pipe implements named one-shot rendezvous relays: a sender blocks
// until a receiver attaches to the same name and fully drains the stream, and
// a receiver blocks until a sender arrives. Nothing is buffered to disk; the
// bytes flow directly from the sender's request body to the receiver's
// response. Relays are created on first touch and removed once both sides
// have detached, so an abandoned name leaves no residue.
package pipe

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Hub is the registry of active relays, keyed by name. The zero value is not
// usable; construct via New. Safe for concurrent use.
type Hub struct {
	mu     sync.Mutex
	relays map[string]*relay
	log    *slog.Logger

	// OnRelayed, when set, is called once per fully drained handoff.
	OnRelayed func()
}

type relay struct {
	refs int
	ch   chan *handoff
}

// handoff carries the sender's stream to the receiver. done reports the
// drain outcome back to the blocked sender.
type handoff struct {
	r    io.Reader
	done chan error
}

// New returns an empty Hub.
func New(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{relays: make(map[string]*relay), log: log}
}

// acquire returns the relay for name, creating it on first touch.
func (h *Hub) acquire(name string) *relay {
	h.mu.Lock()
	defer h.mu.Unlock()
	rel, ok := h.relays[name]
	if !ok {
		rel = &relay{ch: make(chan *handoff)}
		h.relays[name] = rel
	}
	rel.refs++
	return rel
}

// release drops one reference and removes the relay once nobody waits on it.
func (h *Hub) release(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rel, ok := h.relays[name]
	if !ok {
		return
	}
	rel.refs--
	if rel.refs <= 0 {
		delete(h.relays, name)
	}
}

// Send offers r on the named relay and blocks until a receiver has fully
// drained it (or reports a failure), or until ctx is cancelled. A cancelled
// send releases any receiver still waiting for data by never completing the
// handoff.
func (h *Hub) Send(ctx context.Context, name string, r io.Reader) error {
	rel := h.acquire(name)
	defer h.release(name)
	ho := &handoff{r: r, done: make(chan error, 1)}
	select {
	case rel.ch <- ho:
	case <-ctx.Done():
		return ctx.Err()
	}
	h.log.Debug("pipe handoff", "name", name)
	select {
	case err := <-ho.done:
		if err == nil && h.OnRelayed != nil {
			h.OnRelayed()
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a sender offers a stream on the named relay, or until
// ctx is cancelled. The returned ReadCloser streams the sender's bytes; Close
// (or CloseWithError) must be called to unblock the sender.
func (h *Hub) Receive(ctx context.Context, name string) (*Stream, error) {
	rel := h.acquire(name)
	select {
	case ho := <-rel.ch:
		return &Stream{hub: h, name: name, ho: ho}, nil
	case <-ctx.Done():
		h.release(name)
		return nil, ctx.Err()
	}
}

// Active reports the number of currently registered relay names.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.relays)
}

// Stream is the receiver's view of a handoff.
type Stream struct {
	hub  *Hub
	name string
	ho   *handoff
	once sync.Once
}

// Read streams bytes from the sender.
func (s *Stream) Read(p []byte) (int, error) { return s.ho.r.Read(p) }

// Close signals the sender that the stream was fully drained.
func (s *Stream) Close() error {
	s.CloseWithError(nil)
	return nil
}

// CloseWithError reports the drain outcome to the sender; a non-nil err tells
// the sender its payload was not delivered intact.
func (s *Stream) CloseWithError(err error) {
	s.once.Do(func() {
		s.ho.done <- err
		s.hub.release(s.name)
	})
}
