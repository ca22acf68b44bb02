// Package sse streams vault and template changes to connected clients as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/litlink/internal/index"
)

// Event types sent to clients.
const (
	TypeNoteCreated     = "note.created"
	TypeNoteIndexed     = "note.indexed"
	TypeNoteRemoved     = "note.removed"
	TypeTemplateUpdated = "template.updated"
	TypeVaultChanged    = "vault.changed"
)

// Event is one message broadcast to every subscriber. Data is one of the
// payload types below.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NotePayload identifies a vault note. Key is the composite item key and is
// only known for notes created through the API.
type NotePayload struct {
	Path string `json:"path"`
	Key  string `json:"key,omitempty"`
}

// TemplatePayload names the edited template kind, or "frontmatter" for the
// field mapping.
type TemplatePayload struct {
	Kind string `json:"kind"`
}

// VaultPayload is the empty body of vault.changed.
type VaultPayload struct{}

const (
	// retryMillis tells EventSource clients how long to wait before
	// reconnecting.
	retryMillis = 3000
	heartbeat   = 30 * time.Second
)

// Broker fans events out to SSE clients.
//
// One loop goroutine owns the client set and the throttle timestamp; the
// public methods talk to it over channels.
type Broker struct {
	vaultMin  time.Duration
	heartbeat time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	vaultCh       chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. vault.changed is sent at most once per
// throttle interval no matter how many note events arrive.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	b := &Broker{
		vaultMin:      throttle,
		heartbeat:     heartbeat,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		vaultCh:       make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastVault time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case event := <-b.vaultCh:
			broadcast(event)
			now := time.Now()
			if now.Sub(lastVault) >= b.vaultMin {
				lastVault = now
				broadcast(Event{Type: TypeVaultChanged, Data: VaultPayload{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteCreated announces a note written by the note service.
func (b *Broker) PublishNoteCreated(path, key string) {
	b.Publish(Event{Type: TypeNoteCreated, Data: NotePayload{Path: path, Key: key}})
}

// PublishTemplateUpdated announces an edit of kind.
func (b *Broker) PublishTemplateUpdated(kind string) {
	b.Publish(Event{Type: TypeTemplateUpdated, Data: TemplatePayload{Kind: kind}})
}

// PublishNoteChange reports a cache change for path. It has the shape of
// index.ChangeFunc; unknown kinds are ignored. A throttled vault.changed
// follows.
func (b *Broker) PublishNoteChange(kind, path string) {
	var typ string
	switch kind {
	case index.ChangeIndexed:
		typ = TypeNoteIndexed
	case index.ChangeRemoved:
		typ = TypeNoteRemoved
	default:
		return
	}
	if b.closed.Load() {
		return
	}
	select {
	case b.vaultCh <- Event{Type: typ, Data: NotePayload{Path: path}}:
	case <-b.stopped:
	}
}

// ServeHTTP is the stream endpoint (GET /api/events). It opens with a
// reconnect hint and writes a comment line whenever the stream is idle for
// the heartbeat interval.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	idle := time.NewTicker(b.heartbeat)
	defer idle.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
			idle.Reset(b.heartbeat)
		}
	}
}
