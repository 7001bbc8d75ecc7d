// Package sse streams sync notices and contact changes as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/cardsync/internal/reconcile"
	"github.com/starford/cardsync/internal/syncer"
)

// Event types emitted by the broker.
const (
	EventNotice        = "sync.notice"
	EventFinished      = "sync.finished"
	EventContactsDirty = "contacts.changed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type contactEventReq struct {
	action reconcile.Action
	uid    string
	path   string
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepalive sets how often idle streams receive a comment line.
// Zero disables keepalives.
func WithKeepalive(d time.Duration) Option {
	return func(b *Broker) {
		b.keepalive = d
	}
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the clients, the event sequence, the
// throttle timestamp and the latest notice. Public methods talk to it over
// channels.
type Broker struct {
	changedMin time.Duration
	keepalive  time.Duration

	subscribeCh    chan chan []byte
	unsubscribeCh  chan chan []byte
	publishCh      chan Event
	contactEventCh chan contactEventReq
	countReqCh     chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. contacts.changed is emitted at most
// once per changedThrottle.
func NewBroker(changedThrottle time.Duration, opts ...Option) *Broker {
	if changedThrottle <= 0 {
		changedThrottle = 2 * time.Second
	}

	b := &Broker{
		changedMin:     changedThrottle,
		keepalive:      15 * time.Second,
		subscribeCh:    make(chan chan []byte),
		unsubscribeCh:  make(chan chan []byte),
		publishCh:      make(chan Event, 256),
		contactEventCh: make(chan contactEventReq, 256),
		countReqCh:     make(chan chan int),
		stopCh:         make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq         uint64
		lastChanged time.Time
		lastNotice  []byte // replayed to new subscribers
	)

	broadcast := func(event Event) []byte {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return nil
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
		return raw
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
			if lastNotice != nil {
				ch <- lastNotice
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			raw := broadcast(event)
			if event.Type == EventNotice && raw != nil {
				lastNotice = raw
			}

		case req := <-b.contactEventCh:
			data := map[string]string{"uid": req.uid, "path": req.path}
			switch req.action {
			case reconcile.ActionCreated, reconcile.ActionUpdated, reconcile.ActionRenamed:
				broadcast(Event{Type: "contact." + string(req.action), Data: data})
			default:
				continue
			}

			now := time.Now()
			if now.Sub(lastChanged) >= b.changedMin {
				lastChanged = now
				broadcast(Event{Type: EventContactsDirty, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
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

// PublishOutcome publishes a contact change and a throttled
// contacts.changed event. Unchanged outcomes are dropped.
func (b *Broker) PublishOutcome(out reconcile.Outcome) {
	if b.closed.Load() {
		return
	}
	select {
	case b.contactEventCh <- contactEventReq{action: out.Action, uid: out.UID, path: out.Path}:
	case <-b.stopped:
	}
}

// PublishReport publishes every changed contact of a pass and a
// sync.finished summary without per-contact outcomes.
func (b *Broker) PublishReport(r *syncer.Report) {
	if r == nil {
		return
	}
	for _, out := range r.Outcomes {
		b.PublishOutcome(out)
	}
	summary := *r
	summary.Outcomes = nil
	b.Publish(Event{Type: EventFinished, Data: summary})
}

// Notify implements syncer.Notifier. The latest notice is replayed to
// clients that connect later.
func (b *Broker) Notify(n syncer.Notice) {
	b.Publish(Event{Type: EventNotice, Data: n})
}

var _ syncer.Notifier = (*Broker)(nil)

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.keepalive > 0 {
		ticker := time.NewTicker(b.keepalive)
		defer ticker.Stop()
		tick = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
