package logstream

import (
	"log/slog"
	"sync"
)

// Transport is the minimal send/close surface a session's live connection
// must provide. The registry never blocks on a slow Send past what the
// transport itself enforces (write deadlines are the transport's concern —
// see gateway's websocket.Conn wrapper).
type Transport interface {
	Send(v any) error
	Close() error
}

// session is the registry's private bookkeeping for one live connection.
// Its subscriptions map is mutated only while holding Registry.mu — unlike
// the teacher's per-connection single-goroutine-owned map, this registry's
// guard covers every session's state uniformly.
type session struct {
	id            string
	transport     Transport
	subscriptions map[string]*Subscription
}

// Registry is the in-process table of live connections and their
// subscriptions. All mutations and the snapshot phase of fanout are
// serialized under mu; the actual per-session send happens outside the
// guard on a snapshot taken under it, so a slow or stuck transport cannot
// block registration or other fanouts.
//
// Grounded on the teacher's pkg/events/manager.go ConnectionManager
// (register/unregister/broadcast shape) and pkg/session/manager.go's
// map+RWMutex session table.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// EncodeLogMessage renders the server→client "log" WebSocket message for
// one matched (subscription, event) pair.
func EncodeLogMessage(subscriptionID string, event LogEvent) any {
	return map[string]any{
		"type":            "log",
		"subscription_id": subscriptionID,
		"data":            event,
	}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
	}
}

// Register adds a session. Must be called after transport accept.
func (r *Registry) Register(sessionID string, transport Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = &session{
		id:            sessionID,
		transport:     transport,
		subscriptions: make(map[string]*Subscription),
	}
}

// Deregister removes a session and all its subscriptions. Idempotent.
func (r *Registry) Deregister(sessionID string) {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if ok {
		_ = sess.transport.Close()
	}
}

// Subscribe inserts or replaces a subscription on a session. No-op if the
// session is gone.
func (r *Registry) Subscribe(sessionID, subscriptionID string, filters Filters) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	sess.subscriptions[subscriptionID] = &Subscription{
		ID:      subscriptionID,
		Filters: filters,
	}
}

// Unsubscribe removes a subscription. Idempotent.
func (r *Registry) Unsubscribe(sessionID, subscriptionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(sess.subscriptions, subscriptionID)
}

// SetPaused flips the paused flag on a subscription. No-op if either the
// session or the subscription is gone.
func (r *Registry) SetPaused(sessionID, subscriptionID string, paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	sub, ok := sess.subscriptions[subscriptionID]
	if !ok {
		return
	}
	sub.Paused = paused
}

// Count returns the number of registered sessions. Used by health reporting.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// delivery is one session and its matched subscriptions queued for send,
// captured under the guard for sending after it is released.
type delivery struct {
	sess *session
	subs []*Subscription
}

// Fanout delivers event to every non-paused subscription whose filter
// matches, on every session. A send failure on a session's transport
// deregisters that session and aborts further sends to it within this
// fanout; other sessions are unaffected. The per-session send happens
// outside Registry.mu — see the type doc.
func (r *Registry) Fanout(event LogEvent, encode func(subscriptionID string, event LogEvent) any) {
	r.mu.Lock()
	snapshot := make([]delivery, 0, len(r.sessions))
	for _, sess := range r.sessions {
		var matched []*Subscription
		for _, sub := range sess.subscriptions {
			if sub.Paused {
				continue
			}
			if Matches(event, sub.Filters) {
				matched = append(matched, sub)
			}
		}
		if len(matched) > 0 {
			snapshot = append(snapshot, delivery{sess: sess, subs: matched})
		}
	}
	r.mu.Unlock()

	for _, d := range snapshot {
		for _, sub := range d.subs {
			if err := d.sess.transport.Send(encode(sub.ID, event)); err != nil {
				slog.Warn("log stream send failed, deregistering session",
					"session_id", d.sess.id, "subscription_id", sub.ID, "error", err)
				r.Deregister(d.sess.id)
				break
			}
		}
	}
}
