package dispatch

import (
	"log/slog"
	"sync"

	"github.com/example/courier-dispatch/internal/observability"
)

// Conn is the minimal write surface the registry needs from a viewer
// connection. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Session is one live viewer subscription. The mutex serializes writes
// because gorilla conns allow at most one concurrent writer.
type Session struct {
	conn Conn
	mu   sync.Mutex
}

func (s *Session) send(payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(payload)
}

// Registry maps rider ids to their live viewer sessions. It is the single
// authority for who is subscribed to what; all fan-out goes through
// Publish and Broadcast. Delivery is best-effort: a session whose write
// fails is closed and pruned, never retried.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]map[*Session]struct{}
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{subs: make(map[string]map[*Session]struct{}), logger: logger}
}

// Subscribe registers conn as a viewer of riderID's stream and returns the
// session handle used to unsubscribe later.
func (r *Registry) Subscribe(riderID string, conn Conn) *Session {
	s := &Session{conn: conn}
	r.mu.Lock()
	set, ok := r.subs[riderID]
	if !ok {
		set = make(map[*Session]struct{})
		r.subs[riderID] = set
	}
	set[s] = struct{}{}
	r.mu.Unlock()
	observability.WSSubscribers.Inc()
	return s
}

// Unsubscribe removes the session. Idempotent; the rider's entry is
// dropped entirely once its subscriber set empties.
func (r *Registry) Unsubscribe(riderID string, s *Session) {
	r.mu.Lock()
	set, ok := r.subs[riderID]
	if ok {
		if _, present := set[s]; present {
			delete(set, s)
			observability.WSSubscribers.Dec()
		}
		if len(set) == 0 {
			delete(r.subs, riderID)
		}
	}
	r.mu.Unlock()
}

// Publish delivers payload to every live viewer of riderID and reports how
// many sessions received it.
func (r *Registry) Publish(riderID string, payload interface{}) int {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.subs[riderID]))
	for s := range r.subs[riderID] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()
	return r.deliver(riderID, targets, payload)
}

// Broadcast delivers payload to every viewer across all riders.
func (r *Registry) Broadcast(payload interface{}) int {
	type target struct {
		riderID string
		s       *Session
	}
	r.mu.RLock()
	targets := make([]target, 0)
	for riderID, set := range r.subs {
		for s := range set {
			targets = append(targets, target{riderID, s})
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, t := range targets {
		delivered += r.deliver(t.riderID, []*Session{t.s}, payload)
	}
	return delivered
}

// Subscribers reports the live viewer count for one rider.
func (r *Registry) Subscribers(riderID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[riderID])
}

// deliver writes outside the registry lock; sessions that fail are closed
// and pruned on the spot.
func (r *Registry) deliver(riderID string, targets []*Session, payload interface{}) int {
	delivered := 0
	for _, s := range targets {
		if err := s.send(payload); err != nil {
			r.logger.Debug("pruning dead viewer session", "rider_id", riderID, "error", err)
			_ = s.conn.Close()
			r.Unsubscribe(riderID, s)
			continue
		}
		delivered++
	}
	return delivered
}
