package reconciler

import (
	"sync"

	"uniportal/internal/fanout"
)

// EventSource is the client side of the real-time channel.
type EventSource interface {
	On(event string, handler func(fanout.Message)) (off func())
}

// Session owns the event subscriptions of one client connection, keyed by
// user id. Subscribing the same user twice is a no-op.
type Session struct {
	mu   sync.Mutex
	offs map[string][]func()
}

func NewSession() *Session {
	return &Session{offs: make(map[string][]func())}
}

// Subscribe wires every reconciler event from source into r. It reports
// whether a new subscription was made.
func (s *Session) Subscribe(userID string, source EventSource, r *Reconciler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.offs[userID]; ok {
		return false
	}
	offs := make([]func(), 0, len(Events))
	for _, event := range Events {
		offs = append(offs, source.On(event, func(msg fanout.Message) {
			r.Apply(msg)
		}))
	}
	s.offs[userID] = offs
	return true
}

func (s *Session) Unsubscribe(userID string) {
	s.mu.Lock()
	offs := s.offs[userID]
	delete(s.offs, userID)
	s.mu.Unlock()

	for _, off := range offs {
		off()
	}
}

func (s *Session) Subscribed(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.offs[userID]
	return ok
}

// Close detaches every subscription.
func (s *Session) Close() {
	s.mu.Lock()
	all := s.offs
	s.offs = make(map[string][]func())
	s.mu.Unlock()

	for _, offs := range all {
		for _, off := range offs {
			off()
		}
	}
}

// Dispatcher is an in-process EventSource. Transports decode frames and hand
// them to Dispatch.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]func(fanout.Message)
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]map[int]func(fanout.Message))}
}

func (d *Dispatcher) On(event string, handler func(fanout.Message)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	if d.handlers[event] == nil {
		d.handlers[event] = make(map[int]func(fanout.Message))
	}
	d.handlers[event][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.handlers[event], id)
		})
	}
}

// Dispatch calls the handlers registered for msg.Event and reports how many ran.
func (d *Dispatcher) Dispatch(msg fanout.Message) int {
	d.mu.RLock()
	handlers := make([]func(fanout.Message), 0, len(d.handlers[msg.Event]))
	for _, h := range d.handlers[msg.Event] {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
	return len(handlers)
}
