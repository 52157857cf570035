package reconciler

import (
	"log/slog"
	"sync"

	"uniportal/internal/fanout"
)

// Events is every event name the reconciler consumes.
var Events = []string{
	fanout.EventNew,
	fanout.EventUpdated,
	fanout.EventDeleted,
	fanout.EventDeletedMany,
	fanout.EventSync,
}

type Option func(*Reconciler)

func WithProtectedSuperAdmin(userID string) Option {
	return func(r *Reconciler) {
		r.state.ProtectedSuperAdminID = userID
	}
}

// AsSuperAdmin lets SYSTEM records into the feed and badge.
func AsSuperAdmin() Option {
	return func(r *Reconciler) {
		r.state.SeesSystem = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// OnChange is called after every applied event with the new state.
func OnChange(fn func(State, Outcome)) Option {
	return func(r *Reconciler) {
		r.onChange = fn
	}
}

// Reconciler applies events for one connected user in receipt order.
type Reconciler struct {
	mu       sync.Mutex
	state    State
	logger   *slog.Logger
	onChange func(State, Outcome)
}

func New(userID string, opts ...Option) *Reconciler {
	r := &Reconciler{
		state:  State{UserID: userID},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SeedFeed installs the result of the initial feed fetch.
func (r *Reconciler) SeedFeed(items []fanout.Payload, total, unread int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(items)
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	r.state.Feed = Feed{
		Items:       append([]fanout.Payload(nil), items...),
		Total:       total,
		UnreadCount: unread,
		HasMore:     total > len(items),
		Capacity:    capacity,
	}
	r.state.Badge = unread
}

// SeedTable installs a freshly fetched admin-table page.
func (r *Reconciler) SeedTable(rows []fanout.Payload, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Table = AdminTable{Rows: append([]fanout.Payload(nil), rows...), Total: total}
}

func (r *Reconciler) Apply(msg fanout.Message) Outcome {
	r.mu.Lock()
	next, out := Reduce(r.state, msg)
	r.state = next
	snapshot := r.state.clone()
	onChange := r.onChange
	r.mu.Unlock()

	switch {
	case out.Err != nil:
		r.logger.Warn("reconcile_malformed_event", "event", msg.Event, "error", out.Err)
	case len(out.Discarded) > 0:
		r.logger.Warn("sync_duplicate_discarded", "user_id", snapshot.UserID, "ids", out.Discarded)
	}
	if out.Ignored {
		r.logger.Debug("reconcile_ignored", "event", msg.Event, "reason", out.Reason)
	}

	if onChange != nil && out.Err == nil {
		onChange(snapshot, out)
	}
	return out
}

// State returns a copy safe to keep.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}
