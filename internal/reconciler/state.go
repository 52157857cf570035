package reconciler

import (
	"uniportal/internal/fanout"
	"uniportal/internal/microservices/http-api/models"
)

// DefaultCapacity bounds the feed when nothing else has sized it.
const DefaultCapacity = 20

// Feed is the connected user's own notifications, newest first.
type Feed struct {
	Items       []fanout.Payload
	Total       int
	UnreadCount int
	HasMore     bool
	// Capacity is set by the initial fetch; zero means "whatever the feed holds".
	Capacity int
}

// AdminTable is the cached page shown to operators. Stale means a refresh is
// needed because a new record may belong on the page.
type AdminTable struct {
	Rows  []fanout.Payload
	Total int
	Stale bool
}

// State holds the three caches of one session. Feed.UnreadCount and Badge
// are always equal after Reduce.
type State struct {
	UserID string
	// ProtectedSuperAdminID is the one operator identity whose unread count
	// covers every record in a sync snapshot, not only its own.
	ProtectedSuperAdminID string
	// SeesSystem is true for super-admins; everyone else never lists SYSTEM
	// records, so the feed and badge skip them too.
	SeesSystem bool

	Feed  Feed
	Table AdminTable
	Badge int
}

func (s State) countsEverything() bool {
	return s.ProtectedSuperAdminID != "" && s.UserID == s.ProtectedSuperAdminID
}

func (s State) visible(p fanout.Payload) bool {
	return s.SeesSystem || p.Kind != models.KindSystem
}

func (s State) clone() State {
	out := s
	out.Feed.Items = append([]fanout.Payload(nil), s.Feed.Items...)
	out.Table.Rows = append([]fanout.Payload(nil), s.Table.Rows...)
	return out
}

func (f Feed) capacity() int {
	switch {
	case f.Capacity > 0:
		return f.Capacity
	case len(f.Items) > 0:
		return len(f.Items)
	default:
		return DefaultCapacity
	}
}

func (f Feed) indexOf(id string) int {
	for i, item := range f.Items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
