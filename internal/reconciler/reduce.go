package reconciler

import (
	"encoding/json"
	"fmt"
	"slices"

	"uniportal/internal/fanout"
)

// Outcome describes what Reduce did with one event.
type Outcome struct {
	Event string
	// Ignored is set when the feed and badge were left alone.
	Ignored bool
	Reason  string
	// UnreadDelta is the change applied to the badge.
	UnreadDelta int
	// Discarded lists duplicate ids dropped from a sync snapshot.
	Discarded []string
	Err       error
}

// Reduce applies one event to a copy of state. It has no side effects.
func Reduce(state State, msg fanout.Message) (State, Outcome) {
	next := state.clone()
	out := Outcome{Event: msg.Event}

	switch msg.Event {
	case fanout.EventNew, fanout.EventUpdated:
		var p fanout.Payload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return state, malformed(out, err)
		}
		reduceUpsert(&next, msg.Event, p, &out)

	case fanout.EventSync:
		var p fanout.SyncPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return state, malformed(out, err)
		}
		reduceSync(&next, p, &out)

	case fanout.EventDeleted:
		var p fanout.DeletedPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return state, malformed(out, err)
		}
		reduceDelete(&next, []string{p.ID}, &out)

	case fanout.EventDeletedMany:
		var p fanout.DeletedManyPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return state, malformed(out, err)
		}
		reduceDelete(&next, p.IDs, &out)

	default:
		out.Ignored = true
		out.Reason = "unknown event"
		return state, out
	}

	return next, out
}

func malformed(out Outcome, err error) Outcome {
	out.Ignored = true
	out.Reason = "malformed payload"
	out.Err = fmt.Errorf("decode %s: %w", out.Event, err)
	return out
}

func reduceUpsert(s *State, event string, p fanout.Payload, out *Outcome) {
	if !s.visible(p) {
		out.Ignored = true
		out.Reason = "hidden from this viewer"
		return
	}

	if i := indexOfRow(s.Table.Rows, p.ID); i >= 0 {
		s.Table.Rows[i] = p
	} else if event == fanout.EventNew {
		s.Table.Stale = true
	}

	if p.ToUserID != s.UserID {
		out.Ignored = true
		out.Reason = "not owned by connected user"
		return
	}

	delta := 0
	idx := s.Feed.indexOf(p.ID)
	switch {
	case idx < 0 && !p.Read:
		delta = 1
	case idx >= 0 && s.Feed.Items[idx].Read != p.Read:
		if p.Read {
			delta = -1
		} else {
			delta = 1
		}
	}
	s.Badge = max(s.Badge+delta, 0)
	s.Feed.UnreadCount = s.Badge
	out.UnreadDelta = delta

	if idx >= 0 {
		s.Feed.Items[idx] = p
	} else {
		capacity := s.Feed.capacity()
		s.Feed.Items = append([]fanout.Payload{p}, s.Feed.Items...)
		s.Feed.Total++
		if len(s.Feed.Items) > capacity {
			s.Feed.Items = s.Feed.Items[:capacity]
		}
	}
	s.Feed.HasMore = s.Feed.Total > len(s.Feed.Items)
}

func reduceSync(s *State, p fanout.SyncPayload, out *Outcome) {
	seen := make(map[string]struct{}, len(p.Notifications))
	unique := make([]fanout.Payload, 0, len(p.Notifications))
	for _, r := range p.Notifications {
		if _, dup := seen[r.ID]; dup {
			out.Discarded = append(out.Discarded, r.ID)
			continue
		}
		seen[r.ID] = struct{}{}
		if s.visible(r) {
			unique = append(unique, r)
		}
	}

	for _, r := range unique {
		if i := indexOfRow(s.Table.Rows, r.ID); i >= 0 {
			s.Table.Rows[i] = r
		}
	}

	owned := make([]fanout.Payload, 0, len(unique))
	for _, r := range unique {
		if r.ToUserID == s.UserID {
			owned = append(owned, r)
		}
	}
	slices.SortStableFunc(owned, func(a, b fanout.Payload) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	counted := owned
	if s.countsEverything() {
		counted = unique
	}
	unread := 0
	for _, r := range counted {
		if !r.Read {
			unread++
		}
	}

	capacity := s.Feed.capacity()
	if len(owned) > capacity {
		s.Feed.Items = owned[:capacity]
	} else {
		s.Feed.Items = owned
	}
	s.Feed.Total = len(owned)
	// the global total of a protected snapshot is not the size of the feed
	if p.Total != nil && !s.countsEverything() {
		s.Feed.Total = max(*p.Total, len(owned))
	}
	s.Feed.HasMore = s.Feed.Total > len(s.Feed.Items)
	if p.Unread != nil {
		unread = max(*p.Unread, 0)
	}

	out.UnreadDelta = unread - s.Badge
	s.Badge = unread
	s.Feed.UnreadCount = unread
}

func reduceDelete(s *State, ids []string, out *Outcome) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := s.Feed.Items[:0]
	removed, removedUnread := 0, 0
	for _, item := range s.Feed.Items {
		if _, ok := drop[item.ID]; ok {
			removed++
			if !item.Read {
				removedUnread++
			}
			continue
		}
		kept = append(kept, item)
	}
	s.Feed.Items = kept
	s.Feed.Total = max(s.Feed.Total-removed, 0)
	s.Feed.HasMore = s.Feed.Total > len(s.Feed.Items)

	before := s.Badge
	s.Badge = max(s.Badge-removedUnread, 0)
	s.Feed.UnreadCount = s.Badge
	out.UnreadDelta = s.Badge - before

	rows := s.Table.Rows[:0]
	removedRows := 0
	for _, row := range s.Table.Rows {
		if _, ok := drop[row.ID]; ok {
			removedRows++
			continue
		}
		rows = append(rows, row)
	}
	s.Table.Rows = rows
	s.Table.Total = max(s.Table.Total-removedRows, 0)

	if removed == 0 && removedRows == 0 {
		out.Ignored = true
		out.Reason = "no cached entries matched"
	}
}

func indexOfRow(rows []fanout.Payload, id string) int {
	for i, row := range rows {
		if row.ID == id {
			return i
		}
	}
	return -1
}
