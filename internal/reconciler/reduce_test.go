package reconciler

import (
	"fmt"
	"testing"
	"time"

	"uniportal/internal/fanout"
	"uniportal/internal/microservices/http-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func item(id, owner string, read bool, minutes int) fanout.Payload {
	return fanout.Payload{
		ID:        id,
		ToUserID:  owner,
		Title:     "title " + id,
		Kind:      models.KindInfo,
		Read:      read,
		Timestamp: base.Add(time.Duration(minutes) * time.Minute),
	}
}

func event(t *testing.T, name string, data any) fanout.Message {
	t.Helper()
	msg, err := fanout.NewMessage(name, data, base)
	require.NoError(t, err)
	return *msg
}

func ids(items []fanout.Payload) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func assertConsistent(t *testing.T, s State) {
	t.Helper()
	assert.Equal(t, s.Badge, s.Feed.UnreadCount, "badge and feed unread count disagree")
	assert.GreaterOrEqual(t, s.Badge, 0)
	assert.Equal(t, s.Feed.Total > len(s.Feed.Items), s.Feed.HasMore)
}

func seeded(items ...fanout.Payload) State {
	unread := 0
	for _, it := range items {
		if !it.Read {
			unread++
		}
	}
	return State{
		UserID: "alice",
		Feed:   Feed{Items: items, Total: len(items), UnreadCount: unread, Capacity: DefaultCapacity},
		Badge:  unread,
	}
}

// --- new / updated ---

func TestReduce_NewUnreadPrepends(t *testing.T) {
	s := seeded(item("n1", "alice", true, 1))

	next, out := Reduce(s, event(t, fanout.EventNew, item("n2", "alice", false, 2)))

	assert.Equal(t, []string{"n2", "n1"}, ids(next.Feed.Items))
	assert.Equal(t, 2, next.Feed.Total)
	assert.Equal(t, 1, next.Badge)
	assert.Equal(t, 1, out.UnreadDelta)
	assertConsistent(t, next)
}

func TestReduce_NewReadRecordDoesNotCount(t *testing.T) {
	next, out := Reduce(seeded(), event(t, fanout.EventNew, item("n1", "alice", true, 1)))

	assert.Zero(t, next.Badge)
	assert.Zero(t, out.UnreadDelta)
	assert.Len(t, next.Feed.Items, 1)
}

func TestReduce_ForeignRecordIgnored(t *testing.T) {
	s := seeded(item("n1", "alice", false, 1))

	next, out := Reduce(s, event(t, fanout.EventNew, item("x", "bob", false, 2)))

	assert.True(t, out.Ignored)
	assert.Equal(t, []string{"n1"}, ids(next.Feed.Items))
	assert.Equal(t, 1, next.Badge)
}

func TestReduce_UpdatedFlipsReadState(t *testing.T) {
	s := seeded(item("n1", "alice", true, 1), item("n2", "alice", false, 0))

	next, out := Reduce(s, event(t, fanout.EventUpdated, item("n1", "alice", false, 1)))
	assert.Equal(t, 1, out.UnreadDelta)
	assert.Equal(t, 2, next.Badge)
	assert.Equal(t, []string{"n1", "n2"}, ids(next.Feed.Items))
	assert.Equal(t, 2, next.Feed.Total)
	assertConsistent(t, next)

	next, out = Reduce(next, event(t, fanout.EventUpdated, item("n1", "alice", true, 1)))
	assert.Equal(t, -1, out.UnreadDelta)
	assert.Equal(t, 1, next.Badge)
}

func TestReduce_UpdatedSameStateIsZeroDelta(t *testing.T) {
	s := seeded(item("n1", "alice", false, 1))

	next, out := Reduce(s, event(t, fanout.EventUpdated, item("n1", "alice", false, 1)))

	assert.Zero(t, out.UnreadDelta)
	assert.Equal(t, 1, next.Badge)
}

func TestReduce_DeltaNeverGoesNegative(t *testing.T) {
	s := seeded(item("n1", "alice", false, 1))
	// badge drifted to zero through a missed event
	s.Badge, s.Feed.UnreadCount = 0, 0

	next, out := Reduce(s, event(t, fanout.EventUpdated, item("n1", "alice", true, 1)))

	assert.Equal(t, -1, out.UnreadDelta)
	assert.Zero(t, next.Badge)
	assertConsistent(t, next)
}

func TestReduce_ReadToUnreadAddsExactlyOne(t *testing.T) {
	for _, badge := range []int{0, 3} {
		t.Run(fmt.Sprintf("badge=%d", badge), func(t *testing.T) {
			s := seeded(item("n1", "alice", true, 1))
			s.Badge, s.Feed.UnreadCount = badge, badge

			next, _ := Reduce(s, event(t, fanout.EventUpdated, item("n1", "alice", false, 1)))

			assert.Equal(t, badge+1, next.Badge)
		})
	}
}

func TestReduce_CapacityEvictsOldest(t *testing.T) {
	s := seeded(item("n2", "alice", true, 2), item("n1", "alice", true, 1))
	s.Feed.Capacity = 2

	next, _ := Reduce(s, event(t, fanout.EventNew, item("n3", "alice", false, 3)))

	assert.Equal(t, []string{"n3", "n2"}, ids(next.Feed.Items))
	assert.Equal(t, 3, next.Feed.Total)
	assert.True(t, next.Feed.HasMore)
}

func TestReduce_CapacityFallsBackToHeldSize(t *testing.T) {
	s := seeded(item("n1", "alice", true, 1))
	s.Feed.Capacity = 0

	next, _ := Reduce(s, event(t, fanout.EventNew, item("n2", "alice", true, 2)))

	assert.Equal(t, []string{"n2"}, ids(next.Feed.Items))
	assert.Equal(t, 2, next.Feed.Total)
}

func TestReduce_EmptyFeedUsesDefaultCapacity(t *testing.T) {
	s := State{UserID: "alice"}
	snapshot := make([]fanout.Payload, 0, DefaultCapacity+5)
	for i := 0; i < DefaultCapacity+5; i++ {
		snapshot = append(snapshot, item(fmt.Sprintf("n%d", i), "alice", false, i))
	}

	next, _ := Reduce(s, event(t, fanout.EventSync, fanout.SyncPayload{Notifications: snapshot}))

	assert.Len(t, next.Feed.Items, DefaultCapacity)
	assert.Equal(t, DefaultCapacity+5, next.Feed.Total)
	assert.Equal(t, DefaultCapacity+5, next.Badge)
	assert.Equal(t, fmt.Sprintf("n%d", DefaultCapacity+4), next.Feed.Items[0].ID)
	assertConsistent(t, next)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := seeded(item("n1", "alice", true, 1))
	s.Table = AdminTable{Rows: []fanout.Payload{item("n1", "alice", true, 1)}, Total: 1}

	_, _ = Reduce(s, event(t, fanout.EventUpdated, item("n1", "alice", false, 1)))
	_, _ = Reduce(s, event(t, fanout.EventDeleted, fanout.DeletedPayload{ID: "n1", ToUserID: "alice"}))

	assert.True(t, s.Feed.Items[0].Read)
	assert.Len(t, s.Table.Rows, 1)
	assert.Zero(t, s.Badge)
}

// --- sync ---

func TestReduce_SyncDeduplicates(t *testing.T) {
	s := seeded(item("old", "alice", false, 0))

	next, out := Reduce(s, event(t, fanout.EventSync, fanout.SyncPayload{Notifications: []fanout.Payload{
		item("n1", "alice", false, 1),
		item("n2", "alice", true, 2),
		item("n1", "alice", true, 1),
	}}))

	assert.Equal(t, []string{"n1"}, out.Discarded)
	assert.Equal(t, []string{"n2", "n1"}, ids(next.Feed.Items))
	// the first occurrence of n1 (unread) is the one kept
	assert.Equal(t, 1, next.Badge)
	assert.Equal(t, 2, next.Feed.Total)
	assertConsistent(t, next)
}

func TestReduce_SyncIsAuthoritative(t *testing.T) {
	s := seeded(item("a", "alice", false, 1), item("b", "alice", false, 2))
	s.Badge, s.Feed.UnreadCount = 9, 9

	next, out := Reduce(s, event(t, fanout.EventSync, fanout.SyncPayload{Notifications: []fanout.Payload{
		item("a", "alice", true, 1),
	}}))

	assert.Zero(t, next.Badge)
	assert.Equal(t, -9, out.UnreadDelta)
	assert.Equal(t, []string{"a"}, ids(next.Feed.Items))
}

func TestReduce_SyncTruncatesButCountsEverything(t *testing.T) {
	s := seeded()
	s.Feed.Capacity = 2

	next, _ := Reduce(s, event(t, fanout.EventSync, fanout.SyncPayload{Notifications: []fanout.Payload{
		item("n1", "alice", false, 1),
		item("n3", "alice", false, 3),
		item("n2", "alice", false, 2),
	}}))

	assert.Equal(t, []string{"n3", "n2"}, ids(next.Feed.Items))
	assert.Equal(t, 3, next.Feed.Total)
	assert.True(t, next.Feed.HasMore)
	assert.Equal(t, 3, next.Badge)
}

func TestReduce_SyncFiltersForeignRecords(t *testing.T) {
	next, _ := Reduce(seeded(), event(t, fanout.EventSync, fanout.SyncPayload{Notifications: []fanout.Payload{
		item("n1", "alice", false, 1),
		item("x", "bob", false, 2),
	}}))

	assert.Equal(t, []string{"n1"}, ids(next.Feed.Items))
	assert.Equal(t, 1, next.Badge)
}

func TestReduce_SyncProtectedSuperAdminCountsAll(t *testing.T) {
	s := State{UserID: "root", ProtectedSuperAdminID: "root"}

	next, _ := Reduce(s, event(t, fanout.EventSync, fanout.SyncPayload{Notifications: []fanout.Payload{
		item("n1", "root", false, 1),
		item("x", "bob", false, 2),
		item("y", "carol", true, 3),
	}}))

	// the feed list stays owned, the count covers the snapshot
	assert.Equal(t, []string{"n1"}, ids(next.Feed.Items))
	assert.Equal(t, 2, next.Badge)
	assertConsistent(t, next)
}

func TestReduce_SyncOtherSuperAdminCountsOwnOnly(t *testing.T) {
	s := State{UserID: "root2", ProtectedSuperAdminID: "root"}

	next, _ := Reduce(s, event(t, fanout.EventSync, fanout.SyncPayload{Notifications: []fanout.Payload{
		item("n1", "root2", false, 1),
		item("x", "bob", false, 2),
	}}))

	assert.Equal(t, 1, next.Badge)
}

func TestReduce_SyncUsesCarriedTotals(t *testing.T) {
	s := seeded()
	s.Feed.Capacity = 2
	total, unread := 150, 40

	next, out := Reduce(s, event(t, fanout.EventSync, fanout.SyncPayload{
		Notifications: []fanout.Payload{
			item("n3", "alice", false, 3),
			item("n2", "alice", true, 2),
			item("n1", "alice", false, 1),
		},
		Total:  &total,
		Unread: &unread,
	}))

	assert.Equal(t, []string{"n3", "n2"}, ids(next.Feed.Items))
	assert.Equal(t, 150, next.Feed.Total)
	assert.Equal(t, 40, next.Badge)
	assert.Equal(t, 40, out.UnreadDelta)
	assertConsistent(t, next)
}

func TestReduce_SyncTotalNeverBelowRowsHeld(t *testing.T) {
	total, unread := 0, 0

	next, _ := Reduce(seeded(), event(t, fanout.EventSync, fanout.SyncPayload{
		Notifications: []fanout.Payload{item("n1", "alice", true, 1)},
		Total:         &total,
		Unread:        &unread,
	}))

	assert.Equal(t, 1, next.Feed.Total)
	assertConsistent(t, next)
}

func TestReduce_SyncProtectedKeepsOwnedTotal(t *testing.T) {
	s := State{UserID: "root", ProtectedSuperAdminID: "root", SeesSystem: true}
	total, unread := 500, 90

	next, _ := Reduce(s, event(t, fanout.EventSync, fanout.SyncPayload{
		Notifications: []fanout.Payload{item("n1", "root", false, 1), item("x", "bob", false, 2)},
		Total:         &total,
		Unread:        &unread,
	}))

	// the global total describes the snapshot, not the owned feed
	assert.Equal(t, 1, next.Feed.Total)
	assert.Equal(t, 90, next.Badge)
	assertConsistent(t, next)
}

func TestReduce_SystemHiddenFromNonSuperAdmins(t *testing.T) {
	sys := item("s1", "alice", false, 5)
	sys.Kind = models.KindSystem
	s := seeded(item("n1", "alice", false, 1))

	next, out := Reduce(s, event(t, fanout.EventNew, sys))
	assert.True(t, out.Ignored)
	assert.Equal(t, 1, next.Badge)
	assert.Equal(t, []string{"n1"}, ids(next.Feed.Items))

	next, _ = Reduce(next, event(t, fanout.EventSync, fanout.SyncPayload{Notifications: []fanout.Payload{
		sys,
		item("n1", "alice", false, 1),
	}}))
	assert.Equal(t, []string{"n1"}, ids(next.Feed.Items))
	assert.Equal(t, 1, next.Badge)
	assertConsistent(t, next)
}

func TestReduce_SystemVisibleToSuperAdmins(t *testing.T) {
	sys := item("s1", "root", false, 5)
	sys.Kind = models.KindSystem
	s := State{UserID: "root", SeesSystem: true}

	next, out := Reduce(s, event(t, fanout.EventNew, sys))

	assert.False(t, out.Ignored)
	assert.Equal(t, 1, next.Badge)
	assert.Equal(t, []string{"s1"}, ids(next.Feed.Items))
}

// --- delete ---

func TestReduce_DeleteSingle(t *testing.T) {
	s := seeded(item("n2", "alice", false, 2), item("n1", "alice", true, 1))
	s.Feed.Total = 5

	next, out := Reduce(s, event(t, fanout.EventDeleted, fanout.DeletedPayload{ID: "n2", ToUserID: "alice"}))

	assert.Equal(t, []string{"n1"}, ids(next.Feed.Items))
	assert.Equal(t, 4, next.Feed.Total)
	assert.Zero(t, next.Badge)
	assert.Equal(t, -1, out.UnreadDelta)
	assertConsistent(t, next)
}

func TestReduce_DeleteMany(t *testing.T) {
	s := seeded(item("a", "alice", false, 3), item("b", "alice", false, 2), item("c", "alice", true, 1))

	next, _ := Reduce(s, event(t, fanout.EventDeletedMany, fanout.DeletedManyPayload{IDs: []string{"a", "c", "zzz"}}))

	assert.Equal(t, []string{"b"}, ids(next.Feed.Items))
	assert.Equal(t, 1, next.Feed.Total)
	assert.Equal(t, 1, next.Badge)
}

func TestReduce_DeleteUnknownIsIgnored(t *testing.T) {
	s := seeded(item("a", "alice", false, 1))

	next, out := Reduce(s, event(t, fanout.EventDeleted, fanout.DeletedPayload{ID: "zzz"}))

	assert.True(t, out.Ignored)
	assert.Equal(t, s.Feed.Total, next.Feed.Total)
	assert.Equal(t, 1, next.Badge)
}

func TestReduce_DeleteClampsAtZero(t *testing.T) {
	s := seeded(item("a", "alice", false, 1))
	s.Feed.Total = 0
	s.Badge, s.Feed.UnreadCount = 0, 0

	next, _ := Reduce(s, event(t, fanout.EventDeleted, fanout.DeletedPayload{ID: "a"}))

	assert.Zero(t, next.Feed.Total)
	assert.Zero(t, next.Badge)
}

// --- admin table ---

func TestReduce_AdminTable(t *testing.T) {
	s := State{
		UserID: "root",
		Table: AdminTable{
			Rows:  []fanout.Payload{item("a", "alice", false, 1), item("b", "bob", false, 2)},
			Total: 12,
		},
	}

	next, out := Reduce(s, event(t, fanout.EventUpdated, item("a", "alice", true, 1)))
	assert.True(t, out.Ignored, "feed ignores foreign records")
	assert.True(t, next.Table.Rows[0].Read)
	assert.False(t, next.Table.Stale)

	next, _ = Reduce(next, event(t, fanout.EventNew, item("c", "carol", false, 3)))
	assert.True(t, next.Table.Stale)
	assert.Len(t, next.Table.Rows, 2)

	next, _ = Reduce(next, event(t, fanout.EventSync, fanout.SyncPayload{Notifications: []fanout.Payload{
		item("b", "bob", true, 2),
	}}))
	assert.True(t, next.Table.Rows[1].Read)

	next, _ = Reduce(next, event(t, fanout.EventDeletedMany, fanout.DeletedManyPayload{IDs: []string{"a", "b"}}))
	assert.Empty(t, next.Table.Rows)
	assert.Equal(t, 10, next.Table.Total)
}

// --- misc ---

func TestReduce_UnknownAndMalformedEvents(t *testing.T) {
	s := seeded(item("a", "alice", false, 1))

	next, out := Reduce(s, fanout.Message{Event: "chat:message"})
	assert.True(t, out.Ignored)
	assert.NoError(t, out.Err)
	assert.Equal(t, s, next)

	next, out = Reduce(s, fanout.Message{Event: fanout.EventNew, Data: []byte(`"nope"`)})
	assert.True(t, out.Ignored)
	assert.Error(t, out.Err)
	assert.Equal(t, s, next)
}
