package app

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"que-backend/internal/core"
	"que-backend/internal/domain"
)

type fakeSession struct{ name string }

func (s *fakeSession) TrySend(core.Frame) error { return nil }
func (s *fakeSession) Close()                   {}

type sentEvent struct {
	to  core.Session
	evt any
}

// recorder captures engine notifications instead of delivering them.
type recorder struct {
	direct    []sentEvent
	broadcast []any
}

func (r *recorder) Direct(s core.Session, evt any) {
	r.direct = append(r.direct, sentEvent{to: s, evt: evt})
}

func (r *recorder) BroadcastAll(evt any) {
	r.broadcast = append(r.broadcast, evt)
}

func (r *recorder) reset() {
	r.direct = nil
	r.broadcast = nil
}

// lastStatus returns the most recent room_status sent to s.
func (r *recorder) lastStatus(t *testing.T, s core.Session) core.RoomStatus {
	t.Helper()
	for i := len(r.direct) - 1; i >= 0; i-- {
		if r.direct[i].to != s {
			continue
		}
		if st, ok := r.direct[i].evt.(core.RoomStatus); ok {
			return st
		}
	}
	t.Fatalf("no room_status sent to %v", s)
	return core.RoomStatus{}
}

func (r *recorder) lastRoomUpdate(t *testing.T) core.RoomUpdate {
	t.Helper()
	for i := len(r.broadcast) - 1; i >= 0; i-- {
		if u, ok := r.broadcast[i].(core.RoomUpdate); ok {
			return u
		}
	}
	t.Fatal("no roomUpdate broadcast")
	return core.RoomUpdate{}
}

const testRoom = domain.RoomID("R1")

func newTestEngine(t *testing.T, capacity int) (*Engine, *Catalog, *recorder) {
	t.Helper()
	catalog := NewCatalog(5)
	_, err := catalog.Create(string(testRoom), "Room One", capacity)
	require.NoError(t, err)
	rec := &recorder{}
	engine := NewEngine(catalog, NewRegistry(), NewStateStore(), rec)
	return engine, catalog, rec
}

// fill admits n distinct clients and returns their sessions.
func fill(t *testing.T, e *Engine, n int) []*fakeSession {
	t.Helper()
	conns := make([]*fakeSession, n)
	for i := range conns {
		conns[i] = &fakeSession{name: fmt.Sprintf("active-%d", i+1)}
		e.Join(testRoom, domain.ClientID(fmt.Sprintf("user-%d", i+1)), conns[i])
	}
	return conns
}

func enqueue(t *testing.T, e *Engine, n int) []*fakeSession {
	t.Helper()
	conns := make([]*fakeSession, n)
	for i := range conns {
		conns[i] = &fakeSession{name: fmt.Sprintf("waiter-%d", i+1)}
		e.Join(testRoom, domain.ClientID(fmt.Sprintf("waiter-%d", i+1)), conns[i])
	}
	return conns
}

func TestJoinFillsRoomThenQueues(t *testing.T) {
	engine, catalog, rec := newTestEngine(t, 5)

	conns := fill(t, engine, 5)
	for _, c := range conns {
		require.Equal(t, core.StatusInRoom, rec.lastStatus(t, c).Status)
	}

	room, ok := catalog.Get(testRoom)
	require.True(t, ok)
	require.False(t, room.Available, "room must close at capacity")

	update := rec.lastRoomUpdate(t)
	require.False(t, update.Available)
	require.Equal(t, 5, update.ActiveCount)
	require.Equal(t, 0, update.WaitingCount)

	rec.reset()
	sixth := &fakeSession{name: "sixth"}
	engine.Join(testRoom, "user-6", sixth)

	status := rec.lastStatus(t, sixth)
	require.Equal(t, core.StatusWaiting, status.Status)
	require.Equal(t, 1, status.QueuePosition)

	active, waiting := engine.Counts(testRoom)
	require.Equal(t, 5, active)
	require.Equal(t, 1, waiting)
}

func TestReleaseWithoutWaitersOpensRoom(t *testing.T) {
	engine, catalog, rec := newTestEngine(t, 5)
	conns := fill(t, engine, 5)

	rec.reset()
	engine.Release(testRoom, conns[2])

	active, waiting := engine.Counts(testRoom)
	require.Equal(t, 4, active)
	require.Equal(t, 0, waiting)

	room, _ := catalog.Get(testRoom)
	require.True(t, room.Available)

	update := rec.lastRoomUpdate(t)
	require.True(t, update.Available)
	require.Equal(t, 4, update.ActiveCount)
}

func TestReleasePromotesHeadWaiter(t *testing.T) {
	engine, _, rec := newTestEngine(t, 5)
	conns := fill(t, engine, 5)
	waiters := enqueue(t, engine, 3)

	rec.reset()
	engine.Release(testRoom, conns[2])

	// Exactly the head is promoted.
	require.Equal(t, core.StatusInRoom, rec.lastStatus(t, waiters[0]).Status)

	// Remaining waiters shift down by one.
	require.Equal(t, 1, rec.lastStatus(t, waiters[1]).QueuePosition)
	require.Equal(t, 2, rec.lastStatus(t, waiters[2]).QueuePosition)

	active, waiting := engine.Counts(testRoom)
	require.Equal(t, 5, active)
	require.Equal(t, 2, waiting)

	// Occupancy is back at capacity after the promotion, so the room
	// stays closed.
	update := rec.lastRoomUpdate(t)
	require.False(t, update.Available)
	require.Equal(t, 5, update.ActiveCount)
	require.Equal(t, 2, update.WaitingCount)

	// Everyone in the room hears about the membership change.
	updated := map[core.Session]bool{}
	for _, d := range rec.direct {
		if _, ok := d.evt.(core.UserUpdate); ok {
			updated[d.to] = true
		}
	}
	for _, c := range conns[:2] {
		require.True(t, updated[c], "active member missed user_update")
	}
	require.True(t, updated[waiters[1]], "waiter missed user_update")
}

func TestPromotionIsFIFO(t *testing.T) {
	engine, _, rec := newTestEngine(t, 2)
	conns := fill(t, engine, 2)
	waiters := enqueue(t, engine, 3)

	for i, w := range waiters {
		rec.reset()
		engine.Release(testRoom, conns[i%2])
		require.Equal(t, core.StatusInRoom, rec.lastStatus(t, w).Status, "waiter %d promoted out of order", i+1)
		// The promoted waiter now occupies the freed slot.
		conns[i%2] = w
	}
}

func TestWaiterDisconnectRenumbersQueue(t *testing.T) {
	engine, _, rec := newTestEngine(t, 5)
	fill(t, engine, 5)
	waiters := enqueue(t, engine, 3)

	rec.reset()
	engine.Disconnect(waiters[1])

	require.Equal(t, 1, rec.lastStatus(t, waiters[0]).QueuePosition)
	require.Equal(t, 2, rec.lastStatus(t, waiters[2]).QueuePosition)

	// Capacity did not change, so nothing is broadcast.
	require.Empty(t, rec.broadcast)

	active, waiting := engine.Counts(testRoom)
	require.Equal(t, 5, active)
	require.Equal(t, 2, waiting)
}

func TestActiveDisconnectPromotes(t *testing.T) {
	engine, _, rec := newTestEngine(t, 5)
	conns := fill(t, engine, 5)
	waiters := enqueue(t, engine, 1)

	rec.reset()
	engine.Disconnect(conns[0])

	require.Equal(t, core.StatusInRoom, rec.lastStatus(t, waiters[0]).Status)
	active, waiting := engine.Counts(testRoom)
	require.Equal(t, 5, active)
	require.Equal(t, 0, waiting)

	// The identity that resolved to the lost connection is gone.
	_, ok := engine.Registry.Resolve("user-1")
	require.False(t, ok)
}

func TestReconnectKeepsSlot(t *testing.T) {
	engine, _, rec := newTestEngine(t, 2)
	conns := fill(t, engine, 2)

	rec.reset()
	newConn := &fakeSession{name: "active-1-reconnected"}
	engine.Join(testRoom, "user-1", newConn)

	require.Equal(t, core.StatusInRoom, rec.lastStatus(t, newConn).Status)
	require.Empty(t, rec.broadcast, "reconnect must not change counts")

	active, waiting := engine.Counts(testRoom)
	require.Equal(t, 2, active)
	require.Equal(t, 0, waiting)

	st := engine.States.get(testRoom)
	require.True(t, st.isActive(newConn))
	require.False(t, st.isActive(conns[0]), "stale handle must be replaced in place")
}

func TestReconnectKeepsQueuePosition(t *testing.T) {
	engine, _, rec := newTestEngine(t, 1)
	fill(t, engine, 1)
	enqueue(t, engine, 3)

	rec.reset()
	newConn := &fakeSession{name: "waiter-2-reconnected"}
	engine.Join(testRoom, "waiter-2", newConn)

	status := rec.lastStatus(t, newConn)
	require.Equal(t, core.StatusWaiting, status.Status)
	require.Equal(t, 2, status.QueuePosition, "reconnect must not re-queue at the tail")
	require.Empty(t, rec.broadcast)
}

func TestDuplicateJoinSameConnIsIdempotent(t *testing.T) {
	engine, _, rec := newTestEngine(t, 2)
	conn := &fakeSession{name: "dup"}
	engine.Join(testRoom, "user-1", conn)

	rec.reset()
	engine.Join(testRoom, "user-1", conn)

	require.Equal(t, core.StatusInRoom, rec.lastStatus(t, conn).Status)
	require.Empty(t, rec.broadcast)
	active, _ := engine.Counts(testRoom)
	require.Equal(t, 1, active)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	engine, _, rec := newTestEngine(t, 5)
	conns := fill(t, engine, 2)

	engine.Disconnect(conns[0])
	rec.reset()
	engine.Disconnect(conns[0])

	require.Empty(t, rec.direct, "second disconnect must produce no notifications")
	require.Empty(t, rec.broadcast)

	active, waiting := engine.Counts(testRoom)
	require.Equal(t, 1, active)
	require.Equal(t, 0, waiting)
}

func TestJoinUnknownRoomIsNoOp(t *testing.T) {
	engine, _, rec := newTestEngine(t, 5)

	engine.Join("NOPE", "user-1", &fakeSession{})

	require.Empty(t, rec.direct)
	require.Empty(t, rec.broadcast)
	active, waiting := engine.Counts("NOPE")
	require.Zero(t, active)
	require.Zero(t, waiting)
}

func TestReleaseByNonOccupantIsNoOp(t *testing.T) {
	engine, _, rec := newTestEngine(t, 1)
	fill(t, engine, 1)
	waiters := enqueue(t, engine, 1)

	rec.reset()
	engine.Release(testRoom, waiters[0])

	require.Empty(t, rec.direct, "a waiter holds no slot to release")
	require.Empty(t, rec.broadcast)
	active, waiting := engine.Counts(testRoom)
	require.Equal(t, 1, active)
	require.Equal(t, 1, waiting)
}

func TestCapacityAndPartitionInvariants(t *testing.T) {
	engine, _, _ := newTestEngine(t, 3)
	conns := fill(t, engine, 3)
	waiters := enqueue(t, engine, 4)

	engine.Release(testRoom, conns[1])
	engine.Disconnect(waiters[2])
	engine.Join(testRoom, "waiter-1", &fakeSession{name: "waiter-1-new"})
	engine.Disconnect(conns[0])

	st := engine.States.get(testRoom)
	st.mu.Lock()
	defer st.mu.Unlock()
	require.LessOrEqual(t, len(st.active), 3, "capacity invariant")
	for _, w := range st.waiting {
		_, overlaps := st.active[w]
		require.False(t, overlaps, "partition invariant: handle in both set and queue")
	}
}
