package app

import (
	"github.com/rs/zerolog/log"

	"que-backend/internal/core"
	"que-backend/internal/domain"
	"que-backend/internal/metrics"
)

// CatalogView is the read side of the room catalog the engine relies
// on. The catalog owns creation and metadata; the engine only checks
// existence, reads capacity, and pushes back the cached open flag.
type CatalogView interface {
	Exists(domain.RoomID) bool
	CapacityOf(domain.RoomID) int
	SetAvailable(domain.RoomID, bool)
}

// Engine is the admission state machine. Per (room, client) a session
// is Absent, Active (holds a slot) or Waiting (queued FIFO). All three
// entry points degrade to no-ops on unknown references: inbound events
// originate from asynchronous, possibly stale client messages, so they
// are never surfaced as errors.
type Engine struct {
	Catalog  CatalogView
	Registry *Registry
	States   *StateStore
	Notifier core.Notifier
}

func NewEngine(catalog CatalogView, registry *Registry, states *StateStore, notifier core.Notifier) *Engine {
	return &Engine{Catalog: catalog, Registry: registry, States: states, Notifier: notifier}
}

// outbound is a notification computed under the room lock and sent
// after it is released. A nil target means broadcast to all catalog
// subscribers.
type outbound struct {
	to  core.Session
	evt any
}

// Join admits conn to the room or queues it. The identity is rebound
// to conn first, so a reconnecting client supersedes its stale handle
// in place: an Active client stays Active and a waiter keeps its
// position.
func (e *Engine) Join(roomID domain.RoomID, clientID domain.ClientID, conn core.Session) {
	old, rebound := e.Registry.Bind(clientID, conn)
	if !e.Catalog.Exists(roomID) {
		log.Debug().Str("module", "app.admission").Str("room", string(roomID)).Str("client", string(clientID)).Msg("join for unknown room ignored")
		return
	}
	capacity := e.Catalog.CapacityOf(roomID)
	st := e.States.get(roomID)

	st.mu.Lock()
	var out []outbound
	var active, waiting int
	switch {
	case rebound && st.isActive(old):
		// Reconnect of an Active client (or a duplicate join with the
		// same handle): swap in place, occupancy unchanged.
		st.swapActive(old, conn)
		out = append(out, outbound{to: conn, evt: core.InRoomStatus(roomID)})

	case rebound && st.waitingIndex(old) >= 0:
		i := st.waitingIndex(old)
		st.waiting[i] = conn
		out = append(out, outbound{to: conn, evt: core.WaitingStatus(roomID, i+1)})

	case st.isActive(conn):
		// Same handle already holds a slot under another identity.
		out = append(out, outbound{to: conn, evt: core.InRoomStatus(roomID)})

	case st.waitingIndex(conn) >= 0:
		out = append(out, outbound{to: conn, evt: core.WaitingStatus(roomID, st.waitingIndex(conn)+1)})

	case len(st.active) < capacity:
		st.active[conn] = struct{}{}
		active, waiting = len(st.active), len(st.waiting)
		available := active < capacity
		out = append(out,
			outbound{to: conn, evt: core.InRoomStatus(roomID)},
			outbound{evt: core.NewRoomUpdate(roomID, available, active, waiting)},
		)
		metrics.JoinsTotal.WithLabelValues(string(roomID)).Inc()

	default:
		st.waiting = append(st.waiting, conn)
		active, waiting = len(st.active), len(st.waiting)
		out = append(out,
			outbound{to: conn, evt: core.WaitingStatus(roomID, waiting)},
			outbound{evt: core.NewRoomUpdate(roomID, false, active, waiting)},
		)
		metrics.JoinsTotal.WithLabelValues(string(roomID)).Inc()
	}
	e.checkCapacity(roomID, st, capacity)
	active, waiting = len(st.active), len(st.waiting)
	st.mu.Unlock()

	e.Catalog.SetAvailable(roomID, active < capacity)
	e.observe(roomID, active, waiting)
	e.dispatch(out)
}

// Release gives up conn's slot in the room and promotes the head
// waiter, if any. A connection can only release its own slot; anything
// else is a no-op.
func (e *Engine) Release(roomID domain.RoomID, conn core.Session) {
	capacity := e.Catalog.CapacityOf(roomID)
	if capacity == 0 {
		return
	}
	st := e.States.get(roomID)

	st.mu.Lock()
	if !st.isActive(conn) {
		st.mu.Unlock()
		return
	}
	out := e.vacateLocked(roomID, st, conn, capacity)
	active, waiting := len(st.active), len(st.waiting)
	st.mu.Unlock()

	e.Catalog.SetAvailable(roomID, active < capacity)
	e.observe(roomID, active, waiting)
	e.dispatch(out)
}

// Disconnect handles a lost connection. The signal carries no room id,
// so every known room is scanned; each room's exclusion is taken
// independently. Processing an already-absent handle is a safe no-op.
func (e *Engine) Disconnect(conn core.Session) {
	for _, entry := range e.States.snapshot() {
		capacity := e.Catalog.CapacityOf(entry.id)
		st := entry.st

		st.mu.Lock()
		var out []outbound
		switch {
		case st.isActive(conn):
			out = e.vacateLocked(entry.id, st, conn, capacity)
		default:
			i := st.waitingIndex(conn)
			if i < 0 {
				st.mu.Unlock()
				continue
			}
			st.removeWaiting(i)
			out = renumberLocked(entry.id, st)
		}
		active, waiting := len(st.active), len(st.waiting)
		st.mu.Unlock()

		e.Catalog.SetAvailable(entry.id, active < capacity)
		e.observe(entry.id, active, waiting)
		e.dispatch(out)
	}

	if id, ok := e.Registry.UnbindSession(conn); ok {
		log.Info().Str("module", "app.admission").Str("client", string(id)).Msg("client disconnected")
	}
}

// Counts reports live occupancy and queue length for catalog listings.
func (e *Engine) Counts(roomID domain.RoomID) (active, waiting int) {
	return e.States.Counts(roomID)
}

// vacateLocked removes conn from the occupancy set, promotes the head
// waiter and shapes the resulting notifications. Caller holds st.mu
// and has verified conn is Active.
func (e *Engine) vacateLocked(roomID domain.RoomID, st *roomState, conn core.Session, capacity int) []outbound {
	delete(st.active, conn)

	var out []outbound
	if head, ok := st.popWaiting(); ok {
		st.active[head] = struct{}{}
		out = append(out, outbound{to: head, evt: core.InRoomStatus(roomID)})
		metrics.PromotionsTotal.WithLabelValues(string(roomID)).Inc()
	}

	active, waiting := len(st.active), len(st.waiting)
	out = append(out, outbound{evt: core.NewRoomUpdate(roomID, active < capacity, active, waiting)})
	out = append(out, renumberLocked(roomID, st)...)

	update := core.NewUserUpdate(roomID, active, waiting)
	for member := range st.active {
		out = append(out, outbound{to: member, evt: update})
	}
	for _, member := range st.waiting {
		out = append(out, outbound{to: member, evt: update})
	}
	return out
}

// renumberLocked notifies every waiter of its new 1-indexed position.
func renumberLocked(roomID domain.RoomID, st *roomState) []outbound {
	out := make([]outbound, 0, len(st.waiting))
	for i, w := range st.waiting {
		out = append(out, outbound{to: w, evt: core.WaitingStatus(roomID, i+1)})
	}
	return out
}

// checkCapacity guards the occupancy invariant. Violation would be a
// programming defect, not a runtime condition: log and carry on.
func (e *Engine) checkCapacity(roomID domain.RoomID, st *roomState, capacity int) {
	if capacity > 0 && len(st.active) > capacity {
		log.Error().Str("module", "app.admission").Str("room", string(roomID)).
			Int("active", len(st.active)).Int("capacity", capacity).
			Msg("occupancy exceeds capacity")
	}
}

func (e *Engine) observe(roomID domain.RoomID, active, waiting int) {
	metrics.ActiveSlots.WithLabelValues(string(roomID)).Set(float64(active))
	metrics.WaitingClients.WithLabelValues(string(roomID)).Set(float64(waiting))
}

func (e *Engine) dispatch(out []outbound) {
	for _, o := range out {
		if o.to == nil {
			e.Notifier.BroadcastAll(o.evt)
			continue
		}
		e.Notifier.Direct(o.to, o.evt)
	}
}
