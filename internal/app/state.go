package app

import (
	"sync"

	"que-backend/internal/core"
	"que-backend/internal/domain"
)

// roomState is the admission state of one room: who holds a slot and
// who is queued. Each room carries its own mutex so rooms never
// contend with each other; the engine locks it around every
// read-modify-write of the (active, waiting, available) triple.
// Helper methods assume the caller holds mu.
type roomState struct {
	mu      sync.Mutex
	active  map[core.Session]struct{}
	waiting []core.Session
}

func newRoomState() *roomState {
	return &roomState{active: make(map[core.Session]struct{})}
}

func (st *roomState) isActive(s core.Session) bool {
	_, ok := st.active[s]
	return ok
}

func (st *roomState) swapActive(old, repl core.Session) {
	delete(st.active, old)
	st.active[repl] = struct{}{}
}

// waitingIndex returns the 0-based queue index of s, or -1.
func (st *roomState) waitingIndex(s core.Session) int {
	for i, w := range st.waiting {
		if w == s {
			return i
		}
	}
	return -1
}

// popWaiting removes and returns the head of the queue.
func (st *roomState) popWaiting() (core.Session, bool) {
	if len(st.waiting) == 0 {
		return nil, false
	}
	head := st.waiting[0]
	st.waiting = st.waiting[1:]
	return head, true
}

// removeWaiting splices s out of the queue, preserving order.
func (st *roomState) removeWaiting(i int) {
	st.waiting = append(st.waiting[:i], st.waiting[i+1:]...)
}

// StateStore holds per-room admission state, auto-created empty on
// first reference. The store mutex only guards the room map; room
// mutation is guarded by each roomState's own mutex.
type StateStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
}

func NewStateStore() *StateStore {
	return &StateStore{rooms: make(map[domain.RoomID]*roomState)}
}

func (s *StateStore) get(id domain.RoomID) *roomState {
	s.mu.RLock()
	st, ok := s.rooms[id]
	s.mu.RUnlock()
	if ok {
		return st
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.rooms[id]; ok {
		return st
	}
	st = newRoomState()
	s.rooms[id] = st
	return st
}

type stateEntry struct {
	id domain.RoomID
	st *roomState
}

// snapshot lists every room the store knows about, for the disconnect
// scan. Each room's exclusion is still acquired individually.
func (s *StateStore) snapshot() []stateEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]stateEntry, 0, len(s.rooms))
	for id, st := range s.rooms {
		out = append(out, stateEntry{id: id, st: st})
	}
	return out
}

// Counts reports the current occupancy and queue length of a room.
func (s *StateStore) Counts(id domain.RoomID) (active, waiting int) {
	s.mu.RLock()
	st, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok {
		return 0, 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.active), len(st.waiting)
}
