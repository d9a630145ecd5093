package app

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"que-backend/internal/domain"
)

// Catalog owns room records: creation, lookup, search. It never
// touches occupancy or queues; those live in the engine's state store.
type Catalog struct {
	mu              sync.RWMutex
	rooms           map[domain.RoomID]*domain.Room
	defaultCapacity int
}

func NewCatalog(defaultCapacity int) *Catalog {
	if defaultCapacity <= 0 {
		defaultCapacity = 5
	}
	return &Catalog{
		rooms:           make(map[domain.RoomID]*domain.Room),
		defaultCapacity: defaultCapacity,
	}
}

// Create registers a room. The id is trimmed and upper-cased; a zero
// capacity falls back to the configured default.
func (c *Catalog) Create(rawID, name string, capacity int) (*domain.Room, error) {
	if capacity == 0 {
		capacity = c.defaultCapacity
	}
	room, err := domain.NewRoom(rawID, name, capacity)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[room.ID]; ok {
		return nil, domain.ErrRoomExists
	}
	c.rooms[room.ID] = room
	log.Info().Str("module", "app.catalog").Str("room", string(room.ID)).Int("capacity", room.Capacity).Msg("room created")
	cp := *room
	return &cp, nil
}

func (c *Catalog) Get(id domain.RoomID) (domain.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	room, ok := c.rooms[id]
	if !ok {
		return domain.Room{}, false
	}
	return *room, true
}

func (c *Catalog) Exists(id domain.RoomID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[id]
	return ok
}

// CapacityOf returns 0 for rooms outside the catalog.
func (c *Catalog) CapacityOf(id domain.RoomID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if room, ok := c.rooms[id]; ok {
		return room.Capacity
	}
	return 0
}

// SetAvailable caches the engine-computed open flag for broadcasts and
// catalog listings.
func (c *Catalog) SetAvailable(id domain.RoomID, available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if room, ok := c.rooms[id]; ok {
		room.Available = available
	}
}

// List returns every room, sorted by id.
func (c *Catalog) List() []domain.Room {
	c.mu.RLock()
	out := make([]domain.Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		out = append(out, *room)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search filters rooms by a case-insensitive substring over id and
// name, and optionally by availability.
func (c *Catalog) Search(query string, available *bool) []domain.Room {
	rooms := c.List()
	if query != "" {
		q := strings.ToLower(query)
		rooms = lo.Filter(rooms, func(r domain.Room, _ int) bool {
			return strings.Contains(strings.ToLower(string(r.ID)), q) ||
				strings.Contains(strings.ToLower(r.Name), q)
		})
	}
	if available != nil {
		rooms = lo.Filter(rooms, func(r domain.Room, _ int) bool {
			return r.Available == *available
		})
	}
	return rooms
}
