// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"strings"
)

const (
	MaxRoomIDLen = 36
	MaxNameLen   = 64
)

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
	ErrRoomExists    = errors.New("room already exists")
	ErrBadCapacity   = errors.New("capacity must be positive")
)

type (
	// RoomID is the case-normalized room identifier.
	RoomID string
	// ClientID is the durable client token, stable across reconnects.
	ClientID string
)

// Room is a catalog record. Capacity is fixed at creation; Available is
// a cached view of occupancy < capacity, recomputed by the engine.
type Room struct {
	ID        RoomID `json:"roomId"`
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Available bool   `json:"available"`
}

// NormalizeRoomID trims and upper-cases a raw room id.
func NormalizeRoomID(raw string) RoomID {
	return RoomID(strings.ToUpper(strings.TrimSpace(raw)))
}

// NewRoom is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewRoom(rawID, name string, capacity int) (*Room, error) {
	id := NormalizeRoomID(rawID)
	if id == "" {
		return nil, ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return nil, ErrRoomIDTooLong
	}
	if capacity <= 0 {
		return nil, ErrBadCapacity
	}
	if name == "" {
		name = string(id)
	}
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	return &Room{ID: id, Name: name, Capacity: capacity, Available: true}, nil
}
