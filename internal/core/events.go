package core

import "que-backend/internal/domain"

// Client-facing status values carried by room_status.
const (
	StatusInRoom  = "in-room"
	StatusWaiting = "waiting"
)

// RoomStatus is a point-to-point event: one client's admission state.
type RoomStatus struct {
	Type          string        `json:"type"`
	Status        string        `json:"status"`
	RoomID        domain.RoomID `json:"roomId"`
	QueuePosition int           `json:"queuePosition,omitempty"`
}

// InRoomStatus tells a client it holds a slot.
func InRoomStatus(roomID domain.RoomID) RoomStatus {
	return RoomStatus{Type: "room_status", Status: StatusInRoom, RoomID: roomID}
}

// WaitingStatus tells a client its 1-indexed queue position.
func WaitingStatus(roomID domain.RoomID, pos int) RoomStatus {
	return RoomStatus{Type: "room_status", Status: StatusWaiting, RoomID: roomID, QueuePosition: pos}
}

// RoomUpdate is broadcast to all catalog subscribers whenever a room's
// counts or availability change.
type RoomUpdate struct {
	Type         string        `json:"type"`
	RoomID       domain.RoomID `json:"roomId"`
	Available    bool          `json:"available"`
	ActiveCount  int           `json:"activeCount"`
	WaitingCount int           `json:"waitingCount"`
}

func NewRoomUpdate(roomID domain.RoomID, available bool, active, waiting int) RoomUpdate {
	return RoomUpdate{
		Type:         "roomUpdate",
		RoomID:       roomID,
		Available:    available,
		ActiveCount:  active,
		WaitingCount: waiting,
	}
}

// UserUpdate is room-scoped: sent to every connection currently joined
// to the room, active or waiting.
type UserUpdate struct {
	Type         string        `json:"type"`
	RoomID       domain.RoomID `json:"roomId"`
	ActiveCount  int           `json:"activeCount"`
	WaitingCount int           `json:"waitingCount"`
}

func NewUserUpdate(roomID domain.RoomID, active, waiting int) UserUpdate {
	return UserUpdate{
		Type:         "user_update",
		RoomID:       roomID,
		ActiveCount:  active,
		WaitingCount: waiting,
	}
}
