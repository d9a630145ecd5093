package core

// Frame is a raw payload already encoded for the wire.
type Frame []byte

// Session abstracts one live client connection.
// Owned by the adapter; the adapter must Close() it. The engine only
// uses it for delivery and as a set/queue member, so implementations
// must be comparable (adapters pass pointers).
type Session interface {
	TrySend(Frame) error
	Close()
}

// Notifier delivers engine events. Direct targets exactly one
// connection; BroadcastAll reaches every connected client (the room
// catalog subscribers). Delivery is fire-and-forget: the engine never
// waits on it.
type Notifier interface {
	Direct(s Session, evt any)
	BroadcastAll(evt any)
}
