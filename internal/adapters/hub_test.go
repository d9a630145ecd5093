package adapters

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"que-backend/internal/core"
)

type captureSession struct {
	frames []core.Frame
}

func (s *captureSession) TrySend(f core.Frame) error {
	s.frames = append(s.frames, f)
	return nil
}

func (s *captureSession) Close() {}

func TestDirectEncodesEnvelope(t *testing.T) {
	hub := NewHub()
	sess := &captureSession{}

	hub.Direct(sess, core.WaitingStatus("R1", 2))
	require.Len(t, sess.frames, 1)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(sess.frames[0], &decoded))
	require.Equal(t, "room_status", decoded["type"])
	require.Equal(t, "waiting", decoded["status"])
	require.EqualValues(t, 2, decoded["queuePosition"])

	hub.Direct(sess, core.InRoomStatus("R1"))
	decoded = map[string]any{}
	require.NoError(t, json.Unmarshal(sess.frames[1], &decoded))
	require.NotContains(t, decoded, "queuePosition", "position is omitted for active clients")
}

func TestBroadcastAllReachesEveryConn(t *testing.T) {
	hub := NewHub()
	a := &wsConn{send: make(chan core.Frame, 1)}
	b := &wsConn{send: make(chan core.Frame, 1)}
	hub.add(a)
	hub.add(b)

	hub.BroadcastAll(core.NewRoomUpdate("R1", true, 3, 0))
	require.Len(t, a.send, 1)
	require.Len(t, b.send, 1)

	hub.remove(b)
	hub.BroadcastAll(core.NewRoomUpdate("R1", true, 2, 0))
	require.Len(t, b.send, 1, "removed conn must not receive broadcasts")
}

func TestTrySendDropsOnFullBuffer(t *testing.T) {
	c := &wsConn{send: make(chan core.Frame, 1)}
	require.NoError(t, c.TrySend(core.Frame("one")))
	require.ErrorIs(t, c.TrySend(core.Frame("two")), ErrBackpressure)
}

// A release dispatches notifications after the room lock is dropped, so
// a send can race the target's own disconnect. A closed connection must
// swallow the frame, never panic the pump goroutines.
func TestDirectAfterCloseIsDropped(t *testing.T) {
	hub := NewHub()
	c := &wsConn{send: make(chan core.Frame, 1)}
	hub.add(c)
	c.Close()

	require.NotPanics(t, func() {
		hub.Direct(c, core.InRoomStatus("R1"))
		hub.BroadcastAll(core.NewRoomUpdate("R1", true, 1, 0))
	})
	require.ErrorIs(t, c.TrySend(core.Frame("late")), ErrConnClosed)

	// Second close is a no-op, not a double close of the channel.
	require.NotPanics(t, c.Close)
}
