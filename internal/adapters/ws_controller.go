package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"que-backend/internal/app"
	"que-backend/internal/config"
	"que-backend/internal/core"
	"que-backend/internal/domain"
)

// WSController upgrades client connections and translates wire events
// into engine calls. One wsConn per client; the read loop owns the
// connection's lifetime and reports Disconnect exactly once on exit.
type WSController struct {
	Engine *app.Engine
	Hub    *Hub
	Cfg    *config.Config
}

func NewWSController(engine *app.Engine, hub *Hub, cfg *config.Config) *WSController {
	return &WSController{Engine: engine, Hub: hub, Cfg: cfg}
}

// wsConn is the connection handle the engine stores in occupancy sets
// and waiting queues. Sends are non-blocking: a full buffer drops the
// frame rather than stalling the caller. The mutex serializes TrySend
// against Close: the engine dispatches notifications after releasing
// the room lock, so a send may race a concurrent disconnect and must
// degrade to a dropped frame, never a send on a closed channel.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and starts the connection pumps. The
// client token cookie set by the router middleware serves as fallback
// identity when join_room carries no userId.
func (ctl *WSController) HandleWS(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "adapters.ws").Str("token", token).Msg("ws connected")

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	ctl.Hub.add(conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, token, conn)
}

func (ctl *WSController) writePump(ctx context.Context, c *wsConn) {
	pinger := time.NewTicker(ctl.Cfg.PingPeriod)
	defer pinger.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pinger.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump write")
				return
			}
		}
	}
}

func (ctl *WSController) readPump(ctx context.Context, cancel context.CancelFunc, token string, c *wsConn) {
	defer func() {
		log.Info().Str("module", "adapters.ws").Str("token", token).Msg("ws closing")
		ctl.Engine.Disconnect(c)
		ctl.Hub.remove(c)
		cancel()
		c.Close()
	}()

	pongWait := ctl.Cfg.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(ctl.Cfg.MsgRate), ctl.Cfg.MsgBurst)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Str("token", token).Msg("readPump read")
				return
			}
			if !limiter.Allow() {
				log.Warn().Str("module", "adapters.ws").Str("token", token).Msg("message rate exceeded, dropped")
				continue
			}
			ctl.handleMessage(token, c, data)
		}
	}
}

func (ctl *WSController) handleMessage(token string, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("bad json")
		return
	}

	switch env.Type {
	case "join_room":
		ctl.handleJoin(token, c, data)
	case "submit":
		ctl.handleSubmit(c, data)
	case "ping":
		ctl.Hub.Direct(c, map[string]string{"type": "pong"})
	default:
		log.Warn().Str("module", "adapters.ws").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *WSController) handleJoin(token string, c *wsConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		RoomID string `json:"roomId"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("bad join_room payload")
		return
	}
	clientID := domain.ClientID(p.UserID)
	if clientID == "" {
		clientID = domain.ClientID(token)
	}
	roomID := domain.NormalizeRoomID(p.RoomID)
	log.Info().Str("module", "adapters.ws").Str("client", string(clientID)).Str("room", string(roomID)).Msg("join_room")
	ctl.Engine.Join(roomID, clientID, c)
}

func (ctl *WSController) handleSubmit(c *wsConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("bad submit payload")
		return
	}
	ctl.Engine.Release(domain.NormalizeRoomID(p.RoomID), c)
}
