package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"que-backend/internal/adapters"
	"que-backend/internal/app"
	"que-backend/internal/config"
	"que-backend/internal/domain"
	"que-backend/internal/metrics"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware assigns every browser a durable token used as
// fallback client identity on the WS side.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type createRoomRequest struct {
	RoomID   string `json:"roomId" binding:"required,roomid"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity" binding:"omitempty,gt=0,lte=1000"`
}

func registerValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
			id := domain.NormalizeRoomID(fl.Field().String())
			return id != "" && len(id) <= domain.MaxRoomIDLen
		})
	}
}

type roomView struct {
	domain.Room
	ActiveCount  int `json:"activeCount"`
	WaitingCount int `json:"waitingCount"`
}

func viewOf(engine *app.Engine, room domain.Room) roomView {
	active, waiting := engine.Counts(room.ID)
	return roomView{Room: room, ActiveCount: active, WaitingCount: waiting}
}

func SetupRouter(ctx context.Context, cfg *config.Config, engine *app.Engine, catalog *app.Catalog, hub *adapters.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	registerValidations()

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("QueSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	// GET /rooms — map keyed by room id, with live counts.
	r.GET("/rooms", func(c *gin.Context) {
		out := make(map[domain.RoomID]roomView)
		for _, room := range catalog.List() {
			out[room.ID] = viewOf(engine, room)
		}
		c.JSON(http.StatusOK, out)
	})

	api := r.Group("/api")

	// POST /api/rooms — create a room.
	api.POST("/rooms", func(c *gin.Context) {
		var req createRoomRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid roomId in request body"})
			return
		}
		room, err := catalog.Create(req.RoomID, req.Name, req.Capacity)
		switch {
		case errors.Is(err, domain.ErrRoomExists):
			c.JSON(http.StatusConflict, gin.H{"error": "room already exists"})
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusCreated, gin.H{
				"message": "room created",
				"room":    viewOf(engine, *room),
			})
		}
	})

	// GET /api/rooms/search?search=&available=
	api.GET("/rooms/search", func(c *gin.Context) {
		var available *bool
		if raw, ok := c.GetQuery("available"); ok {
			b := raw == "true"
			available = &b
		}
		rooms := catalog.Search(c.Query("search"), available)
		out := make([]roomView, 0, len(rooms))
		for _, room := range rooms {
			out = append(out, viewOf(engine, room))
		}
		c.JSON(http.StatusOK, out)
	})

	ctl := adapters.NewWSController(engine, hub, cfg)
	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})

	return r
}
