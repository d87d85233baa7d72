package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/lanmeet/internal/adapters/session"
	"github.com/dkeye/lanmeet/internal/adapters/ws"
	"github.com/dkeye/lanmeet/internal/app"
	"github.com/dkeye/lanmeet/internal/app/transfer"
	"github.com/dkeye/lanmeet/internal/config"
	"github.com/dkeye/lanmeet/internal/domain"
	"github.com/dkeye/lanmeet/internal/stats"
)

const clientTokenKey = "client_token"

type EventReader interface {
	Meeting(code domain.MeetingCode) ([]domain.Event, error)
}

type StatsSource interface {
	Snapshot() stats.Snapshot
}

// Deps are the components behind the HTTP surface. Journal and Stats may be nil.
type Deps struct {
	Rooms     *app.RoomManager
	Transfers *transfer.Coordinator
	Journal   EventReader
	Stats     StatsSource
	Sessions  *session.Handler
}

// ClientTokenMiddleware keeps a per-browser token in the session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			s.Set(clientTokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Str("module", "adapters.http").Err(err).Msg("session save failed")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
	}
	store := cookie.NewStore([]byte(secret))
	r.Use(sessions.Sessions("LanmeetSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.GET("/meetings", func(c *gin.Context) {
		c.JSON(http.StatusOK, d.Rooms.List())
	})
	api.GET("/meetings/:code", func(c *gin.Context) {
		code, ok := meetingCode(c)
		if !ok {
			return
		}
		m, err := d.Rooms.Meeting(code)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, m.Info())
	})
	api.GET("/meetings/:code/participants", func(c *gin.Context) {
		code, ok := meetingCode(c)
		if !ok {
			return
		}
		parts, err := d.Rooms.ListParticipants(code)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, lo.Map(parts, func(p domain.Participant, _ int) domain.ParticipantView {
			return p.View()
		}))
	})
	api.GET("/meetings/:code/journal", func(c *gin.Context) {
		if d.Journal == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
			return
		}
		code, ok := meetingCode(c)
		if !ok {
			return
		}
		events, err := d.Journal.Meeting(code)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, lo.Ternary(events == nil, []domain.Event{}, events))
	})
	api.GET("/transfers/:id", func(c *gin.Context) {
		snap, ok := d.Transfers.Snapshot(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrNotFound.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})
	api.GET("/stats", func(c *gin.Context) {
		if d.Stats == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "stats disabled"})
			return
		}
		c.JSON(http.StatusOK, d.Stats.Snapshot())
	})

	api.GET("/ws", func(c *gin.Context) {
		conn, err := ws.Upgrade(c.Writer, c.Request, cfg.MaxFrameSize)
		if err != nil {
			log.Warn().Str("module", "adapters.http").Err(err).Msg("ws upgrade failed")
			return
		}
		log.Info().Str("module", "adapters.http").Str("ct", c.GetString(clientTokenKey)).Msg("ws endpoint hit")
		d.Sessions.Serve(ctx, conn)
	})

	return r
}

func meetingCode(c *gin.Context) (domain.MeetingCode, bool) {
	code, err := domain.NormalizeCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return code, true
}

func abortWith(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrMeetingEnded):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
