package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/herald-app/herald/internal/auth"
	"github.com/herald-app/herald/internal/config"
	"github.com/herald-app/herald/internal/handler"
	"github.com/herald-app/herald/internal/middleware"
	"github.com/herald-app/herald/internal/push"
	"github.com/herald-app/herald/internal/store"
	ws "github.com/herald-app/herald/internal/websocket"

	"github.com/rs/cors"
)

type Server struct {
	db            *sql.DB
	cfg           config.Config
	hub           *ws.Hub
	tokens        *auth.Tokens
	authH         *handler.AuthHandler
	eventH        *handler.EventHandler
	notificationH *handler.NotificationHandler
	scheduler     *push.Scheduler
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)

	userStore := store.NewUserStore(db)
	eventStore := store.NewEventStore(db)
	pushStore := store.NewPushStore(db)

	pushLogger := logger.With("component", "push")

	// Push notifications only work with VAPID keys configured; without them
	// the notification routes are not registered and no scheduler runs.
	var (
		pushSvc       *push.Service
		pushSched     *push.Scheduler
		notificationH *handler.NotificationHandler
	)
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(push.Config{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subject:         cfg.VAPIDSubject,
		})
		pushSched = push.NewScheduler(pushSvc, eventStore, userStore, pushStore, hub, push.SchedulerConfig{
			Interval:    cfg.CheckInterval,
			WindowStart: cfg.WindowStart,
			WindowEnd:   cfg.WindowEnd,
		}, pushLogger)
		notificationH = handler.NewNotificationHandler(pushStore, pushSvc, pushSched, logger.With("component", "notification_handler"))
	} else {
		logger.Warn("VAPID keys not configured, push notifications disabled")
	}

	return &Server{
		db:            db,
		cfg:           cfg,
		hub:           hub,
		tokens:        tokens,
		authH:         handler.NewAuthHandler(userStore, tokens, logger.With("component", "auth")),
		eventH:        handler.NewEventHandler(eventStore, hub, logger.With("component", "event")),
		notificationH: notificationH,
		scheduler:     pushSched,
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// Scheduler returns the notification scheduler, or nil when push is not
// configured.
func (s *Server) Scheduler() *push.Scheduler {
	return s.scheduler
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("POST /api/auth/register", s.rateLimited(s.authH.Register))
	mux.HandleFunc("POST /api/auth/login", s.rateLimited(s.authH.Login))
	mux.HandleFunc("GET /api/events/public", s.eventH.ListPublic)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
	if s.notificationH != nil {
		mux.HandleFunc("GET /api/notifications/public-key", s.notificationH.PublicKey)
	}

	// Protected routes
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/events", s.eventH.List)
	protected.HandleFunc("POST /api/events", s.eventH.Create)
	protected.HandleFunc("PATCH /api/events/{id}", s.eventH.Update)
	protected.HandleFunc("DELETE /api/events/{id}", s.eventH.Delete)
	if s.notificationH != nil {
		protected.HandleFunc("POST /api/notifications/subscribe", s.notificationH.Subscribe)
		protected.HandleFunc("POST /api/notifications/unsubscribe", s.notificationH.Unsubscribe)
		protected.HandleFunc("POST /api/notifications/test", s.notificationH.Test)
		protected.HandleFunc("POST /api/notifications/trigger-check", s.notificationH.TriggerCheck)
	}
	mux.Handle("/api/", middleware.RequireAuth(s.tokens)(protected))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{s.cfg.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	return middleware.RequestLogger(s.logger.With("component", "http"))(c.Handler(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if err := s.db.Ping(); err != nil {
		dbStatus = "disconnected"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "database": dbStatus})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
