package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"timeline-archive/internal/config"
	"timeline-archive/internal/db"
	"timeline-archive/internal/queue"
	"timeline-archive/internal/redis"
	"timeline-archive/internal/security"
	"timeline-archive/internal/store"
)

// Server is the thin request/response surface over the acquisition pipeline.
// It creates sync tasks and answers status polls; all real work happens in
// the workers.
type Server struct {
	log       *slog.Logger
	db        *db.DB
	redis     *redis.Client
	accounts  *store.Accounts
	posts     *store.Posts
	tasks     *store.Tasks
	enqueuer  queue.Enqueuer
	cfg       config.Config
	router    *gin.Engine
	ipLimiter *security.LimiterStore
}

func NewServer(
	log *slog.Logger,
	dbConn *db.DB,
	redisClient *redis.Client,
	accounts *store.Accounts,
	posts *store.Posts,
	tasks *store.Tasks,
	enqueuer queue.Enqueuer,
	cfg config.Config,
) *Server {
	s := &Server{
		log:       log,
		db:        dbConn,
		redis:     redisClient,
		accounts:  accounts,
		posts:     posts,
		tasks:     tasks,
		enqueuer:  enqueuer,
		cfg:       cfg,
		router:    gin.New(),
		ipLimiter: security.NewLimiterStore(rate.Limit(1), 60, 10*time.Minute),
	}

	gin.SetMode(gin.ReleaseMode)
	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.rateLimitMiddleware())

	v1 := r.Group("/api/v1")
	{
		v1.POST("/sync", s.createSync)
		v1.GET("/sync/:session_id", s.syncStatus)
		v1.GET("/accounts/:username", s.getAccount)
		v1.GET("/accounts/:username/posts", s.getAccountPosts)
		v1.GET("/health", s.health)
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}
