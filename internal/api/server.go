package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/discord-echo/internal/channel"
	"github.com/energizer-project/discord-echo/internal/config"
	"github.com/energizer-project/discord-echo/internal/db"
	intnet "github.com/energizer-project/discord-echo/internal/network"
	"github.com/energizer-project/discord-echo/internal/relay"
)

// RelayService is the part of the relay the API reports on and drives.
type RelayService interface {
	Stats() relay.Stats
	Policy() relay.UnmappedPolicy
	Inject(ctx context.Context, gameChannel, username, text string) error
}

// TransportService reports map server delivery counters.
type TransportService interface {
	Addr() string
	Stats() intnet.TransportStats
}

// HistoryStore reads relay history.
type HistoryStore interface {
	Recent(ctx context.Context, limit int) ([]db.Entry, error)
	CountByOutcome(ctx context.Context) (map[string]int64, error)
	Total(ctx context.Context) (int64, error)
}

// Dependencies are the runtime components the API exposes.
// History may be nil when the database is disabled.
type Dependencies struct {
	Channels  *channel.Map
	Relay     RelayService
	Transport TransportService
	History   HistoryStore
}

// Server is the local status API.
type Server struct {
	cfg     *config.Config
	deps    Dependencies
	started time.Time

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates the API server and its router.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	app := cfg.GetApplicationData()
	if app.Logging.Level == "debug" || app.Logging.Level == "trace" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		started: time.Now(),
	}
	s.router = s.buildRouter(app.API)
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	apiCfg := s.cfg.GetApplicationData().API
	addr := net.JoinHostPort(apiCfg.BindAddress, strconv.Itoa(apiCfg.Port))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// SO_REUSEADDR so a restart can rebind immediately.
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("status API starting")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

func (s *Server) buildRouter(apiCfg config.APIConfig) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := apiCfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	router.Use(NewRateLimiter(apiCfg.RateLimitRPS).Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/version", s.handleGetVersion)
	}

	monitor := router.Group("/api/monitor")
	{
		monitor.GET("/channels", s.handleGetChannels)
		monitor.GET("/stats", s.handleGetStats)
		monitor.GET("/history", s.handleGetHistory)
		monitor.GET("/system", s.handleGetSystem)
		monitor.GET("/logs", s.handleGetLogEntries)
		monitor.GET("/config", s.handleGetConfig)
	}

	control := router.Group("/api/control")
	{
		control.POST("/send", s.handleSendMessage)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "discord-echo status API is running"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
