package status

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/framepipe/component"
	"github.com/kbukum/framepipe/errors"
	"github.com/kbukum/framepipe/ledger"
	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/pipeline"
	"github.com/kbukum/framepipe/sse"
	"github.com/kbukum/framepipe/version"
)

// HealthChecker returns health status for registered components.
type HealthChecker func(ctx context.Context) []component.Health

// RunStore is the read side of the frame ledger.
type RunStore interface {
	Runs(ctx context.Context, limit int) ([]ledger.Run, error)
	RunSummary(ctx context.Context, runID string) (*ledger.Run, error)
	Frames(ctx context.Context, runID string) ([]ledger.FrameRecord, error)
}

// DataResponse is the success envelope.
type DataResponse struct {
	Data any `json:"data"`
}

// Server is the status HTTP server. It implements component.Component.
type Server struct {
	cfg        Config
	service    string
	log        *logger.Logger
	engine     *gin.Engine
	httpServer *http.Server

	mu       sync.RWMutex
	reporter pipeline.Reporter
	runs     RunStore
	health   HealthChecker
	hub      *sse.Hub
	addr     string
	serving  bool
}

var _ component.Component = (*Server)(nil)

// New creates the server and registers its routes. Nothing listens until Start.
// A nil log uses the registered "status" logger.
func New(cfg Config, service string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Get("status")
	} else {
		log = log.WithComponent("status")
	}
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		service: service,
		log:     log,
		engine:  gin.New(),
	}
	s.engine.Use(recovery(s.log), requestID(), requestLogger(s.log))
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/info", s.handleInfo)
	s.engine.GET("/stats", s.handleStats)
	s.engine.GET("/runs", s.handleRuns)
	s.engine.GET("/runs/:id", s.handleRun)
	s.engine.GET("/runs/:id/frames", s.handleFrames)
	s.engine.GET("/events", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      h2c.NewHandler(s.engine, &http2.Server{IdleTimeout: 120 * time.Second}),
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// SetReporter attaches the pipeline whose progress /stats reports.
func (s *Server) SetReporter(r pipeline.Reporter) {
	s.mu.Lock()
	s.reporter = r
	s.mu.Unlock()
}

// SetRunStore attaches the ledger served under /runs.
func (s *Server) SetRunStore(r RunStore) {
	s.mu.Lock()
	s.runs = r
	s.mu.Unlock()
}

// SetHealthChecker sets the source of /health component statuses.
func (s *Server) SetHealthChecker(h HealthChecker) {
	s.mu.Lock()
	s.health = h
	s.mu.Unlock()
}

// SetEventHub attaches the hub streamed under /events.
func (s *Server) SetEventHub(h *sse.Hub) {
	s.mu.Lock()
	s.hub = h
	s.mu.Unlock()
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr != "" {
		return s.addr
	}
	return s.httpServer.Addr
}

// Name returns the component name.
func (s *Server) Name() string { return "status" }

// Start binds the port and serves in the background, over TLS when a
// certificate is configured. It returns once the listener is bound.
func (s *Server) Start(_ context.Context) error {
	tlsCfg, err := s.cfg.TLS.Build()
	if err != nil {
		return fmt.Errorf("status server TLS: %w", err)
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("status server failed to bind %s: %w", s.httpServer.Addr, err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.serving = true
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.log.Error("Status server error", logger.Fields(logger.FieldError, err.Error()))
		}
		s.mu.Lock()
		s.serving = false
		s.mu.Unlock()
	}()

	s.log.Info("Status server started", logger.Fields("addr", ln.Addr().String(), "tls", tlsCfg != nil))
	return nil
}

// Stop gracefully shuts down the server with a 5-second deadline.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

// Health reports whether the server is serving.
func (s *Server) Health(context.Context) component.Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.serving {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: "not serving"}
	}
	return component.Health{Name: s.Name(), Status: component.StatusHealthy, Message: s.addr}
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, DataResponse{Data: data})
}

func respondError(c *gin.Context, err error) {
	appErr := errors.Wrap(err)
	c.JSON(appErr.HTTPStatus, appErr.ToResponse())
}

func (s *Server) handleHealth(c *gin.Context) {
	s.mu.RLock()
	checker := s.health
	s.mu.RUnlock()

	var components []component.Health
	if checker != nil {
		components = checker(c.Request.Context())
	}
	status := component.Overall(components)
	code := http.StatusOK
	if status == component.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     status,
		"service":    s.service,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"components": components,
	})
}

func (s *Server) handleInfo(c *gin.Context) {
	respondOK(c, gin.H{
		"service": s.service,
		"build":   version.GetVersionInfo(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	s.mu.RLock()
	r := s.reporter
	s.mu.RUnlock()
	if r == nil {
		respondError(c, errors.Unavailable("pipeline"))
		return
	}
	respondOK(c, r.Progress())
}

func (s *Server) runStore(c *gin.Context) RunStore {
	s.mu.RLock()
	r := s.runs
	s.mu.RUnlock()
	if r == nil {
		respondError(c, errors.Unavailable("ledger"))
	}
	return r
}

func (s *Server) handleRuns(c *gin.Context) {
	store := s.runStore(c)
	if store == nil {
		return
	}
	limit := 20
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			respondError(c, errors.InvalidInput("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}
	runs, err := store.Runs(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if runs == nil {
		runs = []ledger.Run{}
	}
	respondOK(c, runs)
}

func (s *Server) handleRun(c *gin.Context) {
	store := s.runStore(c)
	if store == nil {
		return
	}
	run, err := store.RunSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, run)
}

func (s *Server) handleFrames(c *gin.Context) {
	store := s.runStore(c)
	if store == nil {
		return
	}
	if _, err := store.RunSummary(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	frames, err := store.Frames(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if frames == nil {
		frames = []ledger.FrameRecord{}
	}
	respondOK(c, frames)
}

func (s *Server) handleEvents(c *gin.Context) {
	s.mu.RLock()
	hub := s.hub
	s.mu.RUnlock()
	if hub == nil {
		respondError(c, errors.Unavailable("event stream"))
		return
	}
	topic := c.DefaultQuery("run", sse.AllRuns)
	if topic != sse.AllRuns {
		if _, err := uuid.Parse(topic); err != nil {
			respondError(c, errors.InvalidFormat("run", "UUID"))
			return
		}
	}
	sse.ServeSSE(hub, c.Writer, c.Request, topic, s.log)
}
