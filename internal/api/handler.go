package api

import (
	"net/http"
	"time"

	"fxgate/internal/audit"
	"fxgate/internal/events"
	"fxgate/internal/executor"
	"fxgate/pkg/instruments"

	"github.com/gin-gonic/gin"
)

// Options carries the transport-level settings the server needs beyond its
// collaborators.
type Options struct {
	// WebhookSecret enables HMAC signature checks on /webhook when set.
	WebhookSecret string
	// AllowedIPs restricts /webhook to these client IPs when non-empty.
	AllowedIPs []string
	// DashboardPassword is the single operator credential for /api/auth/token.
	DashboardPassword string
	JWTSecret         string
	// Per-IP request budget. Zero values fall back to 20 req/s, burst 50.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Server wires HTTP endpoints around the executor and event bus.
type Server struct {
	Router *gin.Engine
	Exec   *executor.Orchestrator
	Bus    *events.Bus
	Audit  *audit.Log
	Dir    *instruments.Directory

	opts       Options
	allowedIPs map[string]struct{}
}

func NewServer(exec *executor.Orchestrator, bus *events.Bus, auditLog *audit.Log, dir *instruments.Directory, opts Options) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())        // Panic recovery (first)
	r.Use(RequestIDMiddleware()) // Request ID tracking
	r.Use(RequestLogger())       // Request logging (after ID is set)
	r.Use(RateLimitMiddleware(newIPRateLimiter(opts.RateLimitPerSecond, opts.RateLimitBurst)))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware()) // CORS (last before routes)

	s := &Server{
		Router: r,
		Exec:   exec,
		Bus:    bus,
		Audit:  auditLog,
		Dir:    dir,
		opts:   opts,
	}
	if len(opts.AllowedIPs) > 0 {
		s.allowedIPs = make(map[string]struct{}, len(opts.AllowedIPs))
		for _, ip := range opts.AllowedIPs {
			s.allowedIPs[ip] = struct{}{}
		}
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	s.Router.POST("/webhook", s.webhook)

	api := s.Router.Group("/api")
	{
		api.POST("/auth/token", s.issueToken)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.opts.JWTSecret))
		{
			protected.GET("/risk", s.getRisk)
			protected.GET("/positions", s.getPositions)
			protected.GET("/trades", s.getTrades)
			protected.GET("/executions", s.getExecutions)
			protected.GET("/instruments", s.getInstruments)

			protected.POST("/execute", s.executeSignal)
			protected.POST("/trading/enable", s.enableTrading)
			protected.POST("/trading/disable", s.disableTrading)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getRisk(c *gin.Context) {
	status, err := s.Exec.RiskStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":  "BROKER_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getPositions(c *gin.Context) {
	positions, err := s.Exec.OpenPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":  "BROKER_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) getTrades(c *gin.Context) {
	trades, err := s.Exec.OpenTrades(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":  "BROKER_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) getExecutions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"executions": s.Audit.Recent()})
}

func (s *Server) getInstruments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"instruments": s.Dir.List()})
}

// executeSignal runs a manually submitted signal through the same pipeline
// as the webhook, minus the signature check (the JWT already vouches for
// the caller).
func (s *Server) executeSignal(c *gin.Context) {
	var payload map[string]any
	if err := c.BindJSON(&payload); err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	s.respondResult(c, s.Exec.Execute(c.Request.Context(), payload))
}

func (s *Server) enableTrading(c *gin.Context) {
	s.Exec.EnableTrading()
	c.JSON(http.StatusOK, gin.H{"trading_enabled": true})
}

func (s *Server) disableTrading(c *gin.Context) {
	s.Exec.DisableTrading()
	c.JSON(http.StatusOK, gin.H{"trading_enabled": false})
}

// respondResult maps a terminal execution result onto an HTTP status. A
// rejected trade is a correct outcome, not an error.
func (s *Server) respondResult(c *gin.Context, res executor.Result) {
	status := http.StatusOK
	if res.Status == executor.StatusFailed {
		status = http.StatusInternalServerError
	}
	c.JSON(status, res)
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
