// Package mgmt exposes the engine's HTTP surface: the evaluation endpoint a
// reverse proxy calls per request, and the JSON management API the dashboard
// consumes.
package mgmt

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"warden/aggregate"
	"warden/geo"
	"warden/metrics"
	"warden/rules"
	"warden/waf"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const defaultBlockStatusCode = http.StatusForbidden

// Server serves the evaluation and management endpoints.
type Server struct {
	logger          zerolog.Logger
	engine          waf.Server
	store           rules.Store
	aggregator      aggregate.Aggregator
	gate            geo.Gate
	blockStatusCode int
}

// NewServer wires the HTTP surface to the engine's components.
func NewServer(logger zerolog.Logger, engine waf.Server, store rules.Store, aggregator aggregate.Aggregator, gate geo.Gate, blockStatusCode int) *Server {
	if blockStatusCode == 0 {
		blockStatusCode = defaultBlockStatusCode
	}

	return &Server{
		logger:          logger,
		engine:          engine,
		store:           store,
		aggregator:      aggregator,
		gate:            gate,
		blockStatusCode: blockStatusCode,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/evaluate", s.evaluate)

	api := router.Group("/api")
	api.GET("/rules", s.listRules)
	api.PUT("/rules", s.putRule)
	api.GET("/rules/:id", s.getRule)
	api.PUT("/rules/:id/enabled", s.setRuleEnabled)
	api.GET("/stats", s.stats)
	api.POST("/stats/reset", s.resetStats)
	api.GET("/attackers", s.attackers)
	api.PUT("/attackers/:ip/blocked", s.setAttackerBlocked)
	api.GET("/traffic", s.traffic)
	api.GET("/health", s.healthz)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

type headerJSON struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type evaluateRequest struct {
	Method     string       `json:"method" binding:"required"`
	URI        string       `json:"uri" binding:"required"`
	RemoteAddr string       `json:"remoteAddr" binding:"required"`
	Headers    []headerJSON `json:"headers"`
	Body       string       `json:"body"`
}

// jsonRequest adapts an evaluateRequest to the engine's request interface.
type jsonRequest struct {
	req evaluateRequest
}

type jsonHeaderPair struct{ k, v string }

func (h jsonHeaderPair) Key() string   { return h.k }
func (h jsonHeaderPair) Value() string { return h.v }

func (r *jsonRequest) Method() string     { return r.req.Method }
func (r *jsonRequest) URI() string        { return r.req.URI }
func (r *jsonRequest) RemoteAddr() string { return r.req.RemoteAddr }

func (r *jsonRequest) Headers() []waf.HeaderPair {
	hh := make([]waf.HeaderPair, len(r.req.Headers))
	for i, h := range r.req.Headers {
		hh[i] = jsonHeaderPair{k: h.Key, v: h.Value}
	}
	return hh
}

func (r *jsonRequest) BodyReader() io.Reader { return strings.NewReader(r.req.Body) }

// evaluate runs one request through the decision engine. The verdict is always
// returned in the body; the status code additionally signals block/allow so
// thin proxy integrations can act on the status alone.
func (s *Server) evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verdict := s.engine.EvalRequest(c.Request.Context(), &jsonRequest{req: req})

	metrics.RequestsEvaluated.Inc()
	status := http.StatusOK
	if verdict.IsBlocked {
		metrics.RequestsBlocked.WithLabelValues(string(verdict.Reason)).Inc()
		status = s.blockStatusCode
	}

	c.JSON(status, verdict)
}

func (s *Server) listRules(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.List())
}

func (s *Server) getRule(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rule id must be an integer"})
		return
	}

	r, err := s.store.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, r)
}

func (s *Server) putRule(c *gin.Context) {
	var r waf.Rule
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.Upsert(r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stored, err := s.store.Get(r.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stored)
}

type enabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) setRuleEnabled(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rule id must be an integer"})
		return
	}

	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.SetEnabled(id, *req.Enabled); err != nil {
		if errors.Is(err, waf.ErrUnknownRule) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": *req.Enabled})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.aggregator.Stats())
}

func (s *Server) resetStats(c *gin.Context) {
	s.aggregator.Reset()
	c.Status(http.StatusNoContent)
}

func (s *Server) attackers(c *gin.Context) {
	c.JSON(http.StatusOK, s.aggregator.Attackers())
}

type blockedRequest struct {
	Blocked *bool `json:"blocked" binding:"required"`
}

// setAttackerBlocked records the operator's decision and pushes it into the
// gate's blocklist so it takes effect on the next evaluation.
func (s *Server) setAttackerBlocked(c *gin.Context) {
	ip := c.Param("ip")

	var req blockedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.gate.SetIPBlocked(ip, *req.Blocked); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.aggregator.SetAttackerBlocked(ip, *req.Blocked)
	c.JSON(http.StatusOK, gin.H{"ipAddress": ip, "blocked": *req.Blocked})
}

func (s *Server) traffic(c *gin.Context) {
	c.JSON(http.StatusOK, s.aggregator.Traffic())
}

func (s *Server) healthz(c *gin.Context) {
	health := s.engine.Health()
	stats := s.aggregator.Stats()

	status := "ok"
	if health.Degraded() {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"geoDegraded":     health.GeoDegraded(),
		"feedDegraded":    health.FeedDegraded(),
		"droppedVerdicts": stats.Dropped,
	})
}
