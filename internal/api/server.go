// Package api exposes the warranty intake pipeline over HTTP: the Tally
// webhook endpoint, a health probe and the Prometheus scrape target.
package api

import (
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proffectiv/warrantyflow/internal/intake"
)

// maxBodyBytes caps webhook bodies. Tally submissions with a dozen
// attachments stay well under this; anything larger is not a form.
const maxBodyBytes = 1 << 20

// Server routes webhook traffic into the intake service.
type Server struct {
	intake  *intake.Service
	secret  string
	logger  *log.Logger
	metrics *webhookMetrics
}

// Option configures a Server.
type Option func(*Server)

// WithWebhookSecret enables signature verification with the Tally signing
// secret. An empty secret leaves requests unverified.
func WithWebhookSecret(secret string) Option {
	return func(s *Server) {
		s.secret = secret
	}
}

// WithLogger overrides the default server logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer wires the HTTP surface around an intake service.
func NewServer(svc *intake.Service, opts ...Option) *Server {
	s := &Server{
		intake:  svc,
		logger:  log.New(log.Writer(), "[API] ", log.LstdFlags),
		metrics: globalWebhookMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.POST("/webhook/tally", s.handleWebhook)
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// requestLog writes one line per request through the server logger.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Printf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleWebhook authenticates and processes one Tally delivery. Event
// types other than form submissions and duplicate submissions are
// acknowledged with 200 so the provider does not retry them; only
// malformed, unauthenticated or failed deliveries get error codes.
func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		s.metrics.record("unreadable")
		sendError(c, http.StatusBadRequest, "unreadable body")
		return
	}
	if !s.verifySignature(body, c.GetHeader("Tally-Signature")) {
		s.metrics.record("unauthorized")
		sendError(c, http.StatusUnauthorized, "invalid signature")
		return
	}

	res, err := s.intake.Process(c.Request.Context(), body)
	switch {
	case errors.Is(err, intake.ErrBadEnvelope):
		s.metrics.record("malformed")
		sendError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, intake.ErrWrongEvent):
		s.metrics.record("ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case errors.Is(err, intake.ErrUnknownBrand):
		s.metrics.record("unknown_brand")
		sendError(c, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		s.metrics.record("error")
		s.logger.Printf("webhook processing failed: %v", err)
		sendError(c, http.StatusInternalServerError, "processing failed")
	case res.Duplicate:
		s.metrics.record("duplicate")
		c.JSON(http.StatusOK, gin.H{"status": "duplicate", "match": res.Match})
	default:
		s.metrics.record("accepted")
		c.JSON(http.StatusOK, gin.H{"status": "accepted", "result": res})
	}
}

func sendError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}
