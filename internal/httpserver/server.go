package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tinytelemetry/errwatch/internal/aggregate"
	"github.com/tinytelemetry/errwatch/internal/dashboard"
	"github.com/tinytelemetry/errwatch/internal/explain"
	"github.com/tinytelemetry/errwatch/internal/model"
)

const requestIDHeader = "X-Request-ID"

// Worker is a background loop that can be toggled over the API.
type Worker interface {
	Start()
	Stop() bool
	Running() bool
}

// Server provides an HTTP API over the error pipeline.
type Server struct {
	addr      string
	dash      dashboard.Dashboard
	workers   map[string]Worker
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. workers may be nil.
func NewServer(addr string, dash dashboard.Dashboard, workers map[string]Worker) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	if workers == nil {
		workers = map[string]Worker{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		dash:      dash,
		workers:   workers,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/errors", s.handleList)
	api.GET("/errors/:id", s.handleGet)
	api.POST("/errors/:id/explain", s.handleExplain)
	api.GET("/stats/buckets", s.handleBuckets)
	api.GET("/stats/delta", s.handleDelta)
	api.POST("/workers/:name/:action", s.handleWorker)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// explain waits on the model endpoint
		WriteTimeout: 120 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// requestID echoes the caller's X-Request-ID or assigns a fresh one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	workers := make(map[string]bool, len(s.workers))
	for name, w := range s.workers {
		workers[name] = w.Running()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"workers": workers,
	})
}

func (s *Server) handleList(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	q := dashboard.SearchQuery{
		Text:  c.Query("q"),
		From:  c.Query("from"),
		To:    c.Query("to"),
		Limit: limit,
	}
	for _, d := range []string{q.From, q.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(model.DateLayout, strings.TrimSpace(d)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be YYYY-MM-DD"})
			return
		}
	}

	var (
		recs []model.ErrorRecord
		err  error
	)
	if q.Text == "" && q.From == "" && q.To == "" {
		recs, err = s.dash.Recent(limit)
	} else {
		recs, err = s.dash.Search(q)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query errors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": recs})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleGet(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, found, err := s.dash.GetByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read record"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleExplain(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	res, err := s.dash.Explain(c.Request.Context(), id)
	switch {
	case errors.Is(err, explain.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case errors.Is(err, explain.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func durationQuery(c *gin.Context, key string) (time.Duration, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a positive duration"})
		return 0, false
	}
	return d, true
}

func (s *Server) handleBuckets(c *gin.Context) {
	window, ok := durationQuery(c, "window")
	if !ok {
		return
	}
	bucket, ok := durationQuery(c, "bucket")
	if !ok {
		return
	}
	buckets, err := s.dash.Buckets(window, bucket)
	if errors.Is(err, aggregate.ErrInvalidBuckets) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

func (s *Server) handleDelta(c *gin.Context) {
	var lookback time.Duration
	if raw := c.Query("minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "minutes must be a positive integer"})
			return
		}
		lookback = time.Duration(n) * time.Minute
	}
	d, err := s.dash.Delta(lookback)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute delta"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"delta": d, "text": d.String()})
}

func (s *Server) handleWorker(c *gin.Context) {
	w, ok := s.workers[c.Param("name")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown worker"})
		return
	}
	switch c.Param("action") {
	case "start":
		w.Start()
	case "stop":
		if !w.Stop() {
			c.JSON(http.StatusAccepted, gin.H{"running": w.Running(), "warning": "worker did not stop in time"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be start or stop"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": w.Running()})
}
