package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"EcoCart/internal/domain"
	"EcoCart/internal/logging"
	"EcoCart/internal/progress"
)

const (
	sessionHeader  = "X-Session-ID"
	defaultSession = "anonymous"
)

// Runner starts a guarded pipeline run for a session.
type Runner interface {
	Run(ctx context.Context, session string, ref domain.ProductReference, reporter *progress.Reporter) (domain.PipelineResult, error)
}

// Server exposes the pipeline over HTTP.
type Server struct {
	runner  Runner
	metrics http.Handler
	logger  *slog.Logger
	engine  *gin.Engine
}

type analyzeRequest struct {
	URL      string `json:"url"`
	ImageURL string `json:"imageUrl"`
}

type analyzeResponse struct {
	Result domain.PipelineResult  `json:"result"`
	Events []domain.ProgressEvent `json:"events"`
}

// NewServer builds the gin engine. metrics may be nil.
func NewServer(runner Runner, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{runner: runner, metrics: metrics, logger: logger}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	engine.GET("/healthz", s.health)
	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics))
	}
	v1 := engine.Group("/v1")
	v1.POST("/analyze", s.analyze)
	v1.POST("/analyze/stream", s.analyzeStream)

	s.engine = engine
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) analyze(c *gin.Context) {
	ref, ok := bindReference(c)
	if !ok {
		return
	}

	reporter := progress.NewReporter()
	result, err := s.runner.Run(c.Request.Context(), sessionID(c), ref, reporter)
	if err != nil {
		writeRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, analyzeResponse{Result: result, Events: reporter.Events()})
}

// analyzeStream narrates the run as server-sent "progress" events and ends with a "result" event.
func (s *Server) analyzeStream(c *gin.Context) {
	ref, ok := bindReference(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	session := sessionID(c)
	events := make(chan domain.ProgressEvent, 16)
	reporter := progress.NewReporter()
	reporter.Subscribe(func(ev domain.ProgressEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})

	type outcome struct {
		result domain.PipelineResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := s.runner.Run(ctx, session, ref, reporter)
		done <- outcome{result: result, err: err}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for {
		select {
		case ev := <-events:
			c.SSEvent("progress", ev)
			c.Writer.Flush()
		case out := <-done:
			// Every event was handed over before Run returned.
			for drained := false; !drained; {
				select {
				case ev := <-events:
					c.SSEvent("progress", ev)
				default:
					drained = true
				}
			}
			if out.err != nil {
				c.SSEvent("error", gin.H{"error": out.err.Error()})
			} else {
				c.SSEvent("result", out.result)
			}
			c.Writer.Flush()
			return
		case <-ctx.Done():
			s.logger.Debug("stream client disconnected")
			return
		}
	}
}

func bindReference(c *gin.Context) (domain.ProductReference, bool) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return domain.ProductReference{}, false
	}
	ref := domain.ProductReference{URL: req.URL, ImageURI: req.ImageURL}
	if err := ref.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return domain.ProductReference{}, false
	}
	return ref, true
}

func writeRunError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidReference):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "run could not be started"})
	}
}

func sessionID(c *gin.Context) string {
	if v := c.GetHeader(sessionHeader); v != "" {
		return v
	}
	return defaultSession
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"session", sessionID(c),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.Error("http request", attrs...)
		case status >= 400:
			logger.Warn("http request", attrs...)
		default:
			logger.Info("http request", attrs...)
		}
	}
}
