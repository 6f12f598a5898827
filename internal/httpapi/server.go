// Package httpapi serves the consultation archive and process metrics over
// a local HTTP listener.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clinscribe/internal/domain"
	"clinscribe/internal/export"
	"clinscribe/internal/ports"
)

const requestIDKey = "request_id"

type Options struct {
	Archive  ports.Archive
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type Server struct {
	archive ports.Archive
	logger  *slog.Logger
	engine  *gin.Engine
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{archive: opts.Archive, logger: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.engine.Use(requestLogger(logger))

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.engine.Group("/api/consultations")
	api.GET("", s.listConsultations)
	api.GET("/:id", s.getConsultation)
	api.GET("/:id/export", s.exportConsultation)

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

type consultationSummary struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"createdAt"`
	Patient       string    `json:"patient"`
	Approved      bool      `json:"approved"`
	Prescriptions int       `json:"prescriptions"`
}

func (s *Server) listConsultations(c *gin.Context) {
	drafts, err := s.archive.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	out := make([]consultationSummary, 0, len(drafts))
	for _, draft := range drafts {
		out = append(out, consultationSummary{
			ID:            draft.ID,
			CreatedAt:     draft.CreatedAt,
			Patient:       draft.Demographics.Name,
			Approved:      draft.Approved,
			Prescriptions: len(draft.Prescriptions),
		})
	}
	c.JSON(http.StatusOK, gin.H{"consultations": out})
}

func (s *Server) getConsultation(c *gin.Context) {
	draft, err := s.archive.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

func (s *Server) exportConsultation(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft, err := s.archive.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	data, err := export.Render(draft, format)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, format.ContentType(), data)
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrDraftNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	rid, _ := c.Get(requestIDKey)
	s.logger.Error("archive request failed", "rid", rid, "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// requestLogger writes one structured line per request and tags it with a
// request ID that is echoed in X-Request-ID.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := uuid.NewString()
		c.Set(requestIDKey, reqID)
		c.Writer.Header().Set("X-Request-ID", reqID)

		c.Next()

		logger.Info("http_request",
			"rid", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}
