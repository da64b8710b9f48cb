package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/nmwangi/dukatrans/internal/jobs"
	"github.com/nmwangi/dukatrans/internal/metrics"
)

// JobController is the trigger surface the HTTP API drives.
type JobController interface {
	StartFullScan(chunkSize int) error
	StartSingleItem(itemID int64)
	RetryFailed() error
	Status() *jobs.Status
}

type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Server struct {
	controller JobController
	collector  *metrics.Collector
	logger     zerolog.Logger
	opts       Options
}

func NewServer(controller JobController, collector *metrics.Collector, logger zerolog.Logger, opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		controller: controller,
		collector:  collector,
		logger:     logger,
		opts:       opts,
	}
}

// Start serves until the context is cancelled, then shuts the listener down
// gracefully. In-flight job runs are not cancelled; they drain on their own.
func (s *Server) Start(ctx context.Context) error {
	e := s.router()

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(s.opts.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

func (s *Server) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := s.logger.Info()
			if v.Error != nil {
				evt = s.logger.Error().Err(v.Error)
			}
			evt.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.POST("/api/translate/start", s.handleStartFullScan)
	e.POST("/api/translate/retry", s.handleRetryFailed)
	e.POST("/api/translate/items/:id", s.handleSingleItem)
	e.POST("/api/webhooks/products", s.handleProductWebhook)
	e.GET("/api/status", s.handleStatus)
	e.GET("/api/failures", s.handleFailures)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(s.collector.Handler()))

	return e
}
