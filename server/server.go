package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"

	"github.com/customeros/feedsync/api"
	"github.com/customeros/feedsync/config"
	"github.com/customeros/feedsync/interfaces"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/tracing"
	"github.com/customeros/feedsync/services"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, parser interfaces.DocumentParser) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize jaeger tracer")
	}
	opentracing.SetGlobalTracer(tracer)

	// Initialize services
	svcs, err := services.InitServices(cfg, appLogger, parser, services.NewLogPrompt(appLogger))
	if err != nil {
		return nil, err
	}

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		services:     svcs,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:              cfg.AppConfig.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		// Create a new span for the panic
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		// Mark span as failed
		ext.Error.Set(span, true)

		// Log panic details
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	// Create root context for the application
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup API routes
	api.RegisterRoutes(s.router, s.services, s.log, s.config.AppConfig.APIKey)

	// Start the sync service before the scheduler that drives it
	s.log.Info("Starting sync service...")
	if err := s.services.SyncService.Start(ctx); err != nil {
		return err
	}
	if err := s.services.Cron.StartCron(); err != nil {
		return errors.Wrap(err, "failed to start scheduler")
	}

	// Start HTTP server in a goroutine with panic recovery
	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})
	s.log.Info("feedsync is now running. Press Ctrl+C to exit, twice to skip waiting for a running sync.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	// Set up signal handling for graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	// Wait for termination signal
	<-stop
	s.log.Info("Shutting down...")

	// Create a context with timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan error, 1)
	go s.wrapGoroutine("graceful_shutdown", func() {
		done <- s.shutdown(shutdownCtx, false)
	})

	select {
	case err := <-done:
		return err
	case <-stop:
		// a second signal abandons the running sync pass
		s.log.Warn("Second signal received, emergency shutdown")
		if err := s.shutdown(shutdownCtx, true); err != nil {
			s.log.Errorf("Emergency shutdown error: %v", err)
		}
	case <-shutdownCtx.Done():
		s.log.Warn("Shutdown timed out, forcing exit")
		if err := s.shutdown(context.Background(), true); err != nil {
			s.log.Errorf("Emergency shutdown error: %v", err)
		}
	}
	return nil
}

func (s *Server) shutdown(ctx context.Context, emergency bool) error {
	s.log.Info("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	}

	if emergency {
		s.services.Cron.StopNoWait()
	} else {
		s.services.Cron.Stop()
	}

	s.log.Info("Stopping sync service...")
	err := s.services.SyncService.Stop(ctx, emergency)
	if err != nil {
		s.log.Errorf("Sync service shutdown error: %v", err)
	} else {
		s.log.Info("Sync service stopped, pending items persisted")
	}

	if s.tracerCloser != nil {
		_ = s.tracerCloser.Close()
	}
	_ = s.log.Sync()
	return err
}
