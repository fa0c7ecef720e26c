package api

import (
	"context"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/listenlab/internal/config"
	"github.com/snarg/listenlab/internal/lesson"
	"github.com/snarg/listenlab/internal/metrics"
	"github.com/snarg/listenlab/internal/storage"
)

// ServerOptions wires the HTTP server to the rest of the service.
type ServerOptions struct {
	Config   *config.Config
	Registry *lesson.Registry
	Lessons  Lessons
	Events   *lesson.EventBus
	Store    storage.AudioStore
	Archive  Archive // nil without a database
	Health   HealthDeps

	WebFiles    fs.FS // nil disables the page
	OpenAPISpec []byte
	Version     string
	StartTime   time.Time
	Log         zerolog.Logger
}

type Server struct {
	http *http.Server
	sync *SyncHandler
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(metrics.InstrumentHandler)
	r.Use(CORSWithOrigins(cfg.CORSOrigins))

	syncHandler := NewSyncHandler(opts.Registry, cfg.CORSOrigins)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated
		health := NewHealthHandler(opts.Health, opts.Version, opts.StartTime)
		r.Get("/health", health.ServeHTTP)
		if opts.OpenAPISpec != nil {
			r.Get("/openapi.yaml", OpenAPIHandler(opts.OpenAPISpec))
		}

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AuthToken))

			NewLessonsHandler(opts.Registry, opts.Lessons, opts.Events, opts.Store, opts.Archive, LessonsOptions{
				DefaultSpeed:    cfg.DefaultSpeed,
				DefaultLanguage: cfg.DefaultLanguage,
				MaxUploadBytes:  int64(cfg.MaxUploadMB) << 20,
				UploadDir:       filepath.Join(cfg.AudioDir, "uploads"),
			}, opts.Log).Routes(r)
			syncHandler.Routes(r)
			NewEventsHandler(opts.Events).Routes(r)
		})
	})

	if opts.WebFiles != nil {
		r.Handle("/*", WebHandler(opts.WebFiles))
	}

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		sync: syncHandler,
		log:  opts.Log,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// SyncSessionCount returns the number of open sync websockets.
func (s *Server) SyncSessionCount() int {
	return s.sync.SessionCount()
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
