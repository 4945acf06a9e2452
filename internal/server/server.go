package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"servicesim/internal/admin"
	"servicesim/internal/handler"
	"servicesim/internal/metrics"
	"servicesim/internal/models"
	"servicesim/internal/rules"

	"github.com/SOLUCIONESSYCOM/scribe"
	"github.com/gin-gonic/gin"
)

// ShutdownTimeout bounds the drain of in-flight requests on Stop.
const ShutdownTimeout = 5 * time.Second

// Methods are the HTTP methods routed to the handler.
var Methods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}

// Loader builds a fresh registry from the definition directory.
type Loader func() (*rules.Registry, error)

// Server owns the router, the listeners and the active registry.
type Server struct {
	Router     *gin.Engine
	httpServer *http.Server
	adminSrv   *http.Server
	handler    *handler.Handler
	registry   atomic.Pointer[rules.Registry]
	load       Loader
	logger     *scribe.Scribe
	metrics    *metrics.Metrics
	settings   models.Settings

	// Fatal reports reload errors that must stop Run. Reloads from any
	// source, the admin API included, go through it.
	Fatal func(error) bool
	fatal chan error
}

// New builds a server and performs the initial load. A failed initial load
// is returned as is so the caller can decide whether it is fatal.
func New(settings models.Settings, log *scribe.Scribe, load Loader, m *metrics.Metrics) (*Server, error) {
	if settings.Log.MinLevel == "debug" || settings.Log.MinLevel == "trace" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		router.Use(gin.Logger())
	}

	s := &Server{
		Router:   router,
		load:     load,
		logger:   log,
		metrics:  m,
		settings: settings,
		fatal:    make(chan error, 1),
	}
	s.handler = handler.NewHandler(log, s, m, settings.Concurrent)

	for _, method := range Methods {
		router.Handle(method, "/*path", s.handler.HandleRequest)
	}

	if err := s.Reload(); err != nil {
		return nil, fmt.Errorf("error loading definitions: %w", err)
	}
	return s, nil
}

// Registry returns the active registry.
func (s *Server) Registry() *rules.Registry {
	return s.registry.Load()
}

// Reload builds a new registry and swaps it in. On failure the active
// registry is kept.
func (s *Server) Reload() error {
	reg, err := s.load()
	if err != nil {
		s.metrics.ObserveReload(err, 0)
		s.logger.Error().
			Str("dir", s.settings.CallDir).
			AnErr("error", err).
			Msg("Error loading definitions, keeping previous rules")
		if s.Fatal != nil && s.Fatal(err) {
			select {
			case s.fatal <- err:
			default:
			}
		}
		return err
	}

	s.registry.Store(reg)
	s.metrics.ObserveReload(nil, reg.Len())
	s.logger.Info().
		Str("dir", s.settings.CallDir).
		Int("calls", reg.Len()).
		Msg("Definitions loaded")
	return nil
}

// Run serves until ctx is cancelled, a listener fails or a reload hits a
// fatal error, then drains. When a metrics address is set, the admin router
// is served there as well.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 2)

	s.httpServer = &http.Server{
		Addr:    s.settings.Listen(),
		Handler: s.Router,
	}
	go func() {
		s.logger.Info().Str("address", s.httpServer.Addr).Msg("Starting server")
		errc <- listen(s.httpServer)
	}()

	if s.settings.MetricsAddress != "" {
		s.adminSrv = &http.Server{
			Addr:    s.settings.MetricsAddress,
			Handler: admin.NewRouter(s, s.metrics, s.logger),
		}
		go func() {
			s.logger.Info().Str("address", s.adminSrv.Addr).Msg("Starting admin server")
			errc <- listen(s.adminSrv)
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
		s.logger.Error().AnErr("error", err).Msg("Server stopped unexpectedly")
	case err = <-s.fatal:
		s.logger.Error().AnErr("error", err).Msg("Fatal reload error, stopping server")
	}

	s.Stop()
	return err
}

// Stop gracefully shuts the listeners down.
func (s *Server) Stop() {
	for _, srv := range []*http.Server{s.httpServer, s.adminSrv} {
		if srv == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error().Str("address", srv.Addr).AnErr("error", err).Msg("Error shutting down server")
		}
		cancel()
	}
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	return nil
}
