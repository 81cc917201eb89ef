package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/atmikgoswami/mediaforge/internal/config"
	"github.com/atmikgoswami/mediaforge/internal/health"
	"github.com/atmikgoswami/mediaforge/internal/ports"
)

type Server struct {
	router chi.Router
}

func NewServer(cfg *config.Config, broker ports.Broker, status ports.StatusStore,
	results ports.ResultStore, sink ports.Sink, monitor *health.Monitor) *Server {

	h := &handlers{
		cfg:      cfg,
		broker:   broker,
		status:   status,
		results:  results,
		sink:     sink,
		monitor:  monitor,
		validate: validator.New(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Post("/tasks", h.submit)
	r.Get("/tasks", h.listTasks)
	r.Get("/tasks/{id}", h.getTask)
	r.Get("/health", h.health)

	return &Server{router: r}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until SIGINT/SIGTERM, then drains in-flight requests.
func (s *Server) Run(port int) {
	addr := fmt.Sprintf(":%d", port)

	httpServer := http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Fatal().Err(err).Msg("server forced to shutdown")
		}

		close(done)
	}()

	log.Info().Msgf("gateway serving on port %d", port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("failed to listen and serve")
	}

	<-done
	log.Info().Msg("server stopped")
}
