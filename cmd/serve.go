package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/property-analyzer/internal/cache"
	"github.com/sells-group/property-analyzer/internal/geometry"
	"github.com/sells-group/property-analyzer/internal/model"
	"github.com/sells-group/property-analyzer/internal/monitoring"
	"github.com/sells-group/property-analyzer/internal/prefetch"
	"github.com/sells-group/property-analyzer/internal/resilience"
)

const maxBodyBytes = 1 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, cfg, "serve", true)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newServer(env).routes(cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// analyzer runs one parcel analysis.
type analyzer interface {
	Analyze(ctx context.Context, req model.Request) (*model.Result, error)
}

type server struct {
	analyzer  analyzer
	cache     *cache.Cache
	breakers  *resilience.Breakers
	scheduler *prefetch.Scheduler
	metrics   *monitoring.Metrics
}

func newServer(env *pipelineEnv) *server {
	return &server{
		analyzer:  env.Pipeline,
		cache:     env.Cache,
		breakers:  env.Breakers,
		scheduler: env.Scheduler,
		metrics:   env.Metrics,
	}
}

func (s *server) routes(origins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/analyses", s.handleAnalyze)
	})
	return r
}

type healthResponse struct {
	Status   string            `json:"status"`
	Cache    *cache.Stats      `json:"cache,omitempty"`
	Prefetch *prefetch.Stats   `json:"prefetch,omitempty"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.cache != nil {
		st := s.cache.Stats()
		resp.Cache = &st
	}
	if s.scheduler != nil {
		st := s.scheduler.Stats()
		resp.Prefetch = &st
	}
	if s.breakers != nil {
		resp.Breakers = s.breakers.States()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req model.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.analyzer.Analyze(r.Context(), req)
	switch {
	case errors.Is(err, geometry.ErrInvalidGeometry):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		zap.L().Error("analysis failed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// validateRequest rejects unknown categories and layers.
func validateRequest(req model.Request) error {
	for _, c := range req.Categories {
		if !c.Valid() {
			return eris.Errorf("unknown category %q", c)
		}
	}
	for _, l := range req.Layers {
		if !l.Valid() {
			return eris.Errorf("unknown layer %q", l)
		}
	}
	if req.Radius < 0 {
		return eris.New("radius must not be negative")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
