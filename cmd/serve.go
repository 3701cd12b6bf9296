package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linepulse/linepulse/internal/aggregate"
	"github.com/linepulse/linepulse/internal/model"
	"github.com/linepulse/linepulse/internal/resilience"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(env.Manager),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func buildRouter(mgr *aggregate.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		report := mgr.Health(req.Context())
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	})

	r.Get("/v1/sources", func(w http.ResponseWriter, req *http.Request) {
		report := mgr.Health(req.Context())
		writeJSON(w, http.StatusOK, report.Sources)
	})

	r.Get("/v1/data/{dataType}/{entityID}", func(w http.ResponseWriter, req *http.Request) {
		dt, ok := model.ParseDataType(chi.URLParam(req, "dataType"))
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown data type"})
			return
		}
		entityID := chi.URLParam(req, "entityID")

		var maxAge time.Duration
		if raw := req.URL.Query().Get("max_age_secs"); raw != "" {
			secs, err := strconv.Atoi(raw)
			if err != nil || secs <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid max_age_secs"})
				return
			}
			maxAge = time.Duration(secs) * time.Second
		}

		obs, err := mgr.FetchEntity(req.Context(), dt, entityID, maxAge)
		if err != nil {
			if errors.Is(err, resilience.ErrNoValidData) {
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": "no valid data from any source"})
				return
			}
			zap.L().Error("fetch failed",
				zap.String("data_type", string(dt)),
				zap.String("entity_id", entityID),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}

		writeJSON(w, http.StatusOK, obs)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
