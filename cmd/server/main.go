package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/lotforge/lot-engine/internal/calc"
	"github.com/lotforge/lot-engine/internal/metrics"
	"github.com/lotforge/lot-engine/internal/model"
	"github.com/lotforge/lot-engine/internal/plan"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found, relying on actual environment variables")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Plan book ---
	plans := plan.DefaultPlans()
	if spec := os.Getenv("PLANS"); spec != "" {
		parsed, err := plan.ParseList(spec)
		if err != nil {
			slog.Error("invalid PLANS", "err", err)
			os.Exit(1)
		}
		plans = parsed
		slog.Info("plan book loaded from PLANS", "plans", len(plans))
	}

	maxSimTrades := getEnvIntWithDefault("MAX_SIM_TRADES", 100)
	if maxSimTrades < 1 {
		slog.Error("MAX_SIM_TRADES must be at least 1", "value", maxSimTrades)
		os.Exit(1)
	}

	// --- Calculator service ---
	svc := calc.NewService(plans, maxSimTrades)

	// --- WebSocket hub for live recalculation ---
	wsHub := calc.NewWSHub(svc)
	go wsHub.Run()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"lot-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for live recalculation.
		r.Get("/ws", wsHub.HandleWS)

		// Progressive lot-size table.
		r.Get("/progression", svc.GetProgression)

		// Adjusted loss-support table and its CSV export.
		r.Get("/loss-support", svc.GetLossSupport)
		r.Get("/loss-support/csv", svc.ExportLossSupportCSV)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("lot-engine listening", "port", port, "plans", planSizes(plans))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down lot-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("lot-engine stopped")
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func planSizes(plans []model.AccountPlan) []string {
	sizes := make([]string, 0, len(plans))
	for _, p := range plans {
		sizes = append(sizes, p.AccountSize.String())
	}
	return sizes
}
