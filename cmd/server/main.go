package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/arenax/settlement-engine/internal/config"
	"github.com/arenax/settlement-engine/internal/leaderboard"
	"github.com/arenax/settlement-engine/internal/ledger"
	"github.com/arenax/settlement-engine/internal/metrics"
	"github.com/arenax/settlement-engine/internal/payout"
	"github.com/arenax/settlement-engine/internal/pool"
	"github.com/arenax/settlement-engine/internal/rateguard"
	"github.com/arenax/settlement-engine/internal/registry"
	"github.com/arenax/settlement-engine/internal/stake"
	"github.com/arenax/settlement-engine/internal/tier"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	cfg := config.Default()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			slog.Error("config load failed", "path", path, "err", err)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", path)
	}

	// --- Storage: registry mirror, wallet ledger, cooldown store ---
	var reg registry.Registry
	var led ledger.Ledger
	var cooldowns rateguard.CooldownStore
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pgPool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pgPool.Close)
		reg = registry.NewPostgresRegistry(pgPool)
		led = ledger.NewPostgresLedger(pgPool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory storage (data will not persist)")
		openingBalance := int64(10_000)
		reg = registry.NewMemoryRegistry()
		led = ledger.NewMemoryLedger(openingBalance)
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		reg = registry.NewCachedRegistry(reg, rdb, 30*time.Second)
		cooldowns = rateguard.NewRedisCooldowns(rdb, 10*time.Minute)
		slog.Info("Redis enabled", "roles", "registry cache, cooldown store")
	} else {
		cooldowns = rateguard.NewMemoryCooldowns()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Domain services ---
	guard := rateguard.New(cooldowns, cfg.Guard)
	classifier := tier.NewClassifier(cfg.Tiers)
	engine := payout.NewEngine(cfg)
	board := leaderboard.NewMemoryBoard()

	hub := stake.NewHub()
	go hub.Run()

	stakeSvc := stake.NewService(reg, led, guard, classifier, hub)
	poolCtrl := pool.NewController(reg, led, board, engine, stakeSvc, hub)

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
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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
		w.Write([]byte(`{"status":"ok","service":"settlement-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time settlement events.
		r.Get("/ws", hub.HandleWS)

		// Staking.
		r.Post("/stake", stakeSvc.HandlePlaceStake)
		r.Get("/stake/{entryID}", stakeSvc.HandleGetEntry)
		r.Post("/stake/{entryID}/refund", stakeSvc.HandleRefund)
		r.Post("/stake/{entryID}/settle", stakeSvc.HandleSettle)
		r.Get("/users/{userID}/entries", stakeSvc.HandleUserEntries)

		// Pool lifecycle and settlement.
		r.Get("/pools", poolCtrl.HandleList)
		r.Post("/pools", poolCtrl.HandleCreate)
		r.Get("/pools/{poolID}", poolCtrl.HandleGet)
		r.Post("/pools/{poolID}/activate", poolCtrl.HandleActivate)
		r.Post("/pools/{poolID}/cancel", poolCtrl.HandleCancel)
		r.Post("/pools/{poolID}/settle", poolCtrl.HandleSettle)
		r.Get("/pools/{poolID}/report", poolCtrl.HandleReport)
		r.Get("/pools/{poolID}/leaderboard", poolCtrl.HandleLeaderboard)

		// Score ingestion for the in-memory leaderboard.
		r.Post("/pools/{poolID}/scores", submitScore(board))

		// Payout structure preview.
		r.Get("/preview", poolCtrl.HandlePreview)
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
		slog.Info("settlement-engine listening", "port", port)
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

	slog.Info("shutting down settlement-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("settlement-engine stopped")
}

// submitScore accepts a score report for a pool's leaderboard.
func submitScore(board *leaderboard.MemoryBoard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var score leaderboard.Score
		if err := json.NewDecoder(r.Body).Decode(&score); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if score.UserID == "" {
			http.Error(w, `{"error":"user_id is required"}`, http.StatusBadRequest)
			return
		}
		if score.EnteredAt.IsZero() {
			score.EnteredAt = time.Now().UTC()
		}
		board.SubmitScore(chi.URLParam(r, "poolID"), score)
		w.WriteHeader(http.StatusNoContent)
	}
}
