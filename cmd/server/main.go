package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Yuikij/japanesename/internal/catalog"
	"github.com/Yuikij/japanesename/internal/config"
	"github.com/Yuikij/japanesename/internal/gemini"
	"github.com/Yuikij/japanesename/internal/handler"
	"github.com/Yuikij/japanesename/internal/httputil"
	"github.com/Yuikij/japanesename/internal/middleware"
	"github.com/Yuikij/japanesename/internal/ratelimit"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.IsDev() {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("gateway starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
	)

	// Load prompt catalogues for every supported locale up front; a broken
	// catalogue is a deploy error, not a request error.
	catalogs, err := catalog.LoadAll()
	if err != nil {
		log.Fatalf("Failed to load prompt catalogues: %v", err)
	}

	keys := gemini.NewKeyPool(cfg.GeminiAPIKeys)
	if keys.Size() == 0 {
		logger.Warn("no Gemini API keys configured, upstream calls will fail")
	} else {
		logger.Info("credential pool loaded", "keys", keys.Size())
	}

	allowlist := handler.NewAllowlist(cfg.AllowedOrigins, cfg.IsDev())

	// Rate limit counters live in memory by default; DATABASE_URL switches
	// to a shared Postgres table so multiple instances draw down one budget.
	var store ratelimit.Store
	if cfg.DatabaseURL != "" {
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to create connection pool: %v", err)
		}
		defer pool.Close()

		pgStore := ratelimit.NewPostgresStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare rate limit schema: %v", err)
		}
		store = pgStore
		logger.Info("rate limit store: postgres")
	} else {
		store = ratelimit.NewMemoryStore()
		logger.Info("rate limit store: memory")
	}
	limiter := ratelimit.New(store, cfg.RateLimitPerWindow, cfg.RateLimitWindow, logger)

	chatHandler := handler.NewChatHandler(allowlist, limiter, keys, cfg.ChatAPIEndpoint, logger)
	crestHandler := handler.NewCrestHandler(allowlist, keys, cfg.CrestAPIEndpoint, catalogs, logger)

	logger.Info("handlers initialized")

	// Handlers do their own method dispatch so non-POST verbs get the 405
	// envelope instead of the mux's plain-text response.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/api/chat", chatHandler)
	mux.Handle("/api/family-crest", crestHandler)

	var h http.Handler = mux
	h = middleware.Recovery(logger)(h)

	// CORS - must wrap everything so OPTIONS pre-flight is answered before
	// the handlers' own origin gate runs.
	h = corsLayer(allowlist).Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second, // longer than the upstream timeout
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// corsLayer builds the server-wide CORS policy around the origin allow-list.
// Pre-flights are answered with 200, matching the handlers' own OPTIONS
// responses.
func corsLayer(allowlist *handler.Allowlist) *cors.Cors {
	return cors.New(cors.Options{
		AllowOriginFunc:      allowlist.AllowsOrigin,
		AllowedMethods:       []string{"POST", "OPTIONS"},
		AllowedHeaders:       []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials:     true,
		MaxAge:               86400,
		OptionsSuccessStatus: http.StatusOK,
	})
}
