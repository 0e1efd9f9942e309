package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"prophub/internal/access"
	"prophub/internal/auth"
	"prophub/internal/config"
	"prophub/internal/domain/models"
	"prophub/internal/handler"
	"prophub/internal/handler/sse"
	"prophub/internal/middleware"
	"prophub/internal/repository/postgres"
	"prophub/internal/routes"
	"prophub/internal/service"
	"prophub/internal/session"
	"prophub/internal/session/memory"
	"prophub/internal/session/supabase"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, logCloser, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"session_backend", cfg.SessionBackend,
		"table_prefix", cfg.TablePrefix,
	)

	verifier, err := newVerifier(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create token verifier: %v", err)
	}
	defer verifier.Close()

	table, err := loadRoutes(cfg)
	if err != nil {
		log.Fatalf("Failed to load route policy: %v", err)
	}
	logger.Info("route policy loaded", "routes", len(table.Entries()), "file", cfg.RoutesFile)

	ctx := context.Background()
	mux := http.NewServeMux()

	var directory session.Directory
	var profileHandler *handler.ProfileHandler

	switch cfg.SessionBackend {
	case config.BackendMemory:
		dir, err := memory.ParseSeed(cfg.MemoryRoles)
		if err != nil {
			log.Fatalf("Failed to parse MEMORY_ROLES: %v", err)
		}
		directory = dir
		logger.Warn("using in-memory sessions; role changes are not persisted")

	default:
		pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL, postgres.DefaultPoolSettings())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		logger.Info("database connected")

		tables := postgres.NewTableNames(cfg.TablePrefix)
		if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}

		repoConfig := &postgres.RepositoryConfig{Pool: pool, Tables: tables, Logger: logger}
		profileRepo := postgres.NewProfileRepository(repoConfig)
		auditRepo := postgres.NewRoleAuditRepository(repoConfig)
		txManager := postgres.NewTransactionManager(pool, logger)

		var store supabase.Store
		if cfg.RedisURL != "" {
			client, err := supabase.NewRedisClient(ctx, cfg.RedisURL)
			if err != nil {
				log.Fatalf("Failed to connect to redis: %v", err)
			}
			defer client.Close()
			store = supabase.NewRedisStore(client)
			logger.Info("redis connected", "role_cache_ttl", cfg.RoleCacheTTL)
		} else {
			logger.Warn("REDIS_URL not set; role cache and live session events disabled")
		}

		dir := supabase.NewDirectory(profileRepo, store, cfg.RoleCacheTTL, logger)
		directory = dir

		profileService := service.NewProfileService(profileRepo, auditRepo, txManager, dir, logger)
		profileHandler = handler.NewProfileHandler(profileService, logger)
	}

	metrics := access.NewMetrics(prometheus.DefaultRegisterer)
	guard := access.NewGuard(directory, cfg.RoleResolveTimeout, metrics, logger)

	accessHandler := handler.NewAccessHandler(guard, table, logger)
	streamHandler := handler.NewAccessStreamHandler(guard, table, &sse.Config{KeepAliveInterval: cfg.SSEKeepAlive}, logger)

	// Health check and metrics
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	// Gated pages, one per policy entry
	handler.RegisterPages(mux, guard, table)

	// Access state
	mux.HandleFunc("GET /api/users/me/resolution", accessHandler.GetResolution)
	mux.HandleFunc("GET /api/users/me/access", accessHandler.GetAccess)
	mux.HandleFunc("GET /api/access/stream", streamHandler.Stream) // SSE

	// Profiles and role administration need the database
	if profileHandler != nil {
		requireAdmin := guard.Require("/api/users/{id}/role", models.NewRoleSet(models.RoleAdmin))
		requireStaff := guard.Require("/api/users/{id}/role-changes",
			models.NewRoleSet(models.RoleAdmin, models.RolePropertyManager))

		mux.HandleFunc("GET /api/users/me", profileHandler.GetMe)
		mux.Handle("PATCH /api/users/{id}/role", requireAdmin(http.HandlerFunc(profileHandler.UpdateRole)))
		mux.Handle("GET /api/users/{id}/role-changes", requireStaff(http.HandlerFunc(profileHandler.ListRoleChanges)))
	}

	// Build middleware chain
	var h http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	h = middleware.AuthMiddleware(verifier, logger)(h)
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		ExposedHeaders:   []string{access.HeaderAccessState},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	// Open SSE streams end when shutdown starts instead of holding it up
	baseCtx, cancelStreams := context.WithCancel(ctx)
	defer cancelStreams()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelStreams)

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// newVerifier picks HS256 when JWT_SECRET is set, JWKS otherwise
func newVerifier(cfg *config.Config, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.JWTSecret != "" {
		logger.Info("using HS256 token verification")
		return auth.NewHMACVerifier(cfg.JWTSecret)
	}
	return auth.NewJWTVerifier(cfg.SupabaseJWKSURL, logger)
}

func loadRoutes(cfg *config.Config) (*routes.Table, error) {
	if cfg.RoutesFile != "" {
		return routes.LoadFile(cfg.RoutesFile)
	}
	return routes.Default()
}
