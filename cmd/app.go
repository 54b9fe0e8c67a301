package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/blogem/devkb/authenticator"
	"github.com/blogem/devkb/config"
	"github.com/blogem/devkb/controllers"
	"github.com/blogem/devkb/database"
	"github.com/blogem/devkb/middleware"
	"github.com/blogem/devkb/models"
	"github.com/blogem/devkb/repositories"
	"github.com/blogem/devkb/services"
	"github.com/blogem/devkb/sessions"
	"github.com/blogem/devkb/tokens"
)

// app is the wired process: storage, services and the HTTP router
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	redis    *redis.Client
	store    sessions.Store
	services *services.Services
	tokens   *tokens.JWTManager
	metrics  *middleware.Metrics
	registry *prometheus.Registry
	pipeline *middleware.Pipeline
	sweeper  *sessions.Sweeper
	router   chi.Router
}

// newApp opens storage, seeds local accounts and builds the router
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// Initialize database
	if err := database.InitializeDatabase(cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = database.GetDB()

	store, err := a.newSessionStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	// Bearer tokens are optional; their absence is not fatal
	var issuer services.TokenIssuer
	if cfg.TokensEnabled() {
		a.tokens, err = tokens.NewJWTManager(tokens.Config{Secret: []byte(cfg.SecretKey), TTL: cfg.TokenTTL})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to configure tokens: %w", err)
		}
		issuer = a.tokens
	} else {
		logger.Warn("SECRET_KEY is not set, bearer tokens are disabled")
	}

	repos := repositories.NewRepositories(a.db)
	a.services = services.NewServices(repos, services.Config{
		Sessions: store,
		Tokens:   issuer,
		Logger:   logger,
	})
	if err := a.services.Auth.SeedUsers(ctx, seedUsers(cfg)); err != nil {
		a.Close()
		return nil, err
	}
	if n, err := repos.Users.Count(ctx); err == nil {
		logger.Info("local accounts ready", "count", n)
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = middleware.NewMetrics(a.registry)

	resolvers := []middleware.Resolver{middleware.SessionResolver(store, middleware.SessionCookieName)}
	if a.tokens != nil {
		resolvers = append([]middleware.Resolver{middleware.BearerResolver(a.tokens)}, resolvers...)
	}
	a.pipeline = middleware.NewPipeline(middleware.PipelineConfig{
		Resolvers:      resolvers,
		Audit:          a.services.Audit,
		TrustedProxies: proxies,
		Logger:         logger,
		Metrics:        a.metrics,
	})

	a.sweeper = sessions.NewSweeper(store, cfg.SessionSweepInterval, logger)
	a.sweeper.AddTask(func(ctx context.Context) {
		if n := a.pipeline.Limiter().Sweep(); n > 0 {
			logger.Debug("rate limit windows removed", "count", n)
		}
	})
	a.sweeper.AddTask(a.updateSessionGauge)

	ctrl := controllers.NewControllers(a.services, controllers.Config{
		SecureCookies: cfg.IsProduction(),
		SessionTTL:    cfg.SessionTTL,
		Providers:     buildProviders(ctx, cfg, logger),
		Metrics:       a.metrics,
		Logger:        logger,
	})
	a.router = setupRouter(ctrl, a.pipeline, a.registry)

	return a, nil
}

func (a *app) newSessionStore(ctx context.Context) (sessions.Store, error) {
	opts := []sessions.Option{sessions.WithTTL(a.cfg.SessionTTL)}
	if a.cfg.RedisURL == "" {
		a.logger.Info("using in-memory session store")
		return sessions.NewMemoryStore(opts...), nil
	}

	redisOpts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	a.redis = redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.logger.Info("using redis session store", "addr", redisOpts.Addr)
	return sessions.NewRedisStore(a.redis, sessions.DefaultRedisPrefix, opts...), nil
}

func (a *app) updateSessionGauge(ctx context.Context) {
	n, err := a.store.Len(ctx)
	if err != nil {
		a.logger.Warn("failed to count sessions", "error", err)
		return
	}
	a.metrics.SetActiveSessions(n)
}

// Close releases storage connections
func (a *app) Close() error {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// seedUsers returns the built-in accounts plus the configured administrator
func seedUsers(cfg *config.Config) []services.SeedUser {
	users := services.DefaultSeedUsers()
	if cfg.AdminEmail != "" {
		users = append(users, services.SeedUser{
			Email:    cfg.AdminEmail,
			Name:     "管理员",
			Password: cfg.AdminPassword,
			Role:     models.RoleAdmin,
		})
	}
	return users
}

// buildProviders registers every OAuth provider whose credentials are configured
func buildProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) *authenticator.Registry {
	client := &http.Client{Timeout: cfg.OAuthHTTPTimeout}
	var providers []authenticator.Provider

	if cfg.GitHub.Enabled() {
		p, err := authenticator.NewGitHubProvider(authenticator.GitHubConfig{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			CallbackURL:  cfg.CallbackURL("github"),
			HTTPClient:   client,
		})
		if err != nil {
			logger.Warn("github login disabled", "error", err)
		} else {
			providers = append(providers, p)
		}
	}

	if cfg.WeChat.Enabled() {
		p, err := authenticator.NewWeChatProvider(authenticator.WeChatConfig{
			AppID:       cfg.WeChat.ClientID,
			AppSecret:   cfg.WeChat.ClientSecret,
			CallbackURL: cfg.CallbackURL("wechat"),
			HTTPClient:  client,
		})
		if err != nil {
			logger.Warn("wechat login disabled", "error", err)
		} else {
			providers = append(providers, p)
		}
	}

	if cfg.OIDC.Enabled() {
		discoveryCtx, cancel := context.WithTimeout(ctx, cfg.OAuthHTTPTimeout)
		p, err := authenticator.NewOpenIDProvider(discoveryCtx, authenticator.OpenIDConfig{
			IssuerURL:    cfg.OIDC.Issuer,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			CallbackURL:  cfg.CallbackURL("oidc"),
			HTTPClient:   client,
		})
		cancel()
		if err != nil {
			logger.Warn("oidc login disabled", "issuer", cfg.OIDC.Issuer, "error", err)
		} else {
			providers = append(providers, p)
		}
	}

	registry := authenticator.NewRegistry(providers...)
	logger.Info("oauth providers configured", "providers", registry.Names())
	return registry
}

// setupRouter configures all routes
func setupRouter(ctrl *controllers.Controllers, pipeline *middleware.Pipeline, registry *prometheus.Registry) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second)) // 60 second timeout for OAuth callbacks
	r.Use(middleware.RouteGuard(middleware.DefaultGuardConfig()))

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	ctrl.Mount(r, pipeline)

	return r
}
