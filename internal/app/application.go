package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"checkout-relay-backend/internal/config"
	"checkout-relay-backend/internal/handlers"
	"checkout-relay-backend/internal/middleware"
	"checkout-relay-backend/internal/payments"
	"checkout-relay-backend/internal/payments/stripe"
	"checkout-relay-backend/internal/service"
	"checkout-relay-backend/pkg/cache"
	"checkout-relay-backend/pkg/logger"
	"checkout-relay-backend/pkg/pidfile"
	"checkout-relay-backend/pkg/validator"
)

type Options struct {
	// Provider replaces the Stripe provider built from configuration.
	Provider payments.Provider
	// RateLimitStore replaces the store selected by RATE_LIMIT_STORE.
	RateLimitStore middleware.RateLimitStore
}

type Application struct {
	cfg     *config.Config
	options Options

	cache       *cache.Cache
	rateLimiter *middleware.RateLimitManager
	limitStore  middleware.RateLimitStore
	provider    payments.Provider

	services serviceContainer
	handlers handlerContainer

	router *gin.Engine
	server *http.Server
}

type serviceContainer struct {
	Checkout *service.CheckoutService
}

type handlerContainer struct {
	Checkout *handlers.CheckoutHandler
}

func New(cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	validator.Init()

	app := &Application{
		cfg:     cfg,
		options: opts,
	}

	if err := app.initProvider(); err != nil {
		return nil, err
	}

	if err := app.initRateLimiter(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHandlers()

	if err := app.initRouter(); err != nil {
		app.releaseResources()
		return nil, err
	}

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return app, nil
}

// Run binds the configured port and serves until Shutdown is called.
func (a *Application) Run() error {
	listener, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
	}
	return a.Serve(listener)
}

// Serve records the PID file once listener is bound and then serves requests on it.
func (a *Application) Serve(listener net.Listener) error {
	logger.Info("Server listening", map[string]interface{}{
		"addr":        listener.Addr().String(),
		"environment": a.cfg.Environment,
		"products":    a.services.Checkout.Products(),
	})

	if a.cfg.PIDFile != "" {
		path, err := pidfile.Write(a.cfg.PIDFile)
		if err != nil {
			_ = listener.Close()
			return err
		}
		logger.Info("PID file written", map[string]interface{}{"path": path})
	}

	return a.server.Serve(listener)
}

func (a *Application) Shutdown(ctx context.Context) error {
	var shutdownErr error
	if a.server != nil {
		shutdownErr = a.server.Shutdown(ctx)
	}

	a.releaseResources()

	return shutdownErr
}

func (a *Application) releaseResources() {
	if a.rateLimiter != nil {
		if err := a.rateLimiter.Shutdown(); err != nil {
			logger.Error(err, "Failed to stop rate limiter", nil)
		}
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.Error(err, "Failed to close cache connection", nil)
		}
	}
}

func (a *Application) Router() *gin.Engine {
	return a.router
}

func (a *Application) initProvider() error {
	if a.options.Provider != nil {
		a.provider = a.options.Provider
		return nil
	}

	provider, err := stripe.NewProvider(a.cfg.StripeSecretKey, stripe.Options{
		APIVersion:           a.cfg.StripeAPIVersion,
		BaseURL:              a.cfg.StripeAPIBaseURL,
		Timeout:              time.Duration(a.cfg.StripeTimeoutSeconds) * time.Second,
		MaxRequestsPerSecond: a.cfg.StripeMaxRequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize stripe provider: %w", err)
	}

	a.provider = provider
	return nil
}

func (a *Application) initRateLimiter() error {
	if a.options.RateLimitStore != nil {
		a.limitStore = a.options.RateLimitStore
		return nil
	}

	if a.cfg.RateLimitStore == config.RateLimitStoreRedis {
		logger.Info("Connecting to Redis for rate limiting", map[string]interface{}{"addr": a.cfg.RedisURL})

		redisCache, err := cache.NewCache(a.cfg.RedisURL, true)
		if err != nil {
			return fmt.Errorf("failed to initialize rate limit store: %w", err)
		}
		store, err := middleware.NewRedisRateLimitStore(redisCache)
		if err != nil {
			_ = redisCache.Close()
			return err
		}

		a.cache = redisCache
		a.limitStore = store
		return nil
	}

	a.rateLimiter = middleware.NewRateLimitManager(context.Background())
	a.limitStore = a.rateLimiter
	return nil
}

func (a *Application) initServices() {
	a.services.Checkout = service.NewCheckoutService(a.provider, service.CheckoutConfig{
		Prices:               a.cfg.PriceIDs,
		RedirectOnCompletion: payments.RedirectPolicy(a.cfg.RedirectOnCompletion),
		ReturnURL:            a.cfg.ReturnURL,
	})
}

func (a *Application) initHandlers() {
	a.handlers.Checkout = handlers.NewCheckoutHandler(a.services.Checkout)
}

func (a *Application) initRouter() error {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(a.cfg.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(logger.GinLogger())
	if a.cfg.EnableMetrics {
		router.Use(middleware.MetricsMiddleware())
	}
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.RateLimitMiddleware(a.cfg, a.limitStore))
	router.Use(middleware.CORSMiddleware(a.cfg.CORSOrigins))
	router.Use(middleware.JSONBodyMiddleware(a.cfg.MaxBodyBytes))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if a.cfg.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	for _, product := range a.services.Checkout.Products() {
		router.POST(product.CreateSessionPath(), a.handlers.Checkout.CreateSession(product))
	}
	router.GET("/session-status", a.handlers.Checkout.SessionStatus)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})

	a.router = router
	return nil
}

// IsServerClosed reports whether err only signals a completed shutdown.
func IsServerClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed)
}
