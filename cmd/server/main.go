package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"folio/internal/auth"
	"folio/internal/authflow"
	"folio/internal/avatar"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/events"
	"folio/internal/handler"
	"folio/internal/identity"
	"folio/internal/logger"
	"folio/internal/middleware"
	"folio/internal/portfolio"
	"folio/internal/profile"
	"folio/internal/session"
	"folio/internal/validation"
)

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = migrateOnly(os.Args[2:])
	} else {
		err = run()
	}
	if err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// migrateOnly runs "migrate up|down|version" against the configured database
// and exits without serving.
func migrateOnly(args []string) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	dir := database.MigrationsDir(cfg.Database.MigrationsPath)
	var status database.MigrationStatus
	switch action {
	case "up":
		status, err = db.MigrateUp(dir)
	case "down":
		status, err = db.MigrateDown(dir)
	case "version":
		status, err = db.MigrateVersion(dir)
	default:
		return fmt.Errorf("unknown migrate action %q (want up, down or version)", action)
	}
	if err != nil {
		return err
	}
	log.Info("migration finished", "action", action, "version", status.Version, "dirty", status.Dirty, "changed", status.Changed)
	return nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	// Connect to database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database connection", "error", err)
		}
	}()
	log.Info("database connection established")

	// Run migrations
	status, err := db.MigrateUp(database.MigrationsDir(cfg.Database.MigrationsPath))
	if err != nil {
		return err
	}
	if status.Dirty {
		log.Warn("database is in dirty state; a previous migration failed and manual intervention is required", "version", status.Version)
	}

	// Identity service. The admin endpoint and token never leave this process.
	kratos := identity.NewKratos(identity.KratosConfig{
		PublicURL:  cfg.Identity.PublicURL,
		AdminURL:   cfg.Identity.AdminURL,
		AdminToken: cfg.Identity.AdminToken,
		Timeout:    cfg.Identity.Timeout,
	}, log)

	checks := map[string]handler.Pinger{
		"database": handler.PingFunc(db.Health),
		"identity": kratos,
	}

	// Change notifications: Redis when configured, otherwise in-process.
	var bus events.Bus = events.NewBroadcaster()
	if cfg.Events.RedisURL != "" {
		rb, err := events.NewRedisBusFromURL(cfg.Events.RedisURL, cfg.Events.Channel, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := rb.Close(); err != nil {
				log.Error("error closing redis", "error", err)
			}
		}()
		bus = rb
		checks["events"] = rb
	}

	// Avatar storage is optional.
	var store avatar.ObjectStore
	if cfg.Avatar.Bucket != "" {
		s3Store, err := avatar.NewS3Store(context.Background(), cfg.Avatar)
		if err != nil {
			return err
		}
		store = s3Store
	} else {
		log.Info("avatar uploads disabled: AVATAR_BUCKET not set")
	}

	validator := validation.New()
	profiles := profile.NewManager(profile.NewDatastore(db.DB))
	projects := portfolio.NewManager(portfolio.NewDatastore(db.DB), validator)

	flow := authflow.NewController(kratos, profiles, bus, authflow.Config{
		Timeout: cfg.Identity.Timeout,
		Redirects: authflow.Redirects{
			Admin:   cfg.Session.AdminRedirectPath,
			Default: cfg.Session.DefaultRedirectPath,
			Landing: cfg.Session.LandingPath,
		},
	}, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics(registry)

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.PerSecond), cfg.RateLimit.Burst, metrics)
	defer limiter.Close()

	sessions := &session.Factory{
		CookieName: cfg.Session.CookieName,
		Validator:  kratos,
		Profiles:   profiles,
	}
	cookies := auth.CookieSettings{
		Name:   cfg.Session.CookieName,
		Domain: cfg.Session.CookieDomain,
		Secure: cfg.Session.CookieSecure,
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, handler.Routes{
		Config:     cfg,
		Auth:       middleware.NewAuth(sessions, metrics, log),
		RateLimit:  limiter.Middleware,
		Health:     handler.NewHealthHandler(checks, log),
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AuthFlows:  handler.NewAuthHandler(flow, cookies, log),
		Profiles:   handler.NewProfileHandler(profiles, avatar.NewService(store, cfg.Avatar), bus, log),
		AdminUsers: handler.NewAdminUsersHandler(profiles, kratos, bus, validator, log),
		Projects:   handler.NewProjectsHandler(projects, log),
	})

	root := middleware.Chain(mux,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.Recover(log),
		middleware.RequestLogger(log),
		middleware.SecurityHeaders,
		metrics.Instrument,
	)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal server errors
	serverErr := make(chan error, 1)

	go func() {
		log.Info("folio server starting", "port", cfg.Port, "env", cfg.Environment)
		serverErr <- server.ListenAndServe()
	}()

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-shutdown:
		log.Info("initiating graceful shutdown", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Warn("graceful shutdown failed, forcing shutdown", "error", err)
			if err := server.Close(); err != nil {
				return err
			}
		}

		log.Info("server shutdown complete")
	}
	return nil
}
