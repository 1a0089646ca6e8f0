package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/dedup/internal/config"
	"github.com/ehr/dedup/internal/dedup"
	"github.com/ehr/dedup/internal/domain/patient"
	"github.com/ehr/dedup/internal/domain/pcr"
	"github.com/ehr/dedup/internal/platform/auth"
	"github.com/ehr/dedup/internal/platform/db"
	"github.com/ehr/dedup/internal/platform/middleware"
	"github.com/ehr/dedup/internal/platform/telemetry"
)

// app holds the connections and the service shared by the commands.
type app struct {
	pool    *pgxpool.Pool
	sqlite  *sql.DB
	svc     *patient.Service
	metrics *telemetry.Metrics
}

// newApp opens the patient source and, when DATABASE_URL is set, the
// result store, and builds the deduplication service on top of them.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}
	if cfg.MetricsEnabled {
		a.metrics = telemetry.NewMetrics()
	}

	if cfg.HasStore() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		logger.Info().Msg("connected to database")
	}

	var (
		source patient.Source
		tests  pcr.Source
	)
	switch cfg.Source {
	case config.SourceSQLite:
		sqlite, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sqlite = sqlite
		source = patient.NewSQLiteSource(sqlite)
		tests = pcr.NewSQLiteSource(sqlite)
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite source")
	default:
		source = patient.NewPGRepo(a.pool)
		tests = pcr.NewPGSource(a.pool)
	}

	engCfg, err := cfg.EngineConfig(patient.Schema())
	if err != nil {
		a.Close()
		return nil, err
	}
	engine, err := dedup.New[int64](engCfg, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}

	opts := []patient.Option{patient.WithTests(tests)}
	if a.pool != nil {
		opts = append(opts, patient.WithStore(patient.NewPGRepo(a.pool)))
	}
	if a.metrics != nil {
		opts = append(opts, patient.WithObserver(a.metrics))
	}
	a.svc = patient.NewService(source, cfg.Source, engine, logger, opts...)
	return a, nil
}

func (a *app) healthChecks() []db.Check {
	var checks []db.Check
	if a.pool != nil {
		checks = append(checks, db.PoolCheck(a.pool))
	}
	if a.sqlite != nil {
		checks = append(checks, db.SQLCheck("sqlite", a.sqlite))
	}
	return checks
}

func (a *app) Close() {
	if a.sqlite != nil {
		a.sqlite.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// newRouter builds the HTTP API. metrics may be nil.
func newRouter(cfg *config.Config, logger zerolog.Logger, svc *patient.Service, metrics *telemetry.Metrics, checks ...db.Check) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	if metrics != nil {
		e.Use(metrics.Middleware())
		e.GET("/metrics", metrics.Handler())
	}
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(checks...))

	jwtCfg := auth.JWTConfig{
		Secret: []byte(cfg.AuthSecret),
		Issuer: cfg.AuthIssuer,
	}
	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtCfg))
	}

	patient.NewHandler(svc).RegisterRoutes(apiV1)
	return e
}
