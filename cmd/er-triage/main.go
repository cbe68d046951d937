package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ehr/ertriage/internal/config"
	"github.com/ehr/ertriage/internal/console"
	"github.com/ehr/ertriage/internal/domain/triage"
	"github.com/ehr/ertriage/internal/platform/db"
	"github.com/ehr/ertriage/internal/platform/middleware"
	"github.com/ehr/ertriage/internal/platform/telemetry"
	"github.com/ehr/ertriage/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "er-triage",
		Short:        "Emergency room triage desk",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(consoleCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the triage HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run the interactive triage console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the discharge record schema",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			schema, dir := migrateTarget(cmd, cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, afero.NewOsFs(), dir, newLogger(cfg, os.Stderr))
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			schema, dir := migrateTarget(cmd, cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, afero.NewOsFs(), dir, newLogger(cfg, os.Stderr))
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			printStatus(os.Stdout, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// migrateTarget resolves the schema and directory flags, falling back to
// the configured values.
func migrateTarget(cmd *cobra.Command, cfg *config.Config) (schema, dir string) {
	schema, _ = cmd.Flags().GetString("schema")
	dir, _ = cmd.Flags().GetString("dir")
	if schema == "" {
		schema = cfg.DBSchema
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	return schema, dir
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// newLogger writes JSON to out, or human-readable lines in development.
// An unknown LOG_LEVEL falls back to info.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(out)
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// buildSink opens the configured discharge sink. The returned pool is nil
// unless the sink is backed by Postgres; the caller closes it.
func buildSink(ctx context.Context, cfg *config.Config, fs afero.Fs) (triage.DischargeSink, *pgxpool.Pool, error) {
	switch cfg.DischargeSink {
	case config.SinkFile:
		return triage.NewFileSink(fs, cfg.DischargeLogPath), nil, nil
	case config.SinkMemory:
		return triage.NewMemorySink(), nil, nil
	case config.SinkPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		return triage.NewPGSink(pool), pool, nil
	}
	return nil, nil, fmt.Errorf("unknown discharge sink %q", cfg.DischargeSink)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runConsole(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Log lines go to stderr; routine admissions stay quiet at the desk.
	logger := newLogger(cfg, os.Stderr)
	if strings.EqualFold(cfg.LogLevel, "info") {
		logger = logger.Level(zerolog.WarnLevel)
	}

	sink, pool, err := buildSink(ctx, cfg, afero.NewOsFs())
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	svc := triage.NewService(cfg.Capacities(), sink, logger)
	out, color := console.TerminalOutput(os.Stdout)
	return console.New(svc, os.Stdin, out, console.WithColor(color), console.WithLogger(logger)).Run(ctx)
}

func runServer() error {
	// Config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Logger
	logger := newLogger(cfg, os.Stdout)

	// Discharge sink
	ctx := context.Background()
	sink, pool, err := buildSink(ctx, cfg, afero.NewOsFs())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open discharge sink")
	}
	if pool != nil {
		defer pool.Close()
		logger.Info().Msg("connected to database")
	}
	logger.Info().Str("sink", cfg.DischargeSink).Msg("discharge sink ready")

	svc := triage.NewService(cfg.Capacities(), sink, logger)
	e := newServer(cfg, logger, svc, pool)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Int("doctors", cfg.DoctorCapacity).
			Int("rooms", cfg.RoomCapacity).
			Int("equipment", cfg.EquipmentCapacity).
			Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires middleware, routes and the service's event publishers.
// pool may be nil, in which case /health/db is not registered.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *triage.Service, pool *pgxpool.Pool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := telemetry.NewProvider("triage")
	hub := websocket.NewHub(logger)
	metrics.RegisterGauge("ws_clients", "Connected station feeds.", func() float64 {
		return float64(hub.ClientCount())
	})
	metrics.RegisterGauge("ws_dropped_events", "Events skipped for slow station feeds.", func() float64 {
		return float64(hub.Dropped())
	})
	svc.SetPublisher(triage.Publishers{
		newMetricsRecorder(metrics, svc),
		&queueFeed{hub: hub, logger: logger},
	})

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.MetricsMiddleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader, middleware.StationHeader},
	}))

	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	triage.NewHandler(svc).RegisterRoutes(apiV1)
	websocket.NewHandler(hub, cfg.CORSOrigins, topicQueue).RegisterRoutes(apiV1)

	e.GET("/metrics", metrics.PrometheusHandler())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"sink":      cfg.DischargeSink,
			"resources": svc.Resources(),
			"queue":     svc.Stats(),
		})
	})

	// DB health check endpoint
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	}

	return e
}
