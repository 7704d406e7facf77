package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go-and-tell/config"
	"go-and-tell/handlers"
	"go-and-tell/middleware"
	"go-and-tell/models"
	"go-and-tell/services"
	"go-and-tell/utils"
	"go-and-tell/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "goandtell",
		Short:         "Go and Tell testimony and witness points backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := config.LoadDotEnv(envFile); err != nil {
				fmt.Fprintln(os.Stderr, "No .env file found, reading environment variables directly")
			}
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	cmd.AddCommand(serveCmd(), migrateCmd(), reconcileCmd())
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	return cfg.Build()
}

func openDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// setup loads config, logger and database for commands that need the store.
func setup() (config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("build logger: %w", err)
	}
	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return cfg, log, nil, err
	}
	return cfg, log, db, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			if err := models.Migrate(db); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			log.Info("migrations applied")
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	var profileID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild points summaries from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			points := services.NewPointsService(db, log)
			if profileID != "" {
				res, err := points.Reconcile(cmd.Context(), profileID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s drifted=%t total=%d\n", res.WitnessProfileID, res.Drifted, res.After.TotalPoints)
				return nil
			}
			report, err := points.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked=%d repaired=%d failed=%d\n", report.Checked, report.Repaired, report.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&profileID, "profile", "", "only reconcile this witness profile id")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log, db)
		},
	}
}

func serve(parent context.Context, cfg config.Config, log *zap.Logger, db *gorm.DB) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := models.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	points := services.NewPointsService(db, log)
	profiles := services.NewProfileService(db, log)
	testimonies := services.NewTestimonyService(db, points, log)
	outreach := services.NewOutreachService(db, points, log)

	enhancer, err := services.NewGeminiEnhancer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		return err
	}
	if cfg.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY not set, text enhancement disabled")
	}

	var uploader handlers.PhotoUploader
	if cfg.R2.Uploader().Enabled() {
		r2, err := utils.NewR2Uploader(ctx, cfg.R2.Uploader())
		if err != nil {
			return fmt.Errorf("failed to initialize R2 client: %w", err)
		}
		uploader = r2
	} else {
		log.Warn("R2 not configured, photo uploads disabled")
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             10 * 1024 * 1024,
		DisableStartupMessage: true,
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, log, "/healthz"))
	app.Use(middleware.UserContextMiddleware(log))

	handlers.SetupSystemRoutes(app, db)
	api := app.Group("/api/v1")
	handlers.SetupPointsRoutes(api, points, log)
	handlers.SetupProfileRoutes(api, profiles, uploader, log)
	handlers.SetupTestimonyRoutes(api, testimonies, outreach, log)
	handlers.SetupEnhanceRoutes(api, enhancer, log)
	handlers.SetupRPCRoutes(app, points, log)

	if cfg.ReconcileInterval > 0 {
		worker := workers.NewReconcileWorker(points, cfg.ReconcileInterval, log)
		if err := worker.Start(ctx); err != nil {
			return err
		}
		defer worker.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + cfg.Port)
	}()
	log.Info("server running", zap.String("port", cfg.Port), zap.Strings("origins", cfg.AllowedOrigins))

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}
