package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/radarhealth/timeline/internal/config"
	"github.com/radarhealth/timeline/internal/domain/abnormal"
	"github.com/radarhealth/timeline/internal/domain/analysis"
	"github.com/radarhealth/timeline/internal/domain/encounter"
	"github.com/radarhealth/timeline/internal/platform/db"
	"github.com/radarhealth/timeline/internal/platform/llm"
	"github.com/radarhealth/timeline/internal/platform/middleware"
	"github.com/radarhealth/timeline/internal/platform/recordsource"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "timeline-server",
		Short: "Patient timeline consolidation and review service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(analyzeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the timeline API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Build the timeline for one record file and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			skip, _ := cmd.Flags().GetBool("skip-analysis")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			svc := encounter.NewService(
				recordsource.NewFileSource(file),
				abnormal.NewDetector(abnormal.DefaultThresholds()),
				newAnalyzer(cfg, logger),
				logger,
			)

			view, err := svc.BuildView(cmd.Context(), "local", 1, !skip)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
	cmd.Flags().String("file", "", "Path to a patient record JSON file")
	cmd.Flags().Bool("skip-analysis", false, "Skip the model-generated analysis")
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// newAnalyzer returns nil when no model API key is configured, which
// disables analysis and serves timelines without it.
func newAnalyzer(cfg *config.Config, logger zerolog.Logger) encounter.Analyzer {
	if cfg.LLMAPIKey == "" {
		logger.Warn().Msg("LLM_API_KEY not set; analysis is disabled")
		return nil
	}
	timeout := time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	client := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, timeout)
	return analysis.NewAnalyzer(client, analysis.Options{
		PrimaryModel:  cfg.LLMPrimaryModel,
		FallbackModel: cfg.LLMFallbackModel,
		Timeout:       timeout,
		MaxEvents:     cfg.AnalysisMaxEvents,
	}, logger)
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	var source recordsource.Source
	var dbPool *pgxpool.Pool
	switch cfg.RecordSource {
	case "http":
		source, err = recordsource.NewHTTPSource(cfg.RecordAPIURL, cfg.RecordServiceAccount)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize record api source")
		}
		logger.Info().Str("url", cfg.RecordAPIURL).Msg("using record api source")
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare database")
		}
		source = recordsource.NewPGSource(pool)
		dbPool = pool
		logger.Info().Msg("using postgres record source")
	default:
		source = recordsource.NewFileSource(cfg.RecordFile)
		logger.Info().Str("file", cfg.RecordFile).Msg("using file record source")
	}

	svc := encounter.NewService(
		source,
		abnormal.NewDetector(abnormal.DefaultThresholds()),
		newAnalyzer(cfg, logger),
		logger,
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(time.Duration(cfg.RequestTimeoutSeconds) * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if dbPool != nil {
		e.GET("/health/db", db.HealthHandler(dbPool))
	}

	apiV1 := e.Group("/api/v1")
	encounter.NewHandler(svc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	return nil
}
