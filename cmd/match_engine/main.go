package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/trialmatch/go-match-engine/api"
	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/internal/analytics"
	"github.com/trialmatch/go-match-engine/internal/engine"
	"github.com/trialmatch/go-match-engine/internal/ingest"
	"github.com/trialmatch/go-match-engine/internal/logging"
	"github.com/trialmatch/go-match-engine/internal/screening"
)

const appVersion = "1.0.0"

// maxRequestBytes caps request bodies; match queries are small.
const maxRequestBytes = 1 << 20

func main() {
	app := &cli.App{
		Name:    "match_engine",
		Usage:   "Clinical trial patient matching and scoring engine",
		Version: appVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override the configured log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Load the patient dataset and serve the match API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "Port to serve on (overrides config)",
					},
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "Directory for persisted snapshots (overrides config)",
					},
				},
			},
			{
				Name:   "validate",
				Usage:  "Parse the config, build the dataset once, and report coverage",
				Action: validateCommand,
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(c *cli.Context) error {
					fmt.Println(appVersion)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("data-dir") {
		cfg.Dataset.DataDir = c.String("data-dir")
	}
	return cfg, nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "match-engine")
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	eng := engine.NewEngine(cfg.Dataset.DataDir, cfg, engine.WithLogger(logger))
	defer eng.Close()

	// A snapshot restored from the data dir wins over a fresh build. When
	// neither works the server still comes up and answers 503 until a
	// reload succeeds.
	if _, err := eng.GetDataset(cfg.Dataset.Name); err != nil {
		if err := eng.LoadDataset(cfg.Dataset); err != nil {
			logger.Error("initial dataset load failed; serving without a snapshot",
				zap.String("dataset", cfg.Dataset.Name),
				zap.Error(err))
		}
	}

	if cfg.Log.Format != "console" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		api.RequestIDMiddleware(),
		api.RequestLoggerMiddleware(logger),
		api.CORSMiddleware(),
		api.RequestSizeLimitMiddleware(maxRequestBytes),
	)

	analyticsSvc := analytics.NewService(eng, cfg.Dataset.DataDir, logger)
	api.SetupRoutes(router, api.NewAPI(eng, analyticsSvc, eng.ScreeningEngine(), cfg.Dataset.Name, logger))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("starting server", zap.String("addr", addr), zap.String("dataset", cfg.Dataset.Name))
	if err := router.Run(addr); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func validateCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, "console", "match-engine")
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ingester := ingest.NewService(
		screening.NewEngine(screening.NewMemoryRuleSetStore()),
		ingest.WithLogger(logger),
	)
	result, err := ingester.BuildSnapshot(context.Background(), cfg.Dataset, nil)
	if err != nil {
		return fmt.Errorf("dataset %q failed validation: %w", cfg.Dataset.Name, err)
	}

	stats := result.Stats
	fmt.Printf("dataset %q OK\n", cfg.Dataset.Name)
	fmt.Printf("  source:        %s\n", stats.Source)
	fmt.Printf("  rows read:     %d (skipped %d, bad dates %d)\n", stats.TotalRows, stats.SkippedRows, stats.BadDates)
	fmt.Printf("  patients:      %d\n", stats.PatientCount)
	fmt.Printf("  conditions:    %d\n", stats.ConditionCount)
	fmt.Printf("  gazetteer:     %d zips\n", stats.GazetteerSize)
	fmt.Printf("  zip coverage:  %.1f%%\n", stats.ZipCoveragePercent)
	return nil
}
