package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nmwangi/dukatrans/internal/catalog"
	"github.com/nmwangi/dukatrans/internal/config"
	"github.com/nmwangi/dukatrans/internal/httpapi"
	"github.com/nmwangi/dukatrans/internal/jobs"
	"github.com/nmwangi/dukatrans/internal/logging"
	"github.com/nmwangi/dukatrans/internal/metrics"
	"github.com/nmwangi/dukatrans/internal/processor"
	"github.com/nmwangi/dukatrans/internal/translate"
	"github.com/nmwangi/dukatrans/internal/vision"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "dukatrans: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dukatrans",
		Short:        "Catalog image and text translation job engine",
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCmd(), newScanCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control surface and the timer trigger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			orch, collector := buildEngine(cfg, logger)

			timer := jobs.NewTimer(orch, logger)
			if err := timer.Schedule(cfg.CronExpr); err != nil {
				return fmt.Errorf("schedule timer trigger: %w", err)
			}
			defer timer.Stop()

			server := httpapi.NewServer(orch, collector, logger, httpapi.Options{
				Addr: cfg.HTTPAddr(),
			})
			logger.Info().Str("addr", cfg.HTTPAddr()).Msg("starting http server")
			return server.Start(cmd.Context())
		},
	}
}

func newScanCmd() *cobra.Command {
	var chunkSize int
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one full catalog scan and wait for it to finish",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			orch, _ := buildEngine(cfg, logger)
			if err := orch.StartFullScan(chunkSize); err != nil {
				return err
			}

			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-ticker.C:
				}
				snap := orch.Status().Snapshot()
				if snap.State != jobs.StateComplete {
					continue
				}
				out, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				if snap.Failed > 0 {
					return fmt.Errorf("%d of %d items failed", snap.Failed, snap.Total)
				}
				return nil
			}
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Items processed concurrently per chunk (0 uses CHUNK_SIZE)")
	return cmd
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	// A missing .env file is fine; real deployments configure the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	return cfg, logger, nil
}

func buildEngine(cfg *config.Config, logger zerolog.Logger) (*jobs.Orchestrator, *metrics.Collector) {
	catalogClient := catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogToken, cfg.RemoteTimeout)
	detector := vision.NewClient(cfg.VisionBaseURL, cfg.VisionAPIKey, cfg.RemoteTimeout)
	translator := translate.NewTranslator(
		cfg.TranslateBaseURL, cfg.TranslateAPIKey,
		cfg.SourceLang, cfg.TargetLang,
		cfg.RemoteTimeout,
	)

	proc := processor.New(catalogClient, detector, translator, processor.Config{
		ExchangeRate:  cfg.ExchangeRate,
		MarkupPercent: cfg.MarkupPercent,
	}, logger)

	collector := metrics.New()
	orch := jobs.NewOrchestrator(catalogClient, proc, jobs.NewStatus(), jobs.Config{
		ChunkSize:  cfg.ChunkSize,
		ChunkPause: cfg.ChunkPause,
	}, collector, logger)

	return orch, collector
}
