package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanq16/rangeflow/internal/api"
	"github.com/tanq16/rangeflow/internal/config"
	"github.com/tanq16/rangeflow/internal/engine"
	"github.com/tanq16/rangeflow/internal/prober"
	"github.com/tanq16/rangeflow/internal/store"
	"github.com/tanq16/rangeflow/internal/utils"
)

func newServeCmd() *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve [--listen ADDR]",
		Short: "Run the download API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(overrides)
			if err != nil {
				return err
			}
			log := utils.GetLogger("serve")

			var st store.TaskStore = store.NewMemory()
			if cfg.StoreFile != "" {
				fileStore, err := store.OpenYAMLFile(cfg.StoreFile)
				if err != nil {
					return err
				}
				st = fileStore
			}
			eng := newEngine(cmd.Context(), cfg, st, cfg.DefaultWorkers)

			server := &http.Server{
				Addr:              cfg.Listen,
				Handler:           api.NewHandler(eng),
				ReadHeaderTimeout: 10 * time.Second,
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("listen", cfg.Listen).Str("storage", cfg.StorageRoot).Msg("API server started")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				eng.Close()
				return err
			case <-ctx.Done():
			}
			log.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err = server.Shutdown(shutdownCtx)
			eng.Close()
			return err
		},
	}

	cmd.Flags().StringVarP(&overrides.Listen, "listen", "l", "", "Address the API listens on (default :8080)")
	cmd.Flags().IntVar(&overrides.MaxDownloads, "max-downloads", 0, "Downloads executing at the same time (default 4)")
	cmd.Flags().IntVar(&overrides.QueueSize, "queue-size", 0, "Downloads waiting for a free slot (default 16)")
	cmd.Flags().IntVarP(&overrides.DefaultWorkers, "connections", "c", 0, "Default connections per download (default 4, max 16)")
	cmd.Flags().StringVar(&overrides.StoreFile, "store-file", "", "Persist task records to this YAML file")
	return cmd
}

// newEngine wires the shared client, prober and store into an engine.
// Connection counts above 5 enable socket tuning.
func newEngine(ctx context.Context, cfg config.Config, st store.TaskStore, workers int) *engine.Engine {
	client := utils.NewRangeClient(cfg.HTTPClient(workers > 5))
	if ctx == nil {
		ctx = context.Background()
	}
	var presigner prober.Presigner
	if s3Presigner, err := prober.NewS3Presigner(ctx, cfg.S3.Profile, cfg.S3.Region, cfg.S3.PresignTTL); err != nil {
		log := utils.GetLogger("serve")
		log.Warn().Err(err).Msg("S3 sources disabled")
	} else {
		presigner = s3Presigner
	}
	return engine.New(st, prober.New(client, presigner), client, cfg.EngineOptions())
}
