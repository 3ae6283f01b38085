package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tanq16/rangeflow/internal/config"
	"github.com/tanq16/rangeflow/internal/engine"
	"github.com/tanq16/rangeflow/internal/output"
	"github.com/tanq16/rangeflow/internal/store"
	"github.com/tanq16/rangeflow/internal/utils"
)

func newGetCmd() *cobra.Command {
	var outputName string
	var connections int

	cmd := &cobra.Command{
		Use:   "get [URL] [--output NAME] [--connections N]",
		Short: "Download a single file in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.Config{DefaultWorkers: connections})
			if err != nil {
				return err
			}
			interactive := term.IsTerminal(int(os.Stdout.Fd()))
			if interactive {
				// keep log lines from tearing through the bar
				if logFile, err := os.OpenFile(utils.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
					defer logFile.Close()
					utils.SetLogOutput(logFile)
				}
			}

			eng := newEngine(cmd.Context(), cfg, store.NewMemory(), cfg.DefaultWorkers)
			defer eng.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			task, err := eng.Start(ctx, engine.StartRequest{URL: args[0], FileName: outputName, Workers: cfg.DefaultWorkers})
			if err != nil {
				output.PrintError("Could not start download: " + err.Error())
				return err
			}
			if !interactive {
				output.PrintInfo(fmt.Sprintf("Downloading %s (%s, %d connections)", task.FileName, utils.FormatBytes(uint64(task.FileSize)), task.Workers))
			}

			p, err := followTask(ctx, eng, task, interactive)
			if err != nil {
				return err
			}
			switch p.Status {
			case utils.StatusCompleted:
				output.PrintSuccess(fmt.Sprintf("Downloaded %s (%s)", task.FilePath, utils.FormatBytes(uint64(p.FileSize))))
				return nil
			case utils.StatusCancelled:
				output.PrintWarning("Download cancelled")
				return fmt.Errorf("download of %s cancelled", task.FileName)
			default:
				output.PrintError(output.FormatTask(p))
				return fmt.Errorf("download of %s failed", task.FileName)
			}
		},
	}

	cmd.Flags().StringVarP(&outputName, "output", "o", "", "Output file name (inferred from the server if not provided)")
	cmd.Flags().IntVarP(&connections, "connections", "c", 0, "Number of connections (above 5 enables high-thread-mode)")
	return cmd
}

// followTask polls the task until it settles, drawing a bar when stdout is a
// terminal. An interrupt cancels the download and keeps waiting for the
// engine to settle it.
func followTask(ctx context.Context, eng *engine.Engine, task utils.DownloadTask, interactive bool) (engine.Progress, error) {
	var bar *progressbar.ProgressBar
	if interactive {
		bar = progressbar.DefaultBytes(task.FileSize, task.FileName)
	}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	interrupted := ctx.Done()
	for {
		select {
		case <-interrupted:
			interrupted = nil
			if err := eng.Cancel(task.ID); err != nil {
				log := utils.GetLogger("get")
				log.Debug().Err(err).Msg("Cancel after interrupt")
			}
		case <-ticker.C:
		}
		p, err := eng.GetProgress(task.ID)
		if err != nil {
			return engine.Progress{}, err
		}
		if bar != nil {
			bar.Set64(p.DownloadedBytes)
		}
		if p.Status.Terminal() {
			if bar != nil {
				if p.Status == utils.StatusCompleted {
					bar.Finish()
				} else {
					bar.Exit()
				}
				fmt.Println()
			}
			return p, nil
		}
	}
}
