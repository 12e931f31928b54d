package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/ordpilot/internal/orchestrator"
	"github.com/lucasnoah/ordpilot/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard",
	Long: `Start a browser UI on localhost showing generation runs, per-stage results,
spacing violations, layout-fix rounds and rendered schematics, with a live
event stream per run. POST /api/runs starts a new generation.

The retrieval index is refreshed at startup and kept current while serving.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		if addr == "" {
			addr = cfg.Serve.Addr
		}
		ctx := cmd.Context()

		logger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync()

		database, closeDB, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer closeDB()

		store, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}

		gen, err := buildGenerator(ctx, cfg)
		if err != nil {
			return fmt.Errorf("build generator: %w", err)
		}

		var retriever orchestrator.Retriever
		index, closeIndex, err := openIndex(ctx, cfg)
		if err != nil {
			logger.Warn("Retrieval disabled", zap.Error(err))
		} else {
			defer closeIndex()
			retriever = index
			if stats, err := index.Rebuild(ctx); err != nil {
				logger.Warn("Index rebuild failed", zap.Error(err))
			} else {
				logger.Info("Index ready",
					zap.Int("embedded", stats.Embedded),
					zap.Int("removed", stats.Removed),
					zap.Int("total", stats.Total))
			}
			go func() {
				if err := index.Watch(ctx, func(format string, args ...any) {
					logger.Info(fmt.Sprintf(format, args...))
				}); err != nil && ctx.Err() == nil {
					logger.Warn("Example watcher stopped", zap.Error(err))
				}
			}()
		}

		host := newValidator(cfg)
		host.SetProgress(os.Stderr)
		loop := orchestrator.NewLoop(store, database, gen, retriever, host, promptLibrary(cfg), loopConfig(cfg))

		logger.Info("Serving dashboard", zap.String("addr", addr))
		return web.NewServer(store, database, loop, addr).Start()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8321)")
}
