package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexusd/nexuscore/internal/logger"
	"github.com/nexusd/nexuscore/pkg/config"
	"github.com/nexusd/nexuscore/pkg/nexus"
	"github.com/nexusd/nexuscore/pkg/notify"
	"github.com/nexusd/nexuscore/pkg/rpc"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the nexusd RPC server",
	Long: `Start loads nexusd's configuration, brings up the in-memory Nexus
registry and rebuild engine, and serves the control-plane RPC surface until
interrupted.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().String("config", "", "path to config file (overrides --config on root)")
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		configPath = v
	}

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logger.Info("nexusd starting", logger.TargetAddr(cfg.RPC.ListenAddr))

	registry := nexus.NewRegistry()
	bus := notify.NewBus()
	server := rpc.NewServer(cfg.RPC, cfg.Rebuild, cfg.Publish, registry, bus)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start blocks until ctx is cancelled, then shuts the HTTP server down
	// itself before returning.
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("rpc server: %w", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	drainRegistry(drainCtx, registry)

	logger.Info("nexusd stopped")
	return nil
}

// drainRegistry destroys every Nexus still held by the registry at shutdown,
// best-effort, so a forced restart does not leak rebuild goroutines.
func drainRegistry(ctx context.Context, registry *nexus.Registry) {
	for _, n := range registry.List() {
		if err := registry.Destroy(ctx, n.Name); err != nil {
			logger.Warn("failed to destroy nexus during shutdown", logger.Nexus(n.Name), logger.Err(err))
		}
	}
}
