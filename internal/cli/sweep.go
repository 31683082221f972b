package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/monitoring"
)

// NewSweepCmd runs a single auto-submit pass over expired attempts and exits.
// Useful for cron-style deployments that do not run the long-lived server.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Force-submit expired attempts once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.Server.Mode)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			monitoring.Init()

			c, err := setupCore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer c.cleanup()

			swept, err := c.sweeper.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("sweep finished", zap.Int("swept", swept))
			return nil
		},
	}
}
