package cli

import (
	"fmt"
	"playstats_backend/internal/app"
	"playstats_backend/internal/config"

	"github.com/spf13/cobra"
)

// RootOptions 所有子命令共享的参数
type RootOptions struct {
	ConfigDir string
	Migrate   bool
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "playstats",
		Short:         "Play-session tracking and level statistics service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config", "configs", "directory containing config.yaml")
	cmd.PersistentFlags().BoolVar(&opts.Migrate, "migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newRecomputeCommand(opts))
	cmd.AddCommand(newReplayCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))

	return cmd
}

func (o *RootOptions) loadApp() (*app.App, error) {
	cfg, err := config.LoadConfig(o.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ForceMigrate = o.Migrate
	application, err := app.NewApp(cfg)
	if err != nil {
		return nil, err
	}
	application.ConfigDir = o.ConfigDir
	return application, nil
}
