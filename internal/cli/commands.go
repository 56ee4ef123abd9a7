package cli

import (
	"fmt"
	"playstats_backend/internal/seed"
	"strconv"

	"github.com/spf13/cobra"
)

func newServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the queue worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := opts.loadApp()
			if err != nil {
				return err
			}
			defer application.Close()
			application.Run()
			return nil
		},
	}
}

func newSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Claim and execute one batch of due queue messages",
		Long: `Run a single worker sweep and exit. Intended for an external scheduler
when queue.run_worker is disabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := opts.loadApp()
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Queue.RunSweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d errors=%d\n", result.Processed, result.Errors)
			return nil
		},
	}
}

func newRecomputeCommand(opts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "recompute [levelID]",
		Short: "Rebuild a level's aggregates from its play attempts",
		Long: `Recompute one level synchronously, or with --all enqueue a
RECOMPUTE_LEVEL_AGGREGATES message for every level.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var levelID uint64
			if !all {
				id, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil || id == 0 {
					return fmt.Errorf("invalid level id %q", args[0])
				}
				levelID = id
			}

			application, err := opts.loadApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if all {
				n, err := application.EnqueueAllRecomputes(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %d levels\n", n)
				return nil
			}
			if err := application.Recompute(cmd.Context(), uint(levelID)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "level %d recomputed\n", levelID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "enqueue a recompute for every level")
	return cmd
}

func newReplayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <messageID>",
		Short: "Reset a FAILED queue message to PENDING",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := opts.loadApp()
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Queue.Replay(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "message %s replayed\n", args[0])
			return nil
		},
	}
}

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "只执行数据库迁移，完成后退出",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Migrate = true
			application, err := opts.loadApp()
			if err != nil {
				return err
			}
			application.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "数据库迁移完成")
			return nil
		},
	}
}

func newSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Import users and levels from a YAML fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}

			application, err := opts.loadApp()
			if err != nil {
				return err
			}
			defer application.Close()

			summary, err := seed.Apply(cmd.Context(), application.DB, fixture)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "users=%d levels=%d\n", summary.Users, summary.Levels)
			return nil
		},
	}
}
