package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fedopt-io/fedopt/pkg/checkpoint"
)

var ckptDir string

func NewCheckpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints [list|view|latest]",
		Short: "Checkpoints manager",
		Long:  `List and inspect saved round checkpoints.`,
	}

	listCmd := &cobra.Command{
		Use:   "list <run-id>",
		Short: "List checkpointed rounds",
		Long:  `List the rounds a run has checkpointed.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			store, err := checkpoint.NewStore(ckptDir, args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			rounds, err := store.Rounds()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, rounds)
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view <run-id> <round>",
		Short: "View checkpoint",
		Long:  `View the checkpoint saved for a round.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			round, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			store, err := checkpoint.NewStore(ckptDir, args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			rec, err := store.Load(round)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, rec)
		},
	}

	latestCmd := &cobra.Command{
		Use:   "latest <run-id>",
		Short: "View latest checkpoint",
		Long:  `View the most recent checkpoint of a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			store, err := checkpoint.NewStore(ckptDir, args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			rec, err := store.Latest()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, rec)
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(viewCmd)
	cmd.AddCommand(latestCmd)
	cmd.PersistentFlags().StringVarP(&ckptDir, "dir", "d", "./checkpoints", "Checkpoint directory")

	return cmd
}
