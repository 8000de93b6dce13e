package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/ck/internal/engine"
	"github.com/marcus/ck/internal/output"
	"github.com/marcus/ck/internal/status"
)

var syncStatusOnly bool

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Push the checklist to the cloud now",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := openEngine()
		if err != nil {
			return err
		}
		defer done()

		if syncStatusOnly {
			printStatus(eng)
			return nil
		}

		err = eng.Sync()
		printStatus(eng)
		if errors.Is(err, engine.ErrSyncInFlight) {
			return nil
		}
		return err
	},
}

var loadCmd = &cobra.Command{
	Use:     "load",
	Short:   "Replace the local checklist with the cloud copy",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := openEngine()
		if err != nil {
			return err
		}
		defer done()

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !confirm("Cloud data replaces local state. Continue?") {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := eng.LoadFromCloud(); err != nil {
			if errors.Is(err, engine.ErrNotConfigured) || errors.Is(err, engine.ErrNotSignedIn) {
				printStatus(eng)
				return nil
			}
			printStatus(eng)
			return err
		}
		fmt.Println(output.FormatList(eng.Items()))
		printStatus(eng)
		return nil
	},
}

// printStatus renders the tracker's current transition.
func printStatus(eng *engine.Engine) {
	state, msg := eng.Tracker().Current()
	fmt.Println(output.FormatTransition(status.Transition{
		State:    state,
		Message:  msg,
		SyncedAt: eng.Tracker().LastSyncedAt(),
	}))
}

func init() {
	syncCmd.Flags().BoolVar(&syncStatusOnly, "status", false, "Show sync status without syncing")
	loadCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(syncCmd, loadCmd)
}
