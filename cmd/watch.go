package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/marcus/ck/internal/tui/watch"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Live checklist with sync status",
	GroupID: "items",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := openEngine()
		if err != nil {
			return err
		}
		defer done()

		m := watch.NewModel(eng)
		defer m.Close()

		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
