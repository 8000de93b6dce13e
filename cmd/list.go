package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/ck/internal/output"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List checklist items",
	GroupID: "items",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := openEngine()
		if err != nil {
			return err
		}
		defer done()

		snap := eng.Items()
		if listJSON {
			return output.JSON(snap)
		}
		fmt.Println(output.FormatList(snap))
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(listCmd)
}
