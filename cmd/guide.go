package cmd

import (
	_ "embed"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/ck/internal/output"
)

//go:embed guide.md
var guideText string

var guidePlain bool

var guideCmd = &cobra.Command{
	Use:     "guide",
	Short:   "Show the ck user guide",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		if guidePlain {
			fmt.Println(guideText)
			return nil
		}
		rendered, err := output.RenderMarkdown(guideText)
		if err != nil {
			// fall back to raw markdown rather than failing
			fmt.Println(guideText)
			return nil
		}
		fmt.Println(rendered)
		return nil
	},
}

func init() {
	guideCmd.Flags().BoolVar(&guidePlain, "plain", false, "Print raw markdown")
	rootCmd.AddCommand(guideCmd)
}
