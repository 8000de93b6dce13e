package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcus/ck/internal/engine"
	"github.com/marcus/ck/internal/output"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	Short:   "Write the checklist to a JSON file (or stdout)",
	GroupID: "items",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, done, err := openEngine()
		if err != nil {
			return err
		}
		defer done()

		if len(args) == 0 {
			return eng.Export(os.Stdout)
		}

		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		if err := eng.Export(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		output.Success("Exported to %s", args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	Short:   "Replace the checklist from an exported JSON file",
	GroupID: "items",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer f.Close()

		eng, done, err := openEngine()
		if err != nil {
			return err
		}
		defer done()

		if err := eng.Import(f); err != nil {
			if errors.Is(err, engine.ErrInvalidFormat) {
				output.Error("%s is not a ck export: %v", args[0], err)
				return err
			}
			return err
		}

		snap := eng.Items()
		output.Success("Imported %d items", len(snap))
		printStatus(eng)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
