package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/ck/internal/output"
)

var addCmd = &cobra.Command{
	Use:     "add <item>",
	Short:   "Add a checklist item",
	GroupID: "items",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := strings.Join(args, " ")
		eng, done, err := openEngine()
		if err != nil {
			return err
		}
		defer done()

		if !eng.AddItem(id) {
			return fmt.Errorf("item %q already exists", id)
		}
		output.Success("Added %q", id)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <item>",
	Aliases: []string{"rm"},
	Short:   "Remove a checklist item",
	GroupID: "items",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := strings.Join(args, " ")
		eng, done, err := openEngine()
		if err != nil {
			return err
		}
		defer done()

		if !eng.RemoveItem(id) {
			return fmt.Errorf("no item %q", id)
		}
		output.Success("Removed %q", id)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:     "check <item>",
	Short:   "Mark an item done",
	GroupID: "items",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDone(strings.Join(args, " "), true)
	},
}

var uncheckCmd = &cobra.Command{
	Use:     "uncheck <item>",
	Short:   "Mark an item not done",
	GroupID: "items",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDone(strings.Join(args, " "), false)
	},
}

var toggleCmd = &cobra.Command{
	Use:     "toggle <item>",
	Short:   "Flip an item's done state",
	GroupID: "items",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := strings.Join(args, " ")
		eng, done, err := openEngine()
		if err != nil {
			return err
		}
		defer done()

		nowDone, ok := eng.Toggle(id)
		if !ok {
			return fmt.Errorf("no item %q", id)
		}
		fmt.Println(output.FormatItem(id, nowDone))
		return nil
	},
}

func setDone(id string, val bool) error {
	eng, done, err := openEngine()
	if err != nil {
		return err
	}
	defer done()

	if !eng.SetDone(id, val) {
		return fmt.Errorf("no item %q", id)
	}
	fmt.Println(output.FormatItem(id, val))
	return nil
}

func init() {
	rootCmd.AddCommand(addCmd, removeCmd, checkCmd, uncheckCmd, toggleCmd)
}
