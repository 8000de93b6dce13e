package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/ck/internal/config"
	"github.com/marcus/ck/internal/output"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage sync settings",
	GroupID: "system",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the effective sync settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load()
		if err != nil {
			return err
		}
		endpoint := s.EffectiveEndpoint()
		if endpoint == "" {
			endpoint = output.Subtle("(not configured)")
		}
		fmt.Println(output.Title("Sync settings"))
		fmt.Printf("endpoint:  %s\n", endpoint)
		fmt.Printf("autosync:  %t\n", s.AutoSyncEnabled())
		fmt.Printf("debounce:  %s\n", s.DebounceInterval())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set endpoint, autosync, or debounce",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		switch key {
		case "endpoint":
			// goes through the engine: a new endpoint triggers a
			// cloud load when someone is signed in
			eng, done, err := openEngine()
			if err != nil {
				return err
			}
			defer done()
			if err := eng.SetEndpoint(value); err != nil {
				return err
			}
			printStatus(eng)

		case "autosync":
			on, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("autosync wants true or false, got %q", value)
			}
			eng, done, err := openEngine()
			if err != nil {
				return err
			}
			defer done()
			if err := eng.SetAutoSync(on); err != nil {
				return err
			}

		case "debounce":
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("debounce wants a duration like 2s, got %q", value)
			}
			s, err := config.Load()
			if err != nil {
				return err
			}
			s.Debounce = value
			if err := config.Save(s); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown setting %q (endpoint, autosync, debounce)", key)
		}

		output.Success("Set %s", key)
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit sync settings interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load()
		if err != nil {
			return err
		}

		endpoint := s.Endpoint
		autoSync := s.AutoSyncEnabled()
		debounce := s.Debounce
		if debounce == "" {
			debounce = config.DefaultDebounce.String()
		}

		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Sync endpoint").
				Description("Empty disables cloud sync").
				Value(&endpoint),
			huh.NewConfirm().
				Title("Auto-sync after changes").
				Value(&autoSync),
			huh.NewInput().
				Title("Debounce").
				Description("Quiet period before an auto-sync fires (e.g. 2s)").
				Validate(func(v string) error {
					_, err := time.ParseDuration(v)
					return err
				}).
				Value(&debounce),
		))
		if err := form.Run(); err != nil {
			return err
		}

		s.AutoSync = &autoSync
		s.Debounce = debounce
		if err := config.Save(s); err != nil {
			return err
		}

		// endpoint change last, through the engine
		if endpoint != s.Endpoint {
			eng, done, err := openEngine()
			if err != nil {
				return err
			}
			defer done()
			if err := eng.SetEndpoint(endpoint); err != nil {
				return err
			}
			printStatus(eng)
		}

		output.Success("Settings saved")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configEditCmd)
	rootCmd.AddCommand(configCmd)
}
