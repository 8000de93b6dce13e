package cmd

import (
	"testing"

	"github.com/spf13/cobra"
)

func findCommand(t *testing.T, name string) *cobra.Command {
	t.Helper()
	for _, c := range rootCmd.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("command %q not registered", name)
	return nil
}

// TestCommandsRegistered tests the full command surface exists
func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{
		"add", "remove", "check", "uncheck", "toggle",
		"list", "sync", "load", "auth", "config",
		"export", "import", "guide", "watch", "version",
	} {
		findCommand(t, name)
	}
}

// TestCommandGroups tests commands are assigned to help groups
func TestCommandGroups(t *testing.T) {
	tests := map[string]string{
		"add":    "items",
		"list":   "items",
		"sync":   "sync",
		"load":   "sync",
		"auth":   "system",
		"config": "system",
	}
	for name, group := range tests {
		if got := findCommand(t, name).GroupID; got != group {
			t.Errorf("%s group: got %q, want %q", name, got, group)
		}
	}
}

// TestListJSONFlagExists tests that --json flag is defined
func TestListJSONFlagExists(t *testing.T) {
	if findCommand(t, "list").Flags().Lookup("json") == nil {
		t.Error("list should define --json")
	}
}

// TestSyncStatusFlagExists tests that --status flag is defined
func TestSyncStatusFlagExists(t *testing.T) {
	if findCommand(t, "sync").Flags().Lookup("status") == nil {
		t.Error("sync should define --status")
	}
}

// TestLoadYesFlagExists tests that --yes flag is defined
func TestLoadYesFlagExists(t *testing.T) {
	if findCommand(t, "load").Flags().Lookup("yes") == nil {
		t.Error("load should define --yes")
	}
}

// TestAuthSubcommands tests auth has login/logout/status
func TestAuthSubcommands(t *testing.T) {
	auth := findCommand(t, "auth")
	want := map[string]bool{"login": false, "logout": false, "status": false}
	for _, c := range auth.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("auth %s not registered", name)
		}
	}
}

// TestGuideEmbedded tests the guide text compiled in
func TestGuideEmbedded(t *testing.T) {
	if guideText == "" {
		t.Fatal("guide.md should be embedded")
	}
}

// TestRemoveAlias tests the rm shortcut
func TestRemoveAlias(t *testing.T) {
	rm := findCommand(t, "remove")
	for _, a := range rm.Aliases {
		if a == "rm" {
			return
		}
	}
	t.Error("remove should alias rm")
}
