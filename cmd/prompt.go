package cmd

import "github.com/charmbracelet/huh"

// confirm asks a yes/no question. A prompt failure (no tty) counts as no.
func confirm(title string) bool {
	var ok bool
	err := huh.NewConfirm().Title(title).Value(&ok).Run()
	return err == nil && ok
}
