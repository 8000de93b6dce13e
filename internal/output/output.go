// Package output provides styled terminal output helpers (success,
// error, item and sync-status formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/marcus/ck/internal/models"
	"github.com/marcus/ck/internal/status"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	openStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	stateStyles  = map[status.State]lipgloss.Style{
		status.StateIdle:    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		status.StateSyncing: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		status.StateSynced:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		status.StateOffline: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		status.StateError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// ItemMark returns the checkbox marker for an item state.
func ItemMark(done bool) string {
	if done {
		return doneStyle.Render("[x]")
	}
	return openStyle.Render("[ ]")
}

// FormatItem formats a single checklist item line.
func FormatItem(id string, done bool) string {
	label := id
	if done {
		label = subtleStyle.Render(id)
	}
	return fmt.Sprintf("%s %s", ItemMark(done), label)
}

// FormatList renders a snapshot as sorted item lines plus a summary.
func FormatList(snap models.Snapshot) string {
	if len(snap) == 0 {
		return subtleStyle.Render("(no items)")
	}
	var sb strings.Builder
	for _, id := range snap.Keys() {
		sb.WriteString(FormatItem(id, snap[id]))
		sb.WriteString("\n")
	}
	sb.WriteString(subtleStyle.Render(fmt.Sprintf("%d/%d done", snap.Done(), len(snap))))
	return sb.String()
}

// StateBadge returns a sync state indicator with symbol
// e.g., "● synced", "… syncing", "○ idle", "⊘ offline", "✗ error"
func StateBadge(s status.State) string {
	symbols := map[status.State]string{
		status.StateIdle:    "○",
		status.StateSyncing: "…",
		status.StateSynced:  "●",
		status.StateOffline: "⊘",
		status.StateError:   "✗",
	}
	symbol, ok := symbols[s]
	if !ok {
		symbol = "?"
	}
	style, hasStyle := stateStyles[s]
	if hasStyle {
		return style.Render(fmt.Sprintf("%s %s", symbol, s))
	}
	return fmt.Sprintf("%s %s", symbol, s)
}

// FormatTransition renders a status transition for one-shot commands:
// the badge, the detail message if any, and the last synced time.
func FormatTransition(tr status.Transition) string {
	line := StateBadge(tr.State)
	if tr.Message != "" {
		line += "  " + subtleStyle.Render(tr.Message)
	}
	if !tr.SyncedAt.IsZero() {
		line += "  " + subtleStyle.Render("last synced "+FormatTimeAgo(tr.SyncedAt))
	}
	return line
}

// Title renders a bold heading.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Subtle renders de-emphasized text.
func Subtle(s string) string {
	return subtleStyle.Render(s)
}

const minRenderWidth = 20

// RenderMarkdown renders the guide text with glamour, word-wrapped to
// the terminal width. Falls back to 80 columns when stdout is not a tty.
func RenderMarkdown(text string) (string, error) {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	return renderMarkdown(text, width)
}

func renderMarkdown(text string, width int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if width < minRenderWidth {
		width = minRenderWidth
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	out, err := r.Render(text)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}
