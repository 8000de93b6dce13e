package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/ck/internal/output"
)

// View implements tea.Model
func (m Model) View() string {
	if m.Width > 0 && m.Width < MinWidth {
		return "terminal too narrow\n"
	}

	width := m.Width
	if width <= 0 {
		width = 80
	}

	var sb strings.Builder

	snap := m.Engine.Items()
	sb.WriteString(headerStyle.Render("ck"))
	sb.WriteString("  ")
	sb.WriteString(subtleStyle.Render(fmt.Sprintf("%d/%d done", snap.Done(), len(snap))))
	sb.WriteString("\n\n")

	if len(m.Items) == 0 {
		sb.WriteString(subtleStyle.Render("  (no items — press a to add)"))
		sb.WriteString("\n")
	}
	for i, id := range m.Items {
		cursor := "  "
		line := output.FormatItem(id, snap[id])
		if i == m.Cursor && !m.Adding {
			cursor = cursorStyle.Render("> ")
			line = selectedStyle.Render(output.FormatItem(id, snap[id]))
		}
		sb.WriteString(ansi.Truncate(cursor+line, width, "…"))
		sb.WriteString("\n")
	}

	if m.Adding {
		sb.WriteString("\n")
		sb.WriteString(m.Input.View())
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(ansi.Truncate(output.FormatTransition(m.Status), width, "…"))
	sb.WriteString("\n")

	if m.Err != nil {
		sb.WriteString(ansi.Truncate(errStyle.Render(m.Err.Error()), width, "…"))
		sb.WriteString("\n")
	}

	if m.ShowHelp {
		sb.WriteString(helpStyle.Render(helpText))
	} else {
		sb.WriteString(helpStyle.Render("? help · q quit"))
	}
	sb.WriteString("\n")

	return sb.String()
}

const helpText = `
  j/k     move
  space   toggle item
  a       add item
  d       delete item
  s       sync now
  l       load from cloud
  q       quit`
