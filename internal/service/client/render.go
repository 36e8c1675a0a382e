package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/escalation"
)

//nolint:gochecknoglobals // Styles are immutable presentation constants.
var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Width(labelWidth)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	alertStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))
)

// labelWidth aligns the value column.
const labelWidth = 12

// RenderStatus renders a full status block.
func RenderStatus(v escalation.View) string {
	var b strings.Builder

	row := func(label, value string) {
		if value == "" {
			return
		}

		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	row("Phase", phaseStyle(v.Phase).Render(v.Phase))
	row("Link", linkStyle(v.Link).Render(v.Link))
	row("Device", v.Device)
	row("Contact", orNone(v.Contact))

	if v.Phase == fall.PhaseCountingDown.String() {
		row("Remaining", alertStyle.Render(formatRemaining(v.Remaining)))
	}

	row("Escalation", v.EscalationID)
	row("Location", v.Location)
	row("Outcome", v.Outcome)
	row("Message", v.Message)

	if v.Error != "" {
		row("Error", alertStyle.Render(v.Error))
	}

	return b.String()
}

// RenderEvent renders a status update as one line for watch output.
func RenderEvent(v escalation.View) string {
	parts := []string{
		mutedStyle.Render(v.Time.Local().Format(time.TimeOnly)),
		eventStyle.Render(fmt.Sprintf("%-12s", v.Event)),
		phaseStyle(v.Phase).Render(v.Phase),
	}

	switch {
	case v.Phase == fall.PhaseCountingDown.String():
		parts = append(parts, alertStyle.Render(formatRemaining(v.Remaining)))
	case v.Event == escalation.EventLink.String():
		parts = append(parts, linkStyle(v.Link).Render(v.Link))
	}

	if v.Message != "" {
		parts = append(parts, v.Message)
	}

	if v.Outcome != "" {
		parts = append(parts, v.Outcome)
	}

	if v.Error != "" {
		parts = append(parts, alertStyle.Render(v.Error))
	}

	return strings.Join(parts, " ")
}

// phaseStyle colors a phase by urgency.
func phaseStyle(phase string) lipgloss.Style {
	switch phase {
	case fall.PhaseArmed.String():
		return okStyle
	case fall.PhaseCountingDown.String(), fall.PhaseAlerting.String():
		return alertStyle
	default:
		return mutedStyle
	}
}

// linkStyle colors a link status.
func linkStyle(link string) lipgloss.Style {
	switch link {
	case fall.LinkConnected.String():
		return okStyle
	case fall.LinkConnecting.String():
		return warningStyle
	case fall.LinkLost.String(), fall.LinkFailed.String():
		return alertStyle
	default:
		return mutedStyle
	}
}

// formatRemaining renders whole seconds left.
func formatRemaining(d time.Duration) string {
	return fmt.Sprintf("%ds", int(d.Round(time.Second)/time.Second))
}

// orNone substitutes a placeholder for empty values.
func orNone(s string) string {
	if s == "" {
		return mutedStyle.Render("<none>")
	}

	return s
}
