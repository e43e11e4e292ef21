package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nopenet/nopenet/internal/backend"
	"github.com/nopenet/nopenet/internal/detection"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	alertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func renderValidation(v backend.Validation) string {
	if v.Valid {
		return okStyle.Render("valid") + "  " + v.Message
	}
	return alertStyle.Render("invalid") + "  " + v.Message
}

func renderSummary(data *detection.Data) string {
	processing := data.ProcessingTime
	if processing == "" {
		processing = "N/A"
	}

	attacks := fmt.Sprintf("%d", data.AttacksDetected)
	if data.AttacksDetected > 0 {
		attacks = alertStyle.Render(attacks)
	} else {
		attacks = okStyle.Render(attacks)
	}

	stats := boxStyle.Render(strings.Join([]string{
		fmt.Sprintf("Packets analyzed: %d", data.TotalPackets),
		"Attacks detected: " + attacks,
		"Processing time:  " + processing,
	}, "\n"))

	counts := boxStyle.Render(tallyLines(data.Tally()))

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("NopeNet scan"),
		lipgloss.JoinHorizontal(lipgloss.Top, stats, counts),
	)
}

func renderTally(records int, t detection.Tally) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(fmt.Sprintf("%d labelled records", records)),
		boxStyle.Render(tallyLines(t)),
	)
}

func tallyLines(t detection.Tally) string {
	lines := make([]string, 0, len(detection.KnownCategories)+1)
	for _, c := range detection.KnownCategories {
		lines = append(lines, fmt.Sprintf("%-7s %d", c.String(), t.Count(c)))
	}
	if t.Other > 0 {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("%-7s %d", "other", t.Other)))
	}
	return strings.Join(lines, "\n")
}

func renderFormatHelp(pe *backend.PredictError) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		alertStyle.Render(pe.Message),
		dimStyle.Render("Expected format, e.g.:"),
		boxStyle.Render(pe.FormatExample),
	)
}
