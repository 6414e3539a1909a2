// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/fieldverify/lib/jobstore"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	urgentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	faintStyle     = lipgloss.NewStyle().Faint(true)
)

// cell is one table cell: its text and the style it renders with.
type cell struct {
	text  string
	style lipgloss.Style
}

func plain(text string) cell { return cell{text: text, style: lipgloss.NewStyle()} }

// renderTable writes rows under a bold header, padding each column to
// its widest cell. Widths are measured on the unstyled text so color
// codes do not disturb alignment.
func renderTable(w io.Writer, header []string, rows [][]cell) {
	widths := make([]int, len(header))
	for i, title := range header {
		widths[i] = lipgloss.Width(title)
	}
	for _, row := range rows {
		for i, c := range row {
			widths[i] = max(widths[i], lipgloss.Width(c.text))
		}
	}

	line := func(cells []cell) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			padding := strings.Repeat(" ", widths[i]-lipgloss.Width(c.text))
			if i == len(cells)-1 {
				padding = ""
			}
			parts[i] = c.style.Render(c.text) + padding
		}
		return strings.Join(parts, "  ")
	}

	headerCells := make([]cell, len(header))
	for i, title := range header {
		headerCells[i] = cell{text: title, style: headerStyle}
	}
	fmt.Fprintln(w, line(headerCells))
	for _, row := range rows {
		fmt.Fprintln(w, line(row))
	}
}

func statusCell(status jobstore.JobStatus) cell {
	if status == jobstore.StatusCompleted {
		return cell{text: string(status), style: completedStyle}
	}
	return cell{text: string(status), style: pendingStyle}
}

func syncCell(status jobstore.SyncStatus) cell {
	if status == jobstore.SyncPending {
		return cell{text: string(status), style: pendingStyle}
	}
	return cell{text: string(status), style: faintStyle}
}
