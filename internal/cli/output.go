package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/BuzzLyutic/task-sync/internal/device"
	"github.com/BuzzLyutic/task-sync/internal/model"
	"github.com/BuzzLyutic/task-sync/internal/syncer"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	badgeStyles = map[string]lipgloss.Style{
		"offline": lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		"pending": lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"ok":      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	}
)

const shortTokenLen = 8

// shortID is the id form the list shows and resolveID accepts.
func shortID(id model.ClientID) string {
	if sid, ok := id.ServerID(); ok {
		return strconv.FormatInt(sid, 10)
	}
	token := id.Token()
	if len(token) > shortTokenLen {
		token = token[:shortTokenLen]
	}
	return token
}

func writeTaskTable(w io.Writer, records []model.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no tasks"))
		return
	}

	rows := [][]string{{"ID", "SYNC", "DONE", "TITLE", "DESCRIPTION"}}
	for _, r := range records {
		done := " "
		if r.Completed {
			done = "x"
		}
		rows = append(rows, []string{shortID(r.ID), device.Badge(r), done, r.Title, r.Description})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	for n, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := lipgloss.NewStyle()
			switch {
			case n == 0:
				style = headerStyle
			case i == 1:
				style = badgeStyles[cell]
			}
			cells[i] = style.Width(widths[i]).Render(cell)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeResult(w io.Writer, res *syncer.Result) {
	fmt.Fprintf(w, "%s: %d created, %d updated, %d deleted, %d pulled",
		res.Status(), res.Created, res.Updated, res.Deleted, res.Pulled)
	if res.Recreated > 0 {
		fmt.Fprintf(w, ", %d recreated", res.Recreated)
	}
	if res.Removed > 0 {
		fmt.Fprintf(w, ", %d removed", res.Removed)
	}
	fmt.Fprintln(w)

	for _, f := range res.Failures {
		fmt.Fprintf(w, "  %s\n", f.Error())
	}
}
