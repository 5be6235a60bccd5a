package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mediabatch/internal/core/domain"
)

// column is one table column: its header and cell alignment.
type column struct {
	title string
	align text.Align
}

// renderTable draws rows under columns. Headers keep their casing and short
// rows are padded with empty cells.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		configs[i] = table.ColumnConfig{Number: i + 1, Align: col.align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

func renderJobResult(res *domain.JobResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s: %s (%d/%d succeeded, %s mode)\n",
		res.JobID, res.State, res.SuccessCount, res.TotalAttempted, res.Mode)

	rows := make([][]string, 0, len(res.Items))
	for _, item := range res.Items {
		status := "ok"
		location := deref(item.PublicURL)
		if !item.Success {
			status = "failed"
			location = deref(item.Error)
		}
		duration := ""
		if item.DurationSeconds != nil {
			duration = (time.Duration(*item.DurationSeconds * float64(time.Second))).Round(time.Second).String()
		}
		rows = append(rows, []string{
			strconv.Itoa(item.GlobalIndex),
			status,
			truncate(deref(item.Title), 40),
			duration,
			location,
		})
	}
	b.WriteString(renderTable([]column{
		{title: "#", align: text.AlignRight},
		{title: "Status"},
		{title: "Title"},
		{title: "Duration", align: text.AlignRight},
		{title: "URL / Error"},
	}, rows))
	b.WriteString("\n")

	if res.Archive != nil {
		fmt.Fprintf(&b, "Archive: %s (%d files)\n", res.Archive.PublicURL, res.Archive.MemberCount)
	}
	return b.String()
}

func renderListResult(res *domain.ListResult) string {
	rows := make([][]string, 0, len(res.Items))
	for _, item := range res.Items {
		rows = append(rows, []string{
			strconv.Itoa(item.GlobalIndex),
			strconv.Itoa(item.PageLocalIndex),
			item.URL,
		})
	}
	return renderTable([]column{
		{title: "Global", align: text.AlignRight},
		{title: "Page", align: text.AlignRight},
		{title: "Item"},
	}, rows) + "\n"
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
