package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"lootscout/pkg/aggregator"
)

var statsHeader = []string{"source", "products", "listings", "skipped", "filtered", "out of stock", "attempts", "cache", "time", "error"}

// maxErrorWidth keeps long wrapped errors from blowing up the table.
const maxErrorWidth = 60

func printStats(w io.Writer, report aggregator.Report) {
	rows := [][]string{statsHeader}
	for _, s := range report.Sources {
		rows = append(rows, statsRow(s))
	}
	for _, line := range formatTable(rows) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%d products from %d sources (%d failed) in %s\n",
		report.Total(), len(report.Sources), len(report.Failed()), report.Duration.Round(time.Millisecond))
}

func statsRow(s aggregator.SourceReport) []string {
	cache := "miss"
	if s.Cached {
		cache = "hit, " + humanize.Time(s.CachedAt)
	}

	errText := ""
	if s.Err != nil {
		errText = runewidth.Truncate(s.Err.Error(), maxErrorWidth, "...")
		cache = "-"
	}

	return []string{
		s.Source,
		strconv.Itoa(s.Count),
		strconv.Itoa(s.Stats.Listings),
		strconv.Itoa(s.Stats.Skipped),
		strconv.Itoa(s.Stats.Filtered),
		strconv.Itoa(s.Stats.OutOfStock),
		strconv.Itoa(s.Attempts),
		cache,
		s.Duration.Round(time.Millisecond).String(),
		errText,
	}
}

// formatTable renders rows as a markdown-style table padded by display
// width. The first row is the header.
func formatTable(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}

	colWidths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if width := runewidth.StringWidth(row[i]); width > colWidths[i] {
				colWidths[i] = width
			}
		}
	}
	for i := range colWidths {
		if colWidths[i] < 3 {
			colWidths[i] = 3
		}
	}

	line := func(cells []string, sep bool) string {
		var sb strings.Builder
		sb.WriteString("|")
		for j, width := range colWidths {
			sb.WriteString(" ")
			if sep {
				sb.WriteString(strings.Repeat("-", width))
			} else {
				content := ""
				if j < len(cells) {
					content = cells[j]
				}
				sb.WriteString(runewidth.FillRight(content, width))
			}
			sb.WriteString(" |")
		}
		return sb.String()
	}

	out := []string{line(rows[0], false), line(nil, true)}
	for _, row := range rows[1:] {
		out = append(out, line(row, false))
	}
	return out
}
