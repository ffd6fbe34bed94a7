// Package render draws the terminal parcel dashboard.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"parcelwatch/internal/parcel"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiGray   = "\x1b[90m"
)

// Dashboard renders the parcel table to w. Colors apply only when w is a
// terminal.
func Dashboard(w io.Writer, parcels []*parcel.Parcel, now time.Time) {
	colorize := shouldColorize(w)

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"TRACKING", "COMPANY", "COURIER", "STATUS", "ETA", "CHECKED"})

	for _, p := range parcels {
		tw.AppendRow(table.Row{
			p.TrackingNumber,
			companyTitle(p.Company),
			strings.ToUpper(string(p.Courier)),
			statusCell(p, colorize),
			etaCell(p, now),
			checkedCell(p, now),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	fmt.Fprintln(w, tw.Render())
}

// Summary prints per-status counts beneath the table in lifecycle order.
func Summary(w io.Writer, stats map[parcel.Status]int) {
	statuses := make([]string, 0, len(stats))
	for _, status := range parcel.AllStatuses() {
		if count := stats[status]; count > 0 {
			statuses = append(statuses, fmt.Sprintf("%s: %d", status, count))
		}
	}
	if len(statuses) == 0 {
		fmt.Fprintln(w, "no parcels tracked")
		return
	}
	fmt.Fprintln(w, strings.Join(statuses, "  "))
}

func companyTitle(company string) string {
	if company == "" {
		return "-"
	}
	return cases.Title(language.Und).String(company)
}

func statusCell(p *parcel.Parcel, colorize bool) string {
	label := strings.ReplaceAll(string(p.Status), "_", " ")
	if p.IsStale() {
		label += " (stale)"
	}
	if !colorize {
		return label
	}
	if color := statusColor(p.Status); color != "" {
		return color + label + ansiReset
	}
	return label
}

func statusColor(status parcel.Status) string {
	switch status {
	case parcel.StatusDelivered:
		return ansiGreen
	case parcel.StatusOutForDelivery:
		return ansiBlue
	case parcel.StatusInTransit:
		return ansiYellow
	case parcel.StatusException:
		return ansiRed
	case parcel.StatusUnknown:
		return ansiGray
	default:
		return ""
	}
}

func etaCell(p *parcel.Parcel, now time.Time) string {
	if p.ETA == nil {
		return "-"
	}
	eta := p.ETA.Local()
	day := eta.Format("Mon Jan 2")
	if p.Status == parcel.StatusDelivered {
		return day
	}
	days := int(eta.Sub(now).Hours() / 24)
	switch {
	case days < 0:
		return day + " (late)"
	case days == 0:
		return day + " (today)"
	default:
		return fmt.Sprintf("%s (%dd)", day, days)
	}
}

func checkedCell(p *parcel.Parcel, now time.Time) string {
	if p.LastCheckedAt == nil {
		return "never"
	}
	return formatAge(now.Sub(*p.LastCheckedAt))
}

func formatAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
