package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BearBump/packtrack/internal/carriers"
	"github.com/BearBump/packtrack/internal/models"
	"github.com/BearBump/packtrack/internal/notify"
	"github.com/BearBump/packtrack/internal/services/packages"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	quotaBarWidth = 30
	timeLayout    = "2006-01-02 15:04"
	maxCellWidth  = 40
)

type palette struct {
	header    lipgloss.Style
	delivered lipgloss.Style
	alert     lipgloss.Style
	faint     lipgloss.Style
	plain     lipgloss.Style
}

// newPalette binds styles to w, so colors are dropped when w is not a terminal.
func newPalette(w io.Writer) palette {
	r := lipgloss.NewRenderer(w)
	return palette{
		header:    r.NewStyle().Bold(true).Padding(0, 1),
		delivered: r.NewStyle().Foreground(lipgloss.Color("2")).Padding(0, 1),
		alert:     r.NewStyle().Foreground(lipgloss.Color("1")).Padding(0, 1),
		faint:     r.NewStyle().Faint(true).Padding(0, 1),
		plain:     r.NewStyle().Padding(0, 1),
	}
}

func (p palette) forStatus(s models.Status) lipgloss.Style {
	switch s {
	case models.StatusDelivered:
		return p.delivered
	case models.StatusAlert, models.StatusUndelivered, models.StatusExpired:
		return p.alert
	}
	return p.plain
}

func renderList(w io.Writer, pkgs []*models.Package) {
	if len(pkgs) == 0 {
		fmt.Fprintln(w, "No packages tracked. Add one with `packtrack add <tracking-number>`.")
		return
	}
	pal := newPalette(w)

	rows := make([][]string, 0, len(pkgs))
	for _, p := range pkgs {
		last := p.LastEvent
		if last != "" && p.LastEventAt != "" {
			last = p.LastEventAt + " " + last
		}
		rows = append(rows, []string{
			notify.Emoji(p.Status),
			p.TrackingNumber,
			carriers.Carrier(p.Carrier).Name(),
			notify.Label(p.Status),
			truncate(p.Description),
			truncate(last),
			formatChecked(p.LastCheckedAt),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(pal.faint).
		Headers("", "TRACKING", "CARRIER", "STATUS", "DESCRIPTION", "LAST EVENT", "CHECKED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return pal.header
			}
			p := pkgs[row]
			if !p.Active && p.Status != models.StatusDelivered {
				return pal.faint
			}
			if col == 3 {
				return pal.forStatus(p.Status)
			}
			return pal.plain
		})
	fmt.Fprintln(w, t.Render())
}

func renderDetails(w io.Writer, d *models.PackageDetails) {
	pal := newPalette(w)
	p := d.Package

	title := fmt.Sprintf("%s %s", notify.Emoji(p.Status), p.TrackingNumber)
	fmt.Fprintln(w, pal.header.UnsetPadding().Render(title))
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(w, "  %-12s %s\n", name+":", value)
		}
	}
	field("Carrier", carriers.Carrier(p.Carrier).Name())
	field("Description", p.Description)
	field("Status", notify.Label(p.Status))
	if p.Active {
		field("Tracking", "active")
	} else {
		field("Tracking", "stopped")
	}
	field("Added", p.CreatedAt.Local().Format(timeLayout))
	field("Checked", formatChecked(p.LastCheckedAt))
	if p.DeliveredAt != nil {
		field("Delivered", p.DeliveredAt.Local().Format(timeLayout))
	}
	field("URL", d.TrackingURL)

	fmt.Fprintln(w)
	if len(d.Events) == 0 {
		fmt.Fprintln(w, "  No tracking events yet.")
		return
	}
	fmt.Fprintf(w, "  History (%d events, newest first):\n", len(d.Events))
	for _, e := range d.Events {
		line := fmt.Sprintf("  • %s  %s", e.Timestamp, e.Description)
		if e.Location != "" {
			line += " @ " + e.Location
		}
		fmt.Fprintln(w, line)
	}
}

func renderQuota(w io.Writer, q packages.QuotaInfo) {
	pal := newPalette(w)

	percent := 0.0
	if q.QuotaTotal > 0 {
		percent = float64(q.RegistrationsUsed) * 100 / float64(q.QuotaTotal)
	}
	style := pal.plain
	if q.Warning || q.Remaining() == 0 {
		style = pal.alert
	}

	bar := quotaBar(percent, quotaBarWidth)
	fmt.Fprintf(w, "Registrations %s\n", q.Month)
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Center,
		style.UnsetPadding().Render(bar),
		" ",
		style.Width(6).Align(lipgloss.Right).Render(fmt.Sprintf("%.0f%%", percent)),
	))
	fmt.Fprintf(w, "  used %d of %d, %d remaining\n", q.RegistrationsUsed, q.QuotaTotal, q.Remaining())

	switch {
	case q.Provider != nil:
		fmt.Fprintf(w, "  17track reports %d of %d used\n", q.Provider.Used, q.Provider.Total)
	case q.ProviderErr != nil:
		fmt.Fprintf(w, "  17track quota unavailable: %v\n", q.ProviderErr)
	}
	if q.Warning {
		fmt.Fprintln(w, "⚠️  Quota almost used up; new registrations may be refused this month.")
	}
}

func quotaBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatChecked(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(timeLayout)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxCellWidth {
		return s
	}
	return string(r[:maxCellWidth-1]) + "…"
}
