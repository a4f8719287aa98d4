// Package notify turns reconciliation notifications into text and hands
// them to sinks: a terminal, the desktop or a kafka topic read by a relay.
package notify

import (
	"fmt"
	"strings"

	"github.com/BearBump/packtrack/internal/models"
)

type statusLook struct {
	emoji string
	label string
}

var looks = map[models.Status]statusLook{
	models.StatusPending:     {"⏳", "Pending"},
	models.StatusNotFound:    {"❓", "Not found"},
	models.StatusInTransit:   {"🚚", "In transit"},
	models.StatusExpired:     {"⌛", "Expired"},
	models.StatusPickUp:      {"📬", "Ready for pickup"},
	models.StatusUndelivered: {"⚠️", "Undelivered"},
	models.StatusDelivered:   {"✅", "Delivered"},
	models.StatusAlert:       {"🚨", "Alert"},
}

func Emoji(s models.Status) string {
	if l, ok := looks[s]; ok {
		return l.emoji
	}
	return "📦"
}

func Label(s models.Status) string {
	if l, ok := looks[s]; ok {
		return l.label
	}
	return string(s)
}

func transition(n models.Notification) string {
	if !n.StatusChanged() {
		return Label(n.NewStatus)
	}
	return Label(n.OldStatus) + " → " + Label(n.NewStatus)
}

// Format renders a notification as one line.
func Format(n models.Notification) string {
	var b strings.Builder
	b.WriteString(Emoji(n.NewStatus))
	b.WriteString(" ")
	b.WriteString(n.TrackingNumber)
	if n.Carrier != "" {
		fmt.Fprintf(&b, " (%s)", n.Carrier)
	}
	if n.Description != "" {
		fmt.Fprintf(&b, " %q", n.Description)
	}
	b.WriteString(": ")
	b.WriteString(transition(n))
	if e := n.LatestEvent; e != nil && e.Description != "" {
		b.WriteString(" | ")
		b.WriteString(e.Description)
		if e.Location != "" {
			b.WriteString(" @ ")
			b.WriteString(e.Location)
		}
	}
	return b.String()
}

// FormatMessage renders the multi-line message relays forward as is.
func FormatMessage(n models.Notification) string {
	title := "📦 Package Update"
	if n.NewStatus == models.StatusDelivered {
		title = "✅ Package Delivered"
	}
	carrier := n.Carrier
	if carrier == "" {
		carrier = "Auto-detect"
	}

	lines := []string{
		title,
		"📮 Tracking: " + n.TrackingNumber,
		"📦 Carrier: " + carrier,
		fmt.Sprintf("📊 Status: %s %s", Emoji(n.NewStatus), transition(n)),
	}
	if n.Description != "" {
		lines = append(lines, "📝 Description: "+n.Description)
	}
	if e := n.LatestEvent; e != nil {
		line := "📍 Latest: " + e.Description
		if e.Location != "" {
			line += " — " + e.Location
		}
		if e.Timestamp != "" {
			line += " (" + e.Timestamp + ")"
		}
		lines = append(lines, line)
	}
	if n.NewEvents > 1 {
		lines = append(lines, fmt.Sprintf("🆕 %d new events", n.NewEvents))
	}
	if n.TrackingURL != "" {
		lines = append(lines, "🔗 Track online: "+n.TrackingURL)
	}
	return strings.Join(lines, "\n")
}
