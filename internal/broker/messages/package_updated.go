package messages

import (
	"time"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/google/uuid"
)

const TopicPackageUpdated = "packtrack.package-updated"

// PackageUpdated is what relays (chat bots, phone push) consume.
// Text is the ready-to-send message; ID lets relays drop redeliveries.
type PackageUpdated struct {
	ID             string    `json:"id"`
	TrackingNumber string    `json:"tracking_number"`
	Carrier        string    `json:"carrier"`
	Description    string    `json:"description,omitempty"`
	OldStatus      string    `json:"old_status"`
	NewStatus      string    `json:"new_status"`
	NewEvents      int       `json:"new_events"`
	LatestEvent    *Event    `json:"latest_event,omitempty"`
	TrackingURL    string    `json:"tracking_url"`
	Text           string    `json:"text"`
	EmittedAt      time.Time `json:"emitted_at"`
}

type Event struct {
	Timestamp   string `json:"timestamp"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description"`
}

func NewPackageUpdated(n models.Notification, text string, at time.Time) PackageUpdated {
	msg := PackageUpdated{
		ID:             uuid.NewString(),
		TrackingNumber: n.TrackingNumber,
		Carrier:        n.Carrier,
		Description:    n.Description,
		OldStatus:      string(n.OldStatus),
		NewStatus:      string(n.NewStatus),
		NewEvents:      n.NewEvents,
		TrackingURL:    n.TrackingURL,
		Text:           text,
		EmittedAt:      at.UTC(),
	}
	if e := n.LatestEvent; e != nil {
		msg.LatestEvent = &Event{Timestamp: e.Timestamp, Location: e.Location, Description: e.Description}
	}
	return msg
}

// Notification rebuilds the record a relay can hand to a local sink.
func (m PackageUpdated) Notification() models.Notification {
	n := models.Notification{
		TrackingNumber: m.TrackingNumber,
		Carrier:        m.Carrier,
		Description:    m.Description,
		OldStatus:      models.Status(m.OldStatus),
		NewStatus:      models.Status(m.NewStatus),
		NewEvents:      m.NewEvents,
		TrackingURL:    m.TrackingURL,
	}
	if e := m.LatestEvent; e != nil {
		n.LatestEvent = &models.TrackingEvent{Timestamp: e.Timestamp, Location: e.Location, Description: e.Description}
	}
	return n
}
