package messages

import (
	"testing"
	"time"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/stretchr/testify/require"
)

func TestNewPackageUpdated(t *testing.T) {
	n := models.Notification{
		TrackingNumber: "RR123456789PT",
		Carrier:        "CTT Portugal",
		OldStatus:      models.StatusInTransit,
		NewStatus:      models.StatusDelivered,
		NewEvents:      2,
		LatestEvent:    &models.TrackingEvent{Timestamp: "2025-05-01 10:00", Location: "Lisboa", Description: "Delivered"},
		TrackingURL:    "https://example.test/RR123456789PT",
	}
	at := time.Date(2025, 5, 1, 13, 0, 0, 0, time.FixedZone("WEST", 3600))

	a := NewPackageUpdated(n, "text", at)
	b := NewPackageUpdated(n, "text", at)
	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, time.UTC, a.EmittedAt.Location())
	require.Equal(t, "DELIVERED", a.NewStatus)

	require.Equal(t, n, a.Notification())
}

func TestPackageUpdated_NotificationWithoutEvent(t *testing.T) {
	m := PackageUpdated{TrackingNumber: "X", NewStatus: "IN_TRANSIT"}
	n := m.Notification()
	require.Nil(t, n.LatestEvent)
	require.Equal(t, models.StatusInTransit, n.NewStatus)
}
