package notify

import (
	"testing"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/stretchr/testify/require"
)

func sample() models.Notification {
	return models.Notification{
		TrackingNumber: "RR123456789PT",
		Carrier:        "CTT Portugal",
		Description:    "Book",
		OldStatus:      models.StatusInTransit,
		NewStatus:      models.StatusDelivered,
		NewEvents:      2,
		LatestEvent:    &models.TrackingEvent{Timestamp: "2025-05-01 10:00", Location: "Lisboa", Description: "Delivered"},
		TrackingURL:    "https://example.test/RR123456789PT",
	}
}

func TestFormat(t *testing.T) {
	require.Equal(t,
		`✅ RR123456789PT (CTT Portugal) "Book": In transit → Delivered | Delivered @ Lisboa`,
		Format(sample()))

	n := sample()
	n.OldStatus = n.NewStatus
	n.Description = ""
	n.LatestEvent.Location = ""
	require.Equal(t, `✅ RR123456789PT (CTT Portugal): Delivered | Delivered`, Format(n))

	n = models.Notification{TrackingNumber: "X", OldStatus: models.StatusPending, NewStatus: models.StatusNotFound}
	require.Equal(t, `❓ X: Pending → Not found`, Format(n))
}

func TestFormat_IsPure(t *testing.T) {
	n := sample()
	require.Equal(t, Format(n), Format(n))
	require.Equal(t, FormatMessage(n), FormatMessage(n))
}

func TestFormatMessage(t *testing.T) {
	want := "✅ Package Delivered\n" +
		"📮 Tracking: RR123456789PT\n" +
		"📦 Carrier: CTT Portugal\n" +
		"📊 Status: ✅ In transit → Delivered\n" +
		"📝 Description: Book\n" +
		"📍 Latest: Delivered — Lisboa (2025-05-01 10:00)\n" +
		"🆕 2 new events\n" +
		"🔗 Track online: https://example.test/RR123456789PT"
	require.Equal(t, want, FormatMessage(sample()))

	short := FormatMessage(models.Notification{TrackingNumber: "X", NewStatus: models.StatusInTransit, OldStatus: models.StatusInTransit})
	require.Equal(t, "📦 Package Update\n📮 Tracking: X\n📦 Carrier: Auto-detect\n📊 Status: 🚚 In transit", short)
}

func TestEmojiAndLabel(t *testing.T) {
	require.Equal(t, "⏳", Emoji(models.StatusPending))
	require.Equal(t, "🚨", Emoji(models.StatusAlert))
	require.Equal(t, "📬", Emoji(models.StatusPickUp))
	require.Equal(t, "📦", Emoji(models.Status("WEIRD")))
	require.Equal(t, "WEIRD", Label(models.Status("WEIRD")))
	require.Equal(t, "Undelivered", Label(models.StatusUndelivered))
}
