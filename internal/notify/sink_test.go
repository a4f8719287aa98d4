package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/packtrack/internal/broker/messages"
	"github.com/BearBump/packtrack/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriterSink(&buf, true).Notify(context.Background(), sample()))
	require.Equal(t, Format(sample())+"\n", buf.String())

	buf.Reset()
	require.NoError(t, NewWriterSink(&buf, false).Notify(context.Background(), sample()))
	out := buf.String()
	require.True(t, strings.HasPrefix(out, rule+"\n"))
	require.Contains(t, out, FormatMessage(sample()))
}

func TestDesktopSink(t *testing.T) {
	var gotTitle, gotBody string
	s := &DesktopSink{notify: func(title, message string, _ any) error {
		gotTitle, gotBody = title, message
		return nil
	}}
	require.NoError(t, s.Notify(context.Background(), sample()))
	require.Equal(t, "✅ RR123456789PT · Book", gotTitle)
	require.Equal(t, "In transit → Delivered\nDelivered", gotBody)

	s.notify = func(string, string, any) error { return errors.New("no dbus") }
	require.ErrorContains(t, s.Notify(context.Background(), sample()), "desktop notify")
}

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, topic string, key, value []byte) error {
	return m.Called(ctx, topic, key, value).Error(0)
}

func TestKafkaSink(t *testing.T) {
	pm := &publisherMock{}
	s := NewKafkaSink(pm, "")
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	pm.On("Publish", mock.Anything, messages.TopicPackageUpdated, []byte("RR123456789PT"),
		mock.MatchedBy(func(b []byte) bool {
			var m messages.PackageUpdated
			if json.Unmarshal(b, &m) != nil {
				return false
			}
			return m.NewStatus == "DELIVERED" &&
				m.OldStatus == "IN_TRANSIT" &&
				m.LatestEvent != nil && m.LatestEvent.Location == "Lisboa" &&
				m.Text == FormatMessage(sample()) &&
				m.ID != "" &&
				m.EmittedAt.Equal(at)
		})).Return(nil).Once()

	require.NoError(t, s.Notify(context.Background(), sample()))
	pm.AssertExpectations(t)
}

type countingSink struct {
	got []string
	err error
}

func (c *countingSink) Notify(_ context.Context, n models.Notification) error {
	c.got = append(c.got, n.TrackingNumber)
	return c.err
}

func TestMultiAndDispatch(t *testing.T) {
	ok := &countingSink{}
	bad := &countingSink{err: errors.New("down")}

	ns := []models.Notification{{TrackingNumber: "A"}, {TrackingNumber: "B"}, {TrackingNumber: "C"}}
	n, err := Dispatch(context.Background(), Multi{bad, ok}, ns)
	require.EqualError(t, err, "down")
	require.Zero(t, n)
	require.Equal(t, []string{"A", "B", "C"}, ok.got)

	n, err = Dispatch(context.Background(), Multi{ok}, ns)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
