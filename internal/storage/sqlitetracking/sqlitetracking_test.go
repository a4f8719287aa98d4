package sqlitetracking

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/packtrack/internal/models"
	"github.com/BearBump/packtrack/internal/storage/storetest"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "nested", "packtrack.db"), storetest.DefaultQuota)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestSQLiteTracking_Repository(t *testing.T) {
	suite.Run(t, &storetest.RepositorySuite{
		New: func(t *testing.T) storetest.Store { return newTestStorage(t) },
	})
}

func TestSQLiteTracking_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packtrack.db")
	ctx := context.Background()

	st, err := New(path, 0)
	require.NoError(t, err)
	_, err = st.CreatePackage(ctx, models.PackageCreateInput{TrackingNumber: "A1"})
	require.NoError(t, err)
	u, err := st.GetUsage(ctx, "2025-01")
	require.NoError(t, err)
	require.Equal(t, models.DefaultMonthlyQuota, u.QuotaTotal)
	st.Close()

	if fi, err := os.Stat(path + "-wal"); err == nil {
		require.Zero(t, fi.Size(), "wal is checkpointed on close")
	}

	st, err = New(path, 0)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Ping(ctx))

	p, err := st.GetPackage(ctx, "A1")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), p.CreatedAt, time.Minute)
}

func TestTimeLayout_SortsAsText(t *testing.T) {
	a := formatTime(time.Date(2025, 1, 1, 9, 0, 0, 5, time.FixedZone("X", 3600)))
	b := formatTime(time.Date(2025, 1, 1, 9, 0, 0, 10, time.UTC))
	require.Len(t, a, len(b))
	require.Less(t, a, b)

	back, err := parseTime(b)
	require.NoError(t, err)
	require.Equal(t, 10, back.Nanosecond())

	_, err = parseTime("yesterday")
	require.ErrorIs(t, err, models.ErrStoreIntegrity)
}
