package pgtracking

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/packtrack/internal/storage/storetest"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGTracking_Repository(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "packtrack_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/packtrack_test?sslmode=disable"
	st, err := New(dsn, storetest.DefaultQuota)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Ping(ctx))

	suite.Run(t, &storetest.RepositorySuite{
		New: func(t *testing.T) storetest.Store {
			// каждый тест начинает с пустых таблиц
			_, err := st.db.Exec(ctx, `TRUNCATE tracking_events, packages, api_usage RESTART IDENTITY`)
			require.NoError(t, err)
			return st
		},
	})

	// повторная инициализация схемы на живой базе не падает
	st2, err := New(dsn, 0)
	require.NoError(t, err)
	st2.Close()
}

func TestNew_BadDSN(t *testing.T) {
	_, err := New("postgres://%zz", 0)
	require.Error(t, err)
}
