package seventeentrack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/packtrack/internal/integrations/provider"
	"github.com/BearBump/packtrack/internal/models"
	"github.com/BearBump/packtrack/internal/retry"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func fastPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func newTestClient(url string) *Client {
	return New(url, "secret").WithRetryPolicy(fastPolicy())
}

func TestClient_Register_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/register", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "secret", r.Header.Get("17token"))

		var body []registerReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, []registerReq{{Number: "RR123456789PT", Carrier: 2151}, {Number: "LX1"}}, body)

		_, _ = w.Write([]byte(`{"code":0,"data":{
  "accepted":[{"number":"RR123456789PT","carrier":2151}],
  "rejected":[{"number":"LX1","error":{"code":-18010012,"message":"already registered"}}]
}}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Register(context.Background(), []provider.RegisterItem{
		{Number: "RR123456789PT", CarrierCode: 2151},
		{Number: "LX1"},
	})
	require.NoError(t, err)
	require.Equal(t, []provider.Accepted{{Number: "RR123456789PT", CarrierCode: 2151}}, res.Accepted)
	require.Len(t, res.Rejected, 1)
	require.Equal(t, provider.ReasonAlreadyRegistered, res.Rejected[0].Reason)
}

func TestClient_Register_QuotaHaltsRemainingBatches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"code":0,"data":{"accepted":[{"number":"A","carrier":0}],
  "rejected":[{"number":"B","error":{"code":-18010018,"message":"quota"}}]}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL).WithSettings(0, 2, 0)
	res, err := c.Register(context.Background(), []provider.RegisterItem{{Number: "A"}, {Number: "B"}, {Number: "C"}})
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrQuotaExceeded))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Len(t, res.Accepted, 1)
	require.Len(t, res.Rejected, 2)
	require.Equal(t, "C", res.Rejected[1].Number)
}

func TestClient_FetchStatus_BatchesAndParses(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gettrackinfo", r.URL.Path)
		atomic.AddInt32(&calls, 1)

		var body []trackReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.LessOrEqual(t, len(body), MaxBatchSize)

		type ev struct {
			A string `json:"a"`
			Z string `json:"z"`
			C string `json:"c"`
		}
		accepted := make([]map[string]any, 0, len(body))
		for _, b := range body {
			accepted = append(accepted, map[string]any{
				"number":  b.Number,
				"carrier": 2151,
				"track": map[string]any{
					"e": 10,
					"z0": map[string]any{"z": []ev{
						{A: "2025-01-02 10:00", Z: "Lisboa", C: "In transit"},
						{A: "2025-01-01 09:00", Z: "Porto", C: "Accepted"},
					}},
				},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{"accepted": accepted}})
	}))
	defer srv.Close()

	numbers := make([]string, 0, 45)
	for i := 0; i < 45; i++ {
		numbers = append(numbers, fmt.Sprintf("RR%09dPT", i))
	}

	res, err := newTestClient(srv.URL).WithSettings(0, 0, 2).FetchStatus(context.Background(), numbers)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Len(t, res.Tracks, 45)
	require.Empty(t, res.Failed)

	tr := res.Tracks["RR000000007PT"]
	require.Equal(t, 10, tr.StatusCode)
	require.Equal(t, 2151, tr.CarrierCode)
	require.Equal(t, []provider.RawEvent{
		{Time: "2025-01-02 10:00", Location: "Lisboa", Description: "In transit"},
		{Time: "2025-01-01 09:00", Location: "Porto", Description: "Accepted"},
	}, tr.Events)
}

func TestClient_FetchStatus_RetriesTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"accepted":[{"number":"X","carrier":1,"track":{"e":40}}]}}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).FetchStatus(context.Background(), []string{"X"})
	require.NoError(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Equal(t, 40, res.Tracks["X"].StatusCode)
}

func TestClient_FetchStatus_FailedBatchIsSoft(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).FetchStatus(context.Background(), []string{"A", "B", "A"})
	require.NoError(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Empty(t, res.Tracks)
	require.Len(t, res.Failed, 2)
	require.True(t, errors.Is(res.Failed["A"], models.ErrTransientProvider))
}

func TestClient_FetchStatus_RejectedAndMissingNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{
  "accepted":[{"number":"A","carrier":1,"track":{"e":0}}],
  "rejected":[{"number":"B","error":{"code":-18019902,"message":"not registered"}}]}}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).FetchStatus(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	require.Len(t, res.Tracks, 1)
	require.Contains(t, res.Failed, "B")
	require.Contains(t, res.Failed, "C")
}

func TestClient_ConfigurationErrors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := New("http://127.0.0.1:1", "").FetchQuota(context.Background())
		require.True(t, errors.Is(err, models.ErrConfiguration))
	})

	t.Run("unauthorized", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).FetchStatus(context.Background(), []string{"A"})
		require.True(t, errors.Is(err, models.ErrConfiguration))
		require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("invalid key code", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"code":-18010002,"data":{"errors":[{"code":-18010002,"message":"invalid key"}]}}`))
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).Register(context.Background(), []provider.RegisterItem{{Number: "A"}})
		require.True(t, errors.Is(err, models.ErrConfiguration))
		require.Contains(t, err.Error(), "invalid key")
	})
}

func TestClient_UnexpectedHTTPStatusNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchQuota(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "http 404")
	require.False(t, errors.Is(err, models.ErrTransientProvider))
	require.False(t, errors.Is(err, models.ErrConfiguration))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_FetchQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/getquota", r.URL.Path)
		_, _ = w.Write([]byte(`{"code":0,"data":{"quota_total":100,"quota_used":7,"quota_remain":93}}`))
	}))
	defer srv.Close()

	q, err := newTestClient(srv.URL).FetchQuota(context.Background())
	require.NoError(t, err)
	require.Equal(t, provider.Quota{Used: 7, Total: 100}, q)
}

func TestClient_Timeout_IsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	p := fastPolicy()
	p.MaxAttempts = 1
	c := New(srv.URL, "secret").WithRetryPolicy(p).WithSettings(20*time.Millisecond, 0, 0)
	_, err := c.FetchQuota(context.Background())
	require.True(t, errors.Is(err, models.ErrTransientProvider))
}

type countingLimiter struct {
	calls   int32
	blocked int32
}

func (l *countingLimiter) Allow(_ context.Context, _ string, limit int64, _ time.Duration) (bool, int64, error) {
	n := atomic.AddInt32(&l.calls, 1)
	if n <= l.blocked {
		return false, limit + 1, nil
	}
	return true, 1, nil
}

func TestClient_RateLimiterConsulted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{"quota_total":100,"quota_used":0}}`))
	}))
	defer srv.Close()

	rl := &countingLimiter{blocked: 1}
	c := newTestClient(srv.URL).WithRateLimiter(rl, 5)
	_, err := c.FetchQuota(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&rl.calls))
}

func TestRejectReason(t *testing.T) {
	require.Equal(t, provider.ReasonAlreadyRegistered, rejectReason(-18010012))
	require.Equal(t, provider.ReasonInvalidNumber, rejectReason(-18010011))
	require.Equal(t, provider.ReasonInvalidNumber, rejectReason(-18010013))
	require.Equal(t, provider.ReasonQuotaExceeded, rejectReason(-18010018))
	require.Equal(t, provider.ReasonOther, rejectReason(-1))
}
