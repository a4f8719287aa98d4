package seventeentrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/packtrack/internal/integrations/provider"
	"github.com/BearBump/packtrack/internal/models"
	"github.com/BearBump/packtrack/internal/retry"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL = "https://api.17track.net/track/v2.2"
	// MaxBatchSize is the documented per-call limit for register and gettrackinfo.
	MaxBatchSize = 40

	tokenHeader = "17token"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client

	timeout     time.Duration
	batchSize   int
	concurrency int
	policy      retry.Policy

	rl          RateLimiter
	rlPerSecond int64

	now func() time.Time
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		httpc:       &http.Client{},
		timeout:     30 * time.Second,
		batchSize:   MaxBatchSize,
		concurrency: 1,
		now:         time.Now,
	}
	return c.WithRetryPolicy(retry.DefaultPolicy())
}

func (c *Client) WithSettings(timeout time.Duration, batchSize, concurrency int) *Client {
	if timeout > 0 {
		c.timeout = timeout
	}
	if batchSize > 0 && batchSize <= MaxBatchSize {
		c.batchSize = batchSize
	}
	if concurrency > 0 {
		c.concurrency = concurrency
	}
	return c
}

// WithRetryPolicy installs p; only transient provider errors are retried.
func (c *Client) WithRetryPolicy(p retry.Policy) *Client {
	p.Retryable = isTransient
	c.policy = p
	return c
}

func (c *Client) WithRateLimiter(rl RateLimiter, perSecond int64) *Client {
	c.rl = rl
	c.rlPerSecond = perSecond
	return c
}

func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.httpc = h
	}
	return c
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rejectedItem struct {
	Number string   `json:"number"`
	Error  apiError `json:"error"`
}

type registerReq struct {
	Number  string `json:"number"`
	Carrier int    `json:"carrier,omitempty"`
}

type registerData struct {
	Accepted []struct {
		Number  string `json:"number"`
		Carrier int    `json:"carrier"`
	} `json:"accepted"`
	Rejected []rejectedItem `json:"rejected"`
}

type trackReq struct {
	Number string `json:"number"`
}

type trackData struct {
	Accepted []struct {
		Number  string `json:"number"`
		Carrier int    `json:"carrier"`
		Track   struct {
			E  int `json:"e"`
			Z0 struct {
				Z []struct {
					A string `json:"a"`
					Z string `json:"z"`
					C string `json:"c"`
				} `json:"z"`
			} `json:"z0"`
		} `json:"track"`
	} `json:"accepted"`
	Rejected []rejectedItem `json:"rejected"`
}

type quotaData struct {
	QuotaTotal  int `json:"quota_total"`
	QuotaUsed   int `json:"quota_used"`
	QuotaRemain int `json:"quota_remain"`
}

type errorsData struct {
	Errors []apiError `json:"errors"`
}

// Register registers numbers in batches. A quota rejection halts the call:
// what was accepted so far is returned together with ErrQuotaExceeded.
func (c *Client) Register(ctx context.Context, items []provider.RegisterItem) (provider.RegisterResult, error) {
	var res provider.RegisterResult
	for start := 0; start < len(items); start += c.batchSize {
		end := min(start+c.batchSize, len(items))
		batch := items[start:end]

		payload := make([]registerReq, 0, len(batch))
		for _, it := range batch {
			payload = append(payload, registerReq{Number: it.Number, Carrier: it.CarrierCode})
		}

		raw, err := c.post(ctx, "/register", payload)
		if err != nil {
			return res, err
		}
		var d registerData
		if err := json.Unmarshal(raw, &d); err != nil {
			return res, errors.Wrap(err, "decode register")
		}

		quotaHit := false
		for _, a := range d.Accepted {
			res.Accepted = append(res.Accepted, provider.Accepted{Number: a.Number, CarrierCode: a.Carrier})
		}
		for _, r := range d.Rejected {
			reason := rejectReason(r.Error.Code)
			if reason == provider.ReasonQuotaExceeded {
				quotaHit = true
			}
			res.Rejected = append(res.Rejected, provider.Rejected{
				Number:  r.Number,
				Reason:  reason,
				Code:    r.Error.Code,
				Message: r.Error.Message,
			})
		}
		if quotaHit {
			for _, it := range items[end:] {
				res.Rejected = append(res.Rejected, provider.Rejected{
					Number: it.Number,
					Reason: provider.ReasonQuotaExceeded,
					Code:   codeQuotaExceeded,
				})
			}
			return res, errors.Wrap(models.ErrQuotaExceeded, "17track register")
		}
	}
	return res, nil
}

// FetchStatus splits numbers into batches and merges the results. A failed
// batch only fails its own numbers; configuration errors abort the call.
func (c *Client) FetchStatus(ctx context.Context, numbers []string) (provider.StatusResult, error) {
	res := provider.StatusResult{
		Tracks: make(map[string]provider.RawTrack, len(numbers)),
		Failed: make(map[string]error),
	}
	numbers = uniq(numbers)
	if len(numbers) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(numbers); start += c.batchSize {
		batch := numbers[start:min(start+c.batchSize, len(numbers))]
		g.Go(func() error {
			tracks, failed, err := c.fetchBatch(gctx, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, models.ErrConfiguration) {
					return err
				}
				slog.Warn("17track batch failed", "size", len(batch), "error", err.Error())
				for _, n := range batch {
					res.Failed[n] = err
				}
				return nil
			}
			for n, t := range tracks {
				res.Tracks[n] = t
			}
			for n, e := range failed {
				res.Failed[n] = e
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return provider.StatusResult{}, err
	}
	return res, nil
}

func (c *Client) fetchBatch(ctx context.Context, batch []string) (map[string]provider.RawTrack, map[string]error, error) {
	payload := make([]trackReq, 0, len(batch))
	for _, n := range batch {
		payload = append(payload, trackReq{Number: n})
	}
	raw, err := c.post(ctx, "/gettrackinfo", payload)
	if err != nil {
		return nil, nil, err
	}
	var d trackData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, nil, errors.Wrap(err, "decode gettrackinfo")
	}

	tracks := make(map[string]provider.RawTrack, len(d.Accepted))
	for _, a := range d.Accepted {
		t := provider.RawTrack{
			Number:      a.Number,
			CarrierCode: a.Carrier,
			StatusCode:  a.Track.E,
		}
		for _, ev := range a.Track.Z0.Z {
			t.Events = append(t.Events, provider.RawEvent{
				Time:        ev.A,
				Location:    ev.Z,
				Description: ev.C,
			})
		}
		tracks[a.Number] = t
	}

	failed := make(map[string]error)
	for _, r := range d.Rejected {
		failed[r.Number] = errors.Errorf("17track rejected %s: %s (code %d)", r.Number, r.Error.Message, r.Error.Code)
	}
	for _, n := range batch {
		_, ok := tracks[n]
		_, bad := failed[n]
		if !ok && !bad {
			failed[n] = errors.Errorf("17track returned nothing for %s", n)
		}
	}
	return tracks, failed, nil
}

func (c *Client) FetchQuota(ctx context.Context) (provider.Quota, error) {
	raw, err := c.post(ctx, "/getquota", struct{}{})
	if err != nil {
		return provider.Quota{}, err
	}
	var d quotaData
	if err := json.Unmarshal(raw, &d); err != nil {
		return provider.Quota{}, errors.Wrap(err, "decode getquota")
	}
	used := d.QuotaUsed
	if used == 0 && d.QuotaTotal > 0 && d.QuotaRemain > 0 {
		used = d.QuotaTotal - d.QuotaRemain
	}
	return provider.Quota{Used: used, Total: d.QuotaTotal}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, errors.Wrap(models.ErrConfiguration, "SEVENTEEN_TRACK_API_KEY is not set")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	var data json.RawMessage
	err = c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			slog.Warn("retrying 17track call", "path", path, "attempt", attempt)
		}
		d, err := c.doOnce(ctx, path, body)
		if err != nil {
			return err
		}
		data = d
		return nil
	})
	return data, err
}

func (c *Client) doOnce(ctx context.Context, path string, body []byte) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.throttle(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set(tokenHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(models.ErrTransientProvider, "17track %s: %v", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.Wrapf(models.ErrConfiguration, "17track rejected the API key (http %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.Wrapf(models.ErrTransientProvider, "17track %s http %d", path, resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return nil, errors.Errorf("17track %s http %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(models.ErrTransientProvider, "17track %s: %v", path, err)
		}
		return nil, errors.Wrap(err, "decode")
	}
	if env.Code != 0 {
		msg := ""
		var ed errorsData
		if json.Unmarshal(env.Data, &ed) == nil && len(ed.Errors) > 0 {
			msg = ed.Errors[0].Message
		}
		return nil, classifyCode(env.Code, msg)
	}
	return env.Data, nil
}

// throttle blocks until the shared per-second budget allows another call.
// A broken limiter never blocks requests.
func (c *Client) throttle(ctx context.Context) {
	if c.rl == nil || c.rlPerSecond <= 0 {
		return
	}
	for i := 0; i < 10; i++ {
		now := c.now().UTC()
		key := fmt.Sprintf("rl:17track:%d", now.Unix())
		allowed, n, err := c.rl.Allow(ctx, key, c.rlPerSecond, 2*time.Second)
		if err != nil {
			slog.Warn("rate limiter unavailable", "error", err.Error())
			return
		}
		if allowed {
			return
		}
		slog.Debug("17track rate limit reached", "count", n)
		wait := time.Second - time.Duration(now.Nanosecond())
		if retry.SleepContext(ctx, wait) != nil {
			return
		}
	}
}

func isTransient(err error) bool {
	return errors.Is(err, models.ErrTransientProvider)
}

func uniq(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
