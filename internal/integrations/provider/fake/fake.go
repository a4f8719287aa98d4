package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/BearBump/packtrack/internal/integrations/provider"
)

// Client: офлайн-заглушка 17track для разработки и демо (tracker.provider: fake).
// Статус детерминирован по номеру: каждый опрос добавляет одно событие,
// часть треков в итоге становится доставленной.
type Client struct {
	mu         sync.Mutex
	registered map[string]int
	polls      map[string]int
	quotaTotal int
	base       time.Time
}

func New(quotaTotal int) *Client {
	if quotaTotal <= 0 {
		quotaTotal = 100
	}
	return &Client{
		registered: make(map[string]int),
		polls:      make(map[string]int),
		quotaTotal: quotaTotal,
		base:       time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (f *Client) Register(_ context.Context, items []provider.RegisterItem) (provider.RegisterResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res provider.RegisterResult
	for _, it := range items {
		if _, ok := f.registered[it.Number]; ok {
			res.Rejected = append(res.Rejected, provider.Rejected{Number: it.Number, Reason: provider.ReasonAlreadyRegistered})
			continue
		}
		if len(f.registered) >= f.quotaTotal {
			res.Rejected = append(res.Rejected, provider.Rejected{Number: it.Number, Reason: provider.ReasonQuotaExceeded})
			continue
		}
		f.registered[it.Number] = it.CarrierCode
		res.Accepted = append(res.Accepted, provider.Accepted{Number: it.Number, CarrierCode: it.CarrierCode})
	}
	return res, nil
}

func (f *Client) FetchStatus(_ context.Context, numbers []string) (provider.StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	res := provider.StatusResult{
		Tracks: make(map[string]provider.RawTrack, len(numbers)),
		Failed: make(map[string]error),
	}
	for _, n := range numbers {
		// состояние живёт только в процессе: номера, добавленные другим
		// запуском CLI, отдаём как автоопределённые
		code := f.registered[n]
		f.polls[n]++
		res.Tracks[n] = f.track(n, code, f.polls[n])
	}
	return res, nil
}

func (f *Client) FetchQuota(_ context.Context) (provider.Quota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return provider.Quota{Used: len(f.registered), Total: f.quotaTotal}, nil
}

func (f *Client) track(number string, carrierCode, polls int) provider.RawTrack {
	h := fnv.New32a()
	_, _ = h.Write([]byte(number))
	v := h.Sum32()

	// 2..5 событий на трек, 20% треков доставляются
	steps := 2 + int(v%4)
	delivered := v%5 == 0

	n := min(polls, steps)
	events := make([]provider.RawEvent, 0, n)
	for i := n - 1; i >= 0; i-- {
		desc := "In transit"
		switch {
		case i == 0:
			desc = "Shipment accepted"
		case i == steps-1 && delivered:
			desc = "Delivered"
		}
		events = append(events, provider.RawEvent{
			Time:        f.base.Add(time.Duration(i) * 6 * time.Hour).Format("2006-01-02 15:04"),
			Location:    fmt.Sprintf("Hub %d", int(v%97)+i),
			Description: desc,
		})
	}

	status := 10
	if n == steps && delivered {
		status = 40
	}
	return provider.RawTrack{Number: number, CarrierCode: carrierCode, StatusCode: status, Events: events}
}
