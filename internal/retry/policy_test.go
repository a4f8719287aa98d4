package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

type PolicySuite struct {
	suite.Suite

	slept []time.Duration
	p     Policy
}

func (s *PolicySuite) SetupTest() {
	s.slept = nil
	s.p = Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
		Sleep: func(_ context.Context, d time.Duration) error {
			s.slept = append(s.slept, d)
			return nil
		},
	}
}

func (s *PolicySuite) TestDelay_ExponentialAndCapped() {
	s.Equal(time.Duration(0), s.p.Delay(0))
	s.Equal(100*time.Millisecond, s.p.Delay(1))
	s.Equal(200*time.Millisecond, s.p.Delay(2))
	s.Equal(400*time.Millisecond, s.p.Delay(3))
	s.Equal(time.Second, s.p.Delay(10))
}

func (s *PolicySuite) TestDelay_Jitter() {
	s.p.Jitter = 0.5
	s.p.Rand = fixedRand(1) // +50%
	s.Equal(150*time.Millisecond, s.p.Delay(1))
	s.p.Rand = fixedRand(0) // -50%
	s.Equal(50*time.Millisecond, s.p.Delay(1))
}

func (s *PolicySuite) TestDo_SucceedsAfterRetries() {
	calls := 0
	err := s.p.Do(context.Background(), func(_ context.Context, attempt int) error {
		calls++
		s.Equal(calls, attempt)
		if attempt < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	s.Require().NoError(err)
	s.Equal(3, calls)
	s.Equal([]time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, s.slept)
}

func (s *PolicySuite) TestDo_StopsAtCap() {
	want := errors.New("down")
	calls := 0
	err := s.p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return want
	})
	s.Require().ErrorIs(err, want)
	s.Equal(3, calls)
	s.Len(s.slept, 2)
}

func (s *PolicySuite) TestDo_NonRetryableReturnsImmediately() {
	fatal := errors.New("bad key")
	s.p.Retryable = func(err error) bool { return !errors.Is(err, fatal) }
	calls := 0
	err := s.p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return fatal
	})
	s.Require().ErrorIs(err, fatal)
	s.Equal(1, calls)
	s.Empty(s.slept)
}

func (s *PolicySuite) TestDo_ContextCanceledDuringSleep() {
	ctx, cancel := context.WithCancel(context.Background())
	s.p.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	want := errors.New("timeout")
	calls := 0
	err := s.p.Do(ctx, func(context.Context, int) error {
		calls++
		return want
	})
	s.Require().ErrorIs(err, want)
	s.Equal(1, calls)
}

func (s *PolicySuite) TestDo_ZeroAttemptsMeansOne() {
	s.p.MaxAttempts = 0
	calls := 0
	_ = s.p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return errors.New("x")
	})
	s.Equal(1, calls)
}

func TestPolicySuite(t *testing.T) {
	suite.Run(t, new(PolicySuite))
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}

func TestDelay_ConcurrentJitter(t *testing.T) {
	p := DefaultPolicy()
	lo := time.Duration(float64(p.BaseDelay) * (1 - p.Jitter))
	hi := time.Duration(float64(p.BaseDelay) * (1 + p.Jitter))

	var wg sync.WaitGroup
	out := make([]time.Duration, 8*100)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				out[g*100+i] = p.Delay(1)
			}
		}(g)
	}
	wg.Wait()

	for _, d := range out {
		require.GreaterOrEqual(t, d, lo)
		require.LessOrEqual(t, d, hi)
	}
}
