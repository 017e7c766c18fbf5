package rotation

import (
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/qr-checkin/internal/model"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestIntervalTable(t *testing.T) {
	want := map[model.SecurityLevel]time.Duration{
		model.SecurityBasic:    0,
		model.SecurityStandard: 300 * time.Second,
		model.SecurityHigh:     60 * time.Second,
		model.SecurityMaximum:  30 * time.Second,
	}
	for level, d := range want {
		if got := IntervalFor(level); got != d {
			t.Fatalf("IntervalFor(%s) = %s, want %s", level, got, d)
		}
	}
}

func TestZeroIntervalNeverStarts(t *testing.T) {
	s := New(nil, nil)
	if s.Start("c1", 0, time.Time{}, 0) {
		t.Fatalf("zero interval must not start a timer")
	}
	if st := s.Status("c1"); st.IsRotating || st.CurrentRotation != 0 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestCounterAdvancesMonotonically(t *testing.T) {
	s := New(nil, nil)
	defer s.StopAll()

	if !s.Start("c1", 5*time.Millisecond, time.Time{}, 0) {
		t.Fatalf("start failed")
	}
	var last int64
	for i := 0; i < 3; i++ {
		waitFor(t, time.Second, func() bool { return s.Status("c1").CurrentRotation > last })
		cur := s.Status("c1").CurrentRotation
		if cur < last {
			t.Fatalf("counter went backwards: %d -> %d", last, cur)
		}
		last = cur
	}
}

func TestStartTwiceKeepsFirstTimer(t *testing.T) {
	s := New(nil, nil)
	defer s.StopAll()
	if !s.Start("c1", time.Hour, time.Time{}, 7) {
		t.Fatalf("first start failed")
	}
	if s.Start("c1", time.Hour, time.Time{}, 0) {
		t.Fatalf("second start should be rejected")
	}
	if got := s.Status("c1").CurrentRotation; got != 7 {
		t.Fatalf("counter = %d, want 7", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(nil, nil)
	s.Start("c1", time.Hour, time.Time{}, 0)
	s.Stop("c1")
	s.Stop("c1")
	s.Stop("never-started")
	if s.Active() != 0 {
		t.Fatalf("active = %d, want 0", s.Active())
	}
	if s.Status("c1").IsRotating {
		t.Fatalf("stopped code still rotating")
	}
}

func TestTimerStopsAtExpiry(t *testing.T) {
	s := New(nil, nil)
	if !s.Start("c1", time.Hour, time.Now().Add(20*time.Millisecond), 0) {
		t.Fatalf("start failed")
	}
	waitFor(t, time.Second, func() bool { return !s.Status("c1").IsRotating })
	if s.Active() != 0 {
		t.Fatalf("expired timer left behind")
	}
}

func TestAlreadyExpiredDoesNotStart(t *testing.T) {
	s := New(nil, nil)
	if s.Start("c1", time.Second, time.Now().Add(-time.Second), 0) {
		t.Fatalf("expired code must not start rotating")
	}
}

func TestConcurrentStartStopStatus(t *testing.T) {
	s := New(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); s.Start("hot", time.Millisecond, time.Time{}, 0) }()
		go func() { defer wg.Done(); _ = s.Status("hot") }()
		go func() { defer wg.Done(); s.Stop("hot") }()
	}
	wg.Wait()
	s.StopAll()
	if s.Active() != 0 {
		t.Fatalf("active = %d after StopAll", s.Active())
	}
}

func TestElapsedRotations(t *testing.T) {
	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	if got := ElapsedRotations(created, created.Add(125*time.Second), 60*time.Second); got != 2 {
		t.Fatalf("elapsed = %d, want 2", got)
	}
	if got := ElapsedRotations(created, created.Add(-time.Second), time.Second); got != 0 {
		t.Fatalf("elapsed before creation = %d, want 0", got)
	}
	if got := ElapsedRotations(created, created.Add(time.Hour), 0); got != 0 {
		t.Fatalf("elapsed with zero interval = %d, want 0", got)
	}
}
