package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type fixedCollector struct {
	mu    sync.Mutex
	calls int
	m     Metrics
}

func (f *fixedCollector) Collect(now time.Time) Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	m := f.m
	m.Timestamp = now
	return m
}

func TestSamplerStartStopDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewSampler(&fixedCollector{m: Metrics{UtilizationPercent: 60}})
	if !s.Start(context.Background(), time.Millisecond) {
		t.Fatal("expected sampler to start")
	}
	if s.Start(context.Background(), time.Millisecond) {
		t.Fatal("second start should be rejected")
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.History() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.History() == 0 {
		t.Fatal("expected at least one sample")
	}
	if !s.Stop() || s.Stop() {
		t.Fatal("stop should succeed exactly once")
	}
	if s.Running() {
		t.Fatal("sampler still running")
	}
}

func TestHistoryIsCapped(t *testing.T) {
	s := NewSampler(&fixedCollector{}, WithHistory(3))
	for i := 0; i < 5; i++ {
		s.Sample()
	}
	if s.History() != 3 {
		t.Fatalf("expected 3 samples, got %d", s.History())
	}
}

func TestAveragesUseWindowAndDefaults(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := now
	col := &fixedCollector{}
	s := NewSampler(col, WithClock(func() time.Time { return clock }))

	empty := s.Averages(time.Minute)
	if empty.TemperatureCelsius != 25 || empty.InferenceTimeMS != 50 || empty.UtilizationPercent != 0 {
		t.Fatalf("unexpected defaults %+v", empty)
	}

	col.m = Metrics{UtilizationPercent: 90, InferenceTimeMS: 10}
	clock = now.Add(-2 * time.Minute)
	s.Sample()
	col.m = Metrics{UtilizationPercent: 20, InferenceTimeMS: 30}
	clock = now
	s.Sample()
	col.m = Metrics{UtilizationPercent: 40, InferenceTimeMS: 50}
	s.Sample()

	avg := s.Averages(time.Minute)
	if avg.UtilizationPercent != 30 || avg.InferenceTimeMS != 40 {
		t.Fatalf("unexpected averages %+v", avg)
	}
}

func TestScoreAndSuggestions(t *testing.T) {
	good := Metrics{UtilizationPercent: 80, PowerConsumptionWatts: 0, InferenceTimeMS: 40, TemperatureCelsius: 50}
	if Score(good) != 100 {
		t.Fatalf("unexpected score %v", Score(good))
	}
	if got := Suggestions(good); len(got) != 1 || got[0] != "Performance otimizada - mantendo monitoramento" {
		t.Fatalf("unexpected suggestions %v", got)
	}

	bad := Metrics{UtilizationPercent: 10, TemperatureCelsius: 80, PowerConsumptionWatts: 20, InferenceTimeMS: 300}
	if got := Suggestions(bad); len(got) != 4 {
		t.Fatalf("expected four suggestions, got %v", got)
	}
	if Score(bad) < 0 {
		t.Fatal("score must not be negative")
	}
}

func TestRuntimeCollectorDutyCycle(t *testing.T) {
	c := NewRuntimeCollector()
	start := time.Unix(100, 0)
	c.Collect(start)
	c.ObserveInference(250 * time.Millisecond)
	m := c.Collect(start.Add(time.Second))
	if m.UtilizationPercent != 25 || m.InferenceTimeMS != 250 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if m.MemoryUsedMB <= 0 {
		t.Fatal("expected memory usage")
	}
}
