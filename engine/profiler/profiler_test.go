package profiler

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Duration
}

func (c *fakeClock) now() time.Duration {
	return c.t
}

func TestTickReportsOncePerInterval(t *testing.T) {
	clock := &fakeClock{}
	p := newProfiler(clock.now, time.Second)

	for i := 0; i < 9; i++ {
		clock.t += 100 * time.Millisecond
		if _, ok := p.Tick(2); ok {
			t.Fatalf("reported early at tick %d", i)
		}
	}
	clock.t += 100 * time.Millisecond
	r, ok := p.Tick(2)
	if !ok {
		t.Fatal("no report after one second")
	}
	if r.IntervalFrames != 10 || r.FPS != 10 || r.GPS != 20 {
		t.Fatalf("frames %d fps %v gps %v", r.IntervalFrames, r.FPS, r.GPS)
	}
	if r.MeanFrame != 100*time.Millisecond || r.MaxFrame != 100*time.Millisecond {
		t.Fatalf("mean %v max %v", r.MeanFrame, r.MaxFrame)
	}
	if r.Generations != 20 {
		t.Fatalf("generations = %d", r.Generations)
	}

	clock.t += 300 * time.Millisecond
	clock.t += 800 * time.Millisecond
	r, ok = p.Tick(0)
	if !ok || r.IntervalFrames != 1 || r.Generations != 20 || r.MaxFrame != 1100*time.Millisecond {
		t.Fatalf("second interval: %+v", r)
	}
}

func TestSetIntervalIgnoresNonPositive(t *testing.T) {
	p := newProfiler((&fakeClock{}).now, time.Second)
	p.SetInterval(0)
	if p.updateInterval != time.Second {
		t.Fatalf("interval = %v", p.updateInterval)
	}
	p.SetInterval(time.Minute)
	if p.updateInterval != time.Minute {
		t.Fatalf("interval = %v", p.updateInterval)
	}
}

func TestFormatCount(t *testing.T) {
	if got := FormatCount(1234567); got != "1,234,567" {
		t.Fatalf("FormatCount = %q", got)
	}
}
