package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-life/common"
	"github.com/loov/hrtime"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Report holds the statistics of one profiler interval.
type Report struct {
	FPS            float64
	GPS            float64 // generations per second
	MeanFrame      time.Duration
	MaxFrame       time.Duration
	HeapMB         float64
	AllocRateMB    float64
	SysMB          float64
	GCCount        uint32
	LastGCPause    time.Duration
	MaxGCPause     time.Duration
	Generations    uint64 // total so far
	IntervalFrames int
}

// Profiler tracks frame rate, generation rate and memory statistics.
// Reports are logged at Info level once per interval.
type Profiler struct {
	now func() time.Duration

	updateInterval time.Duration
	printer        *message.Printer

	frameCount     int
	genCount       int
	totalGens      uint64
	intervalStart  time.Duration
	lastFrame      time.Duration
	maxFrame       time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// NewProfiler creates a new Profiler. Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return newProfiler(hrtime.Now, time.Second)
}

func newProfiler(now func() time.Duration, interval time.Duration) *Profiler {
	t := now()
	return &Profiler{
		now:            now,
		updateInterval: interval,
		printer:        message.NewPrinter(language.English),
		intervalStart:  t,
		lastFrame:      t,
	}
}

// SetInterval changes the reporting interval. Values <= 0 are ignored.
//
// Parameters:
//   - d: the new interval
func (p *Profiler) SetInterval(d time.Duration) {
	if d > 0 {
		p.updateInterval = d
	}
}

// Tick should be called once per frame.
//
// Parameters:
//   - generations: the number of generations computed this frame
//
// Returns:
//   - Report: the interval statistics, valid only when the bool is true
//   - bool: true if an interval completed and was logged this tick
func (p *Profiler) Tick(generations int) (Report, bool) {
	t := p.now()
	if frame := t - p.lastFrame; frame > p.maxFrame {
		p.maxFrame = frame
	}
	p.lastFrame = t
	p.frameCount++
	p.genCount += generations
	p.totalGens += uint64(generations)

	elapsed := t - p.intervalStart
	if elapsed < p.updateInterval {
		return Report{}, false
	}

	runtime.ReadMemStats(&p.memStats)
	secs := elapsed.Seconds()
	r := Report{
		FPS:            float64(p.frameCount) / secs,
		GPS:            float64(p.genCount) / secs,
		MeanFrame:      elapsed / time.Duration(p.frameCount),
		MaxFrame:       p.maxFrame,
		HeapMB:         float64(p.memStats.Alloc) / 1024 / 1024,
		AllocRateMB:    float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / secs,
		SysMB:          float64(p.memStats.Sys) / 1024 / 1024,
		GCCount:        p.memStats.NumGC,
		Generations:    p.totalGens,
		IntervalFrames: p.frameCount,
	}

	// PauseNs is a circular buffer of the last 256 pauses
	if gc := p.memStats.NumGC; gc > 0 {
		r.LastGCPause = time.Duration(p.memStats.PauseNs[(gc-1)%256])
		start := p.lastGCCount
		if gc-start > 256 {
			start = gc - 256
		}
		for i := start; i < gc; i++ {
			if pause := time.Duration(p.memStats.PauseNs[i%256]); pause > r.MaxGCPause {
				r.MaxGCPause = pause
			}
		}
	}

	common.Logger().Info("profiler",
		"fps", p.printer.Sprintf("%.1f", r.FPS),
		"gens_per_sec", p.printer.Sprintf("%.1f", r.GPS),
		"generation", p.printer.Sprintf("%d", r.Generations),
		"frame_mean", r.MeanFrame,
		"frame_max", r.MaxFrame,
		"heap_mb", p.printer.Sprintf("%.2f", r.HeapMB),
		"alloc_mb_per_sec", p.printer.Sprintf("%.2f", r.AllocRateMB),
		"gc", r.GCCount,
		"gc_pause_max", r.MaxGCPause,
	)

	p.frameCount = 0
	p.genCount = 0
	p.maxFrame = 0
	p.intervalStart = t
	p.lastGCCount = p.memStats.NumGC
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return r, true
}

// FormatCount formats n with English digit grouping, e.g. 1,234,567.
//
// Parameters:
//   - n: the number to format
//
// Returns:
//   - string: the formatted number
func FormatCount(n uint64) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}
