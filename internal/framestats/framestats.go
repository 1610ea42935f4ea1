// Package framestats tracks decoded-frame pacing. The consumer records the
// arrival of every access unit it feeds to the decoder; snapshots summarize
// rate and jitter over a sliding window so operators can judge link health
// from the logs without a probe on the air side.
package framestats

import (
	"math"
	"sync"
	"time"
)

const (
	// windowSize is how many recent frame arrivals a tracker retains.
	windowSize = 120

	// fpsStabilityThreshold is the maximum FPS standard deviation, as a
	// fraction of the mean, for the stream to count as steady.
	fpsStabilityThreshold = 0.15
	// jitterStabilityThreshold is the maximum mean jitter, as a fraction of
	// the expected inter-frame interval, for the stream to count as steady.
	jitterStabilityThreshold = 0.20
)

// Stats summarizes frame pacing over the observation window.
type Stats struct {
	Frames   int
	Duration time.Duration

	FPSMean   float64
	FPSStdDev float64
	FPSMin    float64
	FPSMax    float64

	// JitterMean is the mean absolute deviation from the expected
	// inter-frame interval, in seconds.
	JitterMean   float64
	JitterStdDev float64
	JitterMax    float64

	// Steady reports whether rate and jitter are both within their
	// stability thresholds.
	Steady bool
}

// Tracker is a sliding-window frame arrival recorder. Safe for one writer
// and any number of snapshot readers.
type Tracker struct {
	mu    sync.Mutex
	times []time.Time
	next  int
	full  bool
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{times: make([]time.Time, windowSize)}
}

// Record notes one frame arrival.
func (t *Tracker) Record(at time.Time) {
	t.mu.Lock()
	t.times[t.next] = at
	t.next++
	if t.next == len(t.times) {
		t.next = 0
		t.full = true
	}
	t.mu.Unlock()
}

// Reset clears the window.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.next = 0
	t.full = false
	t.mu.Unlock()
}

// Snapshot computes statistics over the current window.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	var ordered []time.Time
	if t.full {
		ordered = make([]time.Time, 0, len(t.times))
		ordered = append(ordered, t.times[t.next:]...)
		ordered = append(ordered, t.times[:t.next]...)
	} else {
		ordered = append([]time.Time(nil), t.times[:t.next]...)
	}
	t.mu.Unlock()

	var duration time.Duration
	if len(ordered) > 1 {
		duration = ordered[len(ordered)-1].Sub(ordered[0])
	}
	return Compute(ordered, duration)
}

// Compute derives pacing statistics from ordered frame arrival times over
// the given span. Fewer than two frames (or a zero span) yields an unsteady
// zero-rate result.
func Compute(frameTimes []time.Time, span time.Duration) Stats {
	n := len(frameTimes)
	stats := Stats{Frames: n, Duration: span}
	if n < 2 || span <= 0 {
		return stats
	}

	stats.FPSMean = float64(n-1) / span.Seconds()

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		iv := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		if iv > 0 {
			intervals = append(intervals, iv)
		}
	}
	if len(intervals) == 0 {
		return stats
	}

	stats.FPSMin = math.Inf(1)
	var sumSquares float64
	for _, iv := range intervals {
		fps := 1.0 / iv
		if fps < stats.FPSMin {
			stats.FPSMin = fps
		}
		if fps > stats.FPSMax {
			stats.FPSMax = fps
		}
		diff := fps - stats.FPSMean
		sumSquares += diff * diff
	}
	stats.FPSStdDev = math.Sqrt(sumSquares / float64(len(intervals)))

	expected := 1.0 / stats.FPSMean
	var jitterSum float64
	jitters := make([]float64, 0, len(intervals))
	for _, iv := range intervals {
		j := math.Abs(iv - expected)
		jitters = append(jitters, j)
		jitterSum += j
		if j > stats.JitterMax {
			stats.JitterMax = j
		}
	}
	stats.JitterMean = jitterSum / float64(len(jitters))

	var jitterSquares float64
	for _, j := range jitters {
		diff := j - stats.JitterMean
		jitterSquares += diff * diff
	}
	stats.JitterStdDev = math.Sqrt(jitterSquares / float64(len(jitters)))

	stats.Steady = stats.FPSStdDev < stats.FPSMean*fpsStabilityThreshold &&
		stats.JitterMean < expected*jitterStabilityThreshold
	return stats
}
