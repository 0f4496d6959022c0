package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Histogram is a fixed-bucket latency distribution. Observations are stored
// in Unit, so the wrap histograms count microseconds and the PBKDF2 one
// counts milliseconds.
type Histogram struct {
	unit   time.Duration
	bounds []float64

	mu     sync.Mutex
	counts []uint64 // per bucket, last entry is the +Inf overflow
	sum    float64
	count  uint64
	min    float64
	max    float64
}

// NewHistogram creates a histogram over bounds expressed in unit.
func NewHistogram(unit time.Duration, bounds []float64) *Histogram {
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	if unit <= 0 {
		unit = time.Microsecond
	}
	h := &Histogram{unit: unit, bounds: b, counts: make([]uint64, len(b)+1)}
	h.resetLocked()
	return h
}

func (h *Histogram) resetLocked() {
	clear(h.counts)
	h.sum, h.count = 0, 0
	h.min, h.max = math.Inf(1), math.Inf(-1)
}

// Unit returns the unit observations are recorded in.
func (h *Histogram) Unit() time.Duration {
	return h.unit
}

// ObserveDuration records d converted to the histogram's unit.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(float64(d) / float64(h.unit))
}

// Observe records a value already expressed in the histogram's unit. A value
// equal to a bound falls in that bound's bucket.
func (h *Histogram) Observe(v float64) {
	idx := sort.SearchFloat64s(h.bounds, v)

	h.mu.Lock()
	h.counts[idx]++
	h.sum += v
	h.count++
	h.min = math.Min(h.min, v)
	h.max = math.Max(h.max, v)
	h.mu.Unlock()
}

// Reset drops all observations.
func (h *Histogram) Reset() {
	h.mu.Lock()
	h.resetLocked()
	h.mu.Unlock()
}

// BucketCount is a cumulative bucket: Count observations were <= UpperBound.
type BucketCount struct {
	UpperBound float64 `json:"le"`
	Count      uint64  `json:"count"`
}

// HistogramSummary is an immutable copy of a histogram.
type HistogramSummary struct {
	Count   uint64        `json:"count"`
	Sum     float64       `json:"sum"`
	Min     float64       `json:"min"`
	Max     float64       `json:"max"`
	Buckets []BucketCount `json:"buckets"`
}

// Summary copies the histogram. Buckets are cumulative and end with +Inf.
// An empty histogram has zero Min and Max.
func (h *Histogram) Summary() HistogramSummary {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := HistogramSummary{
		Count:   h.count,
		Sum:     h.sum,
		Buckets: make([]BucketCount, len(h.counts)),
	}
	if h.count > 0 {
		s.Min, s.Max = h.min, h.max
	}

	var cumulative uint64
	for i, c := range h.counts {
		cumulative += c
		bound := math.Inf(1)
		if i < len(h.bounds) {
			bound = h.bounds[i]
		}
		s.Buckets[i] = BucketCount{UpperBound: bound, Count: cumulative}
	}
	return s
}

// Mean returns the average observation, or 0 when empty.
func (s HistogramSummary) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// Quantile estimates the q-quantile (0 < q <= 1) by linear interpolation
// inside the bucket holding the target rank, clamped to [Min, Max].
func (s HistogramSummary) Quantile(q float64) float64 {
	if s.Count == 0 || len(s.Buckets) == 0 {
		return 0
	}
	rank := q * float64(s.Count)

	var prev uint64
	lower := s.Min
	for _, b := range s.Buckets {
		if float64(b.Count) >= rank && b.Count > prev {
			upper := math.Min(b.UpperBound, s.Max)
			lower = math.Max(lower, s.Min)
			frac := (rank - float64(prev)) / float64(b.Count-prev)
			return lower + frac*(upper-lower)
		}
		prev = b.Count
		if !math.IsInf(b.UpperBound, 1) {
			lower = b.UpperBound
		}
	}
	return s.Max
}
