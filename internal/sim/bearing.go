package sim

import (
	"math/rand"
	"sort"
)

const (
	// BearingHistoryLimit caps readings kept per target.
	BearingHistoryLimit = 200
	// BearingSampleProbability gates how often a detected target gets a fix.
	BearingSampleProbability = 0.3
	// BearingNoiseDeg is the full width of the uniform bearing noise.
	BearingNoiseDeg = 5.0
)

// BearingRing is a fixed-capacity FIFO of readings for one target.
type BearingRing struct {
	buf   []BearingReading
	start int
	size  int
}

// NewBearingRing allocates a ring holding at most capacity readings.
func NewBearingRing(capacity int) *BearingRing {
	if capacity <= 0 {
		capacity = BearingHistoryLimit
	}
	return &BearingRing{buf: make([]BearingReading, capacity)}
}

// Push appends r, evicting the oldest reading when full.
func (b *BearingRing) Push(r BearingReading) {
	c := len(b.buf)
	if b.size < c {
		b.buf[(b.start+b.size)%c] = r
		b.size++
		return
	}
	b.buf[b.start] = r
	b.start = (b.start + 1) % c
}

// Len reports the number of readings held.
func (b *BearingRing) Len() int { return b.size }

// Readings returns the readings oldest first.
func (b *BearingRing) Readings() []BearingReading {
	out := make([]BearingReading, b.size)
	c := len(b.buf)
	for i := 0; i < b.size; i++ {
		out[i] = b.buf[(b.start+i)%c]
	}
	return out
}

// BearingTracker keeps per-target bearing histories for TMA plotting.
type BearingTracker struct {
	rings    map[string]*BearingRing
	capacity int
	rng      *rand.Rand
}

// NewBearingTracker builds a tracker; rng drives both the sampling gate and
// the bearing noise.
func NewBearingTracker(capacity int, rng *rand.Rand) *BearingTracker {
	if capacity <= 0 {
		capacity = BearingHistoryLimit
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &BearingTracker{rings: make(map[string]*BearingRing), capacity: capacity, rng: rng}
}

// Append stores a reading unconditionally.
func (bt *BearingTracker) Append(id string, r BearingReading) {
	ring, ok := bt.rings[id]
	if !ok {
		ring = NewBearingRing(bt.capacity)
		bt.rings[id] = ring
	}
	ring.Push(r)
}

// Observe runs the stochastic gate for a detected target and appends a
// noisy reading when it passes. It reports whether a reading was stored.
func (bt *BearingTracker) Observe(id string, g Geometry, nowMs int64) bool {
	if !g.Detected {
		return false
	}
	if bt.rng.Float64() >= BearingSampleProbability {
		return false
	}
	noise := (bt.rng.Float64() - 0.5) * BearingNoiseDeg
	bt.Append(id, BearingReading{
		TimestampMs: nowMs,
		Bearing:     normalizeDegrees(g.Bearing + noise),
		Confidence:  clamp(g.SNR/20, 0, 1),
	})
	return true
}

// History returns a copy of the readings for id, oldest first.
func (bt *BearingTracker) History(id string) []BearingReading {
	ring, ok := bt.rings[id]
	if !ok {
		return nil
	}
	return ring.Readings()
}

// Drop forgets the history for id.
func (bt *BearingTracker) Drop(id string) {
	delete(bt.rings, id)
}

// BearingBucket is one plotting window of a TMA display.
type BearingBucket struct {
	StartMs  int64              `json:"startMs"`
	OffsetS  float64            `json:"offsetS"`
	Bearings map[string]float64 `json:"bearings"`
}

// BucketReadings groups readings from several targets into fixed windows.
// Within a window the latest reading of each target wins. Windows are
// aligned to multiples of windowMs and span the first to last reading.
func BucketReadings(histories map[string][]BearingReading, windowMs int64) []BearingBucket {
	if windowMs <= 0 {
		windowMs = 5000
	}
	var minT, maxT int64
	first := true
	for _, readings := range histories {
		for _, r := range readings {
			if first || r.TimestampMs < minT {
				minT = r.TimestampMs
			}
			if first || r.TimestampMs > maxT {
				maxT = r.TimestampMs
			}
			first = false
		}
	}
	if first {
		return nil
	}

	base := floorDiv(minT, windowMs) * windowMs
	n := int(floorDiv(maxT, windowMs)*windowMs-base)/int(windowMs) + 1
	buckets := make([]BearingBucket, n)
	for i := range buckets {
		start := base + int64(i)*windowMs
		buckets[i] = BearingBucket{
			StartMs:  start,
			OffsetS:  float64(start-base) / 1000,
			Bearings: make(map[string]float64),
		}
	}

	ids := make([]string, 0, len(histories))
	for id := range histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, r := range histories[id] {
			idx := int((floorDiv(r.TimestampMs, windowMs)*windowMs - base) / windowMs)
			buckets[idx].Bearings[id] = r.Bearing
		}
	}
	return buckets
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
