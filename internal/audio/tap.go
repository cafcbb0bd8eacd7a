package audio

import "sync"

// tapSeconds bounds how much unread audio a tap keeps.
const tapSeconds = 4

// Tap is a decimating ring buffer fed from the mixer. It implements
// acoustic.SampleSource; Read returns only what has been played.
type Tap struct {
	mu    sync.Mutex
	rate  float64
	ratio float64
	ring  []float64
	start int
	size  int
	acc   float64
	sum   float64
	count int
}

func newTap(rate, inputRate float64) *Tap {
	if rate <= 0 || rate > inputRate {
		rate = inputRate
	}
	return &Tap{
		rate:  rate,
		ratio: inputRate / rate,
		ring:  make([]float64, int(rate*tapSeconds)),
	}
}

// SampleRate implements acoustic.SampleSource.
func (t *Tap) SampleRate() float64 { return t.rate }

// Read copies up to len(dst) buffered samples, oldest first.
func (t *Tap) Read(dst []float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := min(len(dst), t.size)
	for i := 0; i < n; i++ {
		dst[i] = t.ring[(t.start+i)%len(t.ring)]
	}
	t.start = (t.start + n) % len(t.ring)
	t.size -= n
	return n
}

// Buffered returns the number of unread samples.
func (t *Tap) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// write box-averages input samples down to the tap rate.
func (t *Tap) write(in []float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, x := range in {
		t.sum += x
		t.count++
		t.acc++
		if t.acc < t.ratio {
			continue
		}
		t.acc -= t.ratio
		t.push(t.sum / float64(t.count))
		t.sum, t.count = 0, 0
	}
}

func (t *Tap) push(x float64) {
	if t.size == len(t.ring) {
		t.ring[t.start] = x
		t.start = (t.start + 1) % len(t.ring)
		return
	}
	t.ring[(t.start+t.size)%len(t.ring)] = x
	t.size++
}
