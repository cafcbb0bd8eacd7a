package dsp

import "math"

// FindPeaks returns the indices of samples strictly greater than both
// neighbours and above fraction of the maximum value.
func FindPeaks(data []float64, fraction float64) []int {
	if len(data) < 3 {
		return nil
	}
	max := data[0]
	for _, v := range data {
		if v > max {
			max = v
		}
	}
	threshold := fraction * max
	var peaks []int
	for i := 1; i < len(data)-1; i++ {
		if data[i] > data[i-1] && data[i] > data[i+1] && data[i] > threshold {
			peaks = append(peaks, i)
		}
	}
	return peaks
}

// SeparatePeaks merges peaks closer than minGap samples, keeping the
// higher of each pair.
func SeparatePeaks(data []float64, peaks []int, minGap int) []int {
	if len(peaks) == 0 || minGap <= 1 {
		return peaks
	}
	out := []int{peaks[0]}
	for _, p := range peaks[1:] {
		last := out[len(out)-1]
		if p-last >= minGap {
			out = append(out, p)
			continue
		}
		if data[p] > data[last] {
			out[len(out)-1] = p
		}
	}
	return out
}

// Autocorrelation returns the normalized autocorrelation of data at lag,
// in [-1,1]. Constant or too-short input yields 0.
func Autocorrelation(data []float64, lag int) float64 {
	if lag <= 0 || lag >= len(data) {
		return 0
	}
	mean := sum(data) / float64(len(data))
	var num, den float64
	for i, v := range data {
		d := v - mean
		den += d * d
		if i+lag < len(data) {
			num += d * (data[i+lag] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// RateEstimator turns a band-limited envelope into a modulation rate.
type RateEstimator struct {
	SampleRate     float64
	PeakFraction   float64
	MinRateHz      float64
	MaxRateHz      float64
	MinPeriodicity float64
}

// Estimate returns the modulation rate in Hz from the mean spacing of the
// envelope peaks. The envelope is first smoothed over half the shortest
// modulation period, which removes carrier ripple. The dominant
// autocorrelation lag then sets both a second smoothing window and the
// minimum gap between peaks, so each modulation cycle yields one peak.
// It returns 0 when fewer than two peaks remain, the envelope is not
// periodic within [MinRateHz, MaxRateHz] or the peak spacing disagrees
// with the autocorrelation period.
func (e RateEstimator) Estimate(data []float64) float64 {
	if len(data) < 3 || e.SampleRate <= 0 {
		return 0
	}
	mean := sum(data) / float64(len(data))
	env := make([]float64, len(data))
	for i, v := range data {
		env[i] = v - mean
	}
	if e.MaxRateHz > 0 {
		env = MovingAverage(env, int(e.SampleRate/(2*e.MaxRateHz)))
	}

	period := e.period(env)
	if period == 0 {
		return 0
	}
	window := int(period / 4)
	env = MovingAverage(env, window)
	// Crests whose smoothing window is cut by the buffer edge are unreliable.
	var peaks []int
	for _, p := range FindPeaks(env, e.PeakFraction) {
		if p >= window/2 && p < len(env)-window/2 {
			peaks = append(peaks, p)
		}
	}
	peaks = SeparatePeaks(env, peaks, int(period/2))
	if len(peaks) < 2 {
		return 0
	}

	span := float64(peaks[len(peaks)-1] - peaks[0])
	cycles := math.Round(span / period)
	if cycles < 1 {
		return 0
	}
	spacing := span / cycles
	if math.Abs(spacing-period) > 0.25*period {
		return 0
	}
	rate := e.SampleRate / spacing
	if rate < e.MinRateHz || (e.MaxRateHz > 0 && rate > e.MaxRateHz*1.1) {
		return 0
	}
	return rate
}

// period returns the dominant repetition interval of env in samples: the
// strongest autocorrelation lag past the first zero crossing, searched on
// a decimated copy and refined at full rate. It returns 0 when no lag in
// the rate band reaches MinPeriodicity.
func (e RateEstimator) period(env []float64) float64 {
	step := 1
	if e.MaxRateHz > 0 {
		step = max(1, int(e.SampleRate/(8*e.MaxRateHz)))
	}
	dec := make([]float64, 0, len(env)/step+1)
	for i := 0; i < len(env); i += step {
		dec = append(dec, env[i])
	}

	lo, hi := 1, len(dec)/2
	if e.MaxRateHz > 0 {
		lo = max(1, int(e.SampleRate/(1.1*e.MaxRateHz)/float64(step)))
	}
	if e.MinRateHz > 0 {
		hi = min(hi, int(e.SampleRate/e.MinRateHz/float64(step)))
	}
	if lo >= hi {
		return 0
	}

	zero := 1
	for zero < hi && Autocorrelation(dec, zero) >= 0 {
		zero++
	}
	if zero >= hi {
		return 0
	}
	best, bestR := 0, e.MinPeriodicity
	for lag := max(zero, lo); lag <= hi; lag++ {
		if r := Autocorrelation(dec, lag); r > bestR {
			best, bestR = lag, r
		}
	}
	if best == 0 {
		return 0
	}

	// refine at full rate around the coarse lag
	coarse := best * step
	best, bestR = coarse, Autocorrelation(env, coarse)
	for lag := max(1, coarse-step); lag <= min(len(env)-1, coarse+step); lag++ {
		if r := Autocorrelation(env, lag); r > bestR {
			best, bestR = lag, r
		}
	}
	return float64(best)
}

// MovingAverage returns the centred running mean of data over w samples.
// The window shrinks at the edges; w <= 1 returns a copy.
func MovingAverage(data []float64, w int) []float64 {
	out := make([]float64, len(data))
	if w <= 1 {
		copy(out, data)
		return out
	}
	prefix := make([]float64, len(data)+1)
	for i, v := range data {
		prefix[i+1] = prefix[i] + v
	}
	half := w / 2
	for i := range out {
		lo := max(0, i-half)
		hi := min(len(data), i+half+1)
		out[i] = (prefix[hi] - prefix[lo]) / float64(hi-lo)
	}
	return out
}
