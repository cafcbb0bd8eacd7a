package sim

import "math"

// DetectionThreshold is the SNR above which a target counts as detected.
const DetectionThreshold = 5.0

// Geometry is the relative listener→target picture for one tick.
type Geometry struct {
	Range    float64
	Bearing  float64
	SNR      float64
	Detected bool
}

// Range is the horizontal distance between listener and target.
func Range(target, listener Vector3) float64 {
	return math.Hypot(target.X-listener.X, target.Z-listener.Z)
}

// Bearing is the true bearing from listener to target in degrees, [0,360).
func Bearing(target, listener Vector3) float64 {
	dx := target.X - listener.X
	dz := target.Z - listener.Z
	return normalizeDegrees(math.Atan2(dx, dz) * 180 / math.Pi)
}

// SNR is a loudness/range figure of merit, not a calibrated dB value.
func SNR(rangeUnits, cavitationLevel float64) float64 {
	return cavitationLevel * 1000 / (rangeUnits*0.1 + 1)
}

// Propagate computes range, bearing, SNR and detection for a target.
func Propagate(target Vector3, cavitationLevel float64, listener Vector3) Geometry {
	r := Range(target, listener)
	snr := SNR(r, cavitationLevel)
	return Geometry{
		Range:    r,
		Bearing:  Bearing(target, listener),
		SNR:      snr,
		Detected: snr > DetectionThreshold,
	}
}
