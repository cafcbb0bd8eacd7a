package sim

import "math"

// TimeCompressionRates are the operator-selectable multipliers.
var TimeCompressionRates = []float64{1, 5, 10, 20}

// ValidCompression reports whether k is one of TimeCompressionRates.
func ValidCompression(k float64) bool {
	for _, r := range TimeCompressionRates {
		if r == k {
			return true
		}
	}
	return false
}

// Integrate advances a position by velocity over dt seconds scaled by k.
// Velocity is not modified.
func Integrate(position, velocity Vector3, dt, k float64) Vector3 {
	return position.Add(velocity.Scale(dt * k))
}

// Course returns the heading of a velocity vector in degrees, [0,360).
func Course(velocity Vector3) float64 {
	return normalizeDegrees(math.Atan2(velocity.X, velocity.Z) * 180 / math.Pi)
}

// Speed returns the horizontal speed of a velocity vector.
func Speed(velocity Vector3) float64 {
	return velocity.HorizontalNorm()
}

// advance applies one integration step to t in place. Course and speed are
// derived in refresh.
func advance(t *Target, dt, k float64) {
	t.Position = Integrate(t.Position, t.Velocity, dt, k)
}
