package sim

import (
	"errors"
	"math"
)

var (
	// ErrUnknownTarget is returned when a command names a target that does not exist.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrDuplicateTarget is returned by AddTarget when the id is already in use.
	ErrDuplicateTarget = errors.New("duplicate target id")
	// ErrInvalidTransition is returned for classification requests that would
	// skip or reverse a state.
	ErrInvalidTransition = errors.New("invalid classification transition")
	// ErrInvalidCompression is returned for time compression outside the rate set.
	ErrInvalidCompression = errors.New("unsupported time compression")
)

// Vector3 is a position or velocity in simulation units. Y is depth-negative.
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns v + o.
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Scale returns v * s.
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// HorizontalNorm is the magnitude over (x,z).
func (v Vector3) HorizontalNorm() float64 {
	return math.Hypot(v.X, v.Z)
}

// VesselType is a display-only vessel category.
type VesselType string

const (
	VesselSurface   VesselType = "SURFACE"
	VesselSubmarine VesselType = "SUBMARINE"
	VesselMerchant  VesselType = "MERCHANT"
	VesselWarship   VesselType = "WARSHIP"
	VesselUnknown   VesselType = "UNKNOWN"
)

// AcousticSignature describes the radiated noise of a target.
type AcousticSignature struct {
	EngineFreq      float64    `json:"engineFreq" yaml:"engine_freq"`
	Harmonics       []float64  `json:"harmonics" yaml:"harmonics"`
	BladeCount      int        `json:"bladeCount" yaml:"blade_count"`
	ShaftRPM        float64    `json:"shaftRPM" yaml:"shaft_rpm"`
	CavitationLevel float64    `json:"cavitationLevel" yaml:"cavitation_level"`
	VesselType      VesselType `json:"vesselType" yaml:"vessel_type"`
	VesselClass     string     `json:"vesselClass" yaml:"vessel_class"`
}

func (s AcousticSignature) clone() AcousticSignature {
	s.Harmonics = append([]float64(nil), s.Harmonics...)
	return s
}

// Target is a simulated acoustic contact.
type Target struct {
	ID             string            `json:"id"`
	Position       Vector3           `json:"position"`
	Velocity       Vector3           `json:"velocity"`
	Course         float64           `json:"course"`
	Speed          float64           `json:"speed"`
	Depth          float64           `json:"depth"`
	Signature      AcousticSignature `json:"signature"`
	Range          float64           `json:"range"`
	Bearing        float64           `json:"bearing"`
	SNR            float64           `json:"snr"`
	Detected       bool              `json:"detected"`
	Classification Classification    `json:"classification"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (t Target) Clone() Target {
	t.Signature = t.Signature.clone()
	return t
}

// ListenerState is the own-ship hydrophone position and heading.
type ListenerState struct {
	Position Vector3 `json:"position" yaml:"position"`
	Heading  float64 `json:"heading" yaml:"heading"`
}

// BearingReading is a single timestamped bearing fix.
type BearingReading struct {
	TimestampMs int64   `json:"timestamp"`
	Bearing     float64 `json:"bearing"`
	Confidence  float64 `json:"confidence"`
}

// Display selects the operator's active analysis display.
type Display string

const (
	DisplayLOFAR Display = "LOFAR"
	DisplayDEMON Display = "DEMON"
	DisplayTMA   Display = "TMA"
)

// normalizeDegrees maps any angle into [0,360).
func normalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
