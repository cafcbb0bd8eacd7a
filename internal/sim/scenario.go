package sim

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// catalog holds the reference signature of each vessel type.
var catalog = map[VesselType]AcousticSignature{
	VesselSurface:   {EngineFreq: 80, Harmonics: []float64{160, 240}, BladeCount: 3, ShaftRPM: 180, CavitationLevel: 0.5, VesselType: VesselSurface, VesselClass: "Patrol Craft"},
	VesselSubmarine: {EngineFreq: 50, Harmonics: []float64{100, 150}, BladeCount: 7, ShaftRPM: 90, CavitationLevel: 0.1, VesselType: VesselSubmarine, VesselClass: "Diesel-Electric"},
	VesselMerchant:  {EngineFreq: 40, Harmonics: []float64{80, 120, 160, 200}, BladeCount: 4, ShaftRPM: 100, CavitationLevel: 0.6, VesselType: VesselMerchant, VesselClass: "Bulk Carrier"},
	VesselWarship:   {EngineFreq: 70, Harmonics: []float64{140, 210}, BladeCount: 5, ShaftRPM: 150, CavitationLevel: 0.4, VesselType: VesselWarship, VesselClass: "Frigate"},
	VesselUnknown:   {EngineFreq: 60, Harmonics: []float64{120, 180, 240}, BladeCount: 4, ShaftRPM: 120, CavitationLevel: 0.3, VesselType: VesselUnknown, VesselClass: "Unknown"},
}

// SignatureFor returns the catalog signature for a vessel type, falling
// back to the UNKNOWN entry.
func SignatureFor(vt VesselType) AcousticSignature {
	sig, ok := catalog[vt]
	if !ok {
		sig = catalog[VesselUnknown]
	}
	return sig.clone()
}

// DefaultMasterGain applies when a scenario leaves master_gain unset.
const DefaultMasterGain = 0.7

// Scenario is the initial picture loaded at session start. A nil
// MasterGain means unset; an explicit zero starts muted.
type Scenario struct {
	Name        string           `yaml:"name"`
	Listener    ListenerState    `yaml:"listener"`
	MasterGain  *float64         `yaml:"master_gain,omitempty"`
	Compression float64          `yaml:"time_compression"`
	Targets     []ScenarioTarget `yaml:"targets"`
}

// ScenarioTarget is a target entry of a scenario file. A nil signature
// takes the catalog entry for the vessel type.
type ScenarioTarget struct {
	ID         string             `yaml:"id"`
	Position   Vector3            `yaml:"position"`
	Velocity   Vector3            `yaml:"velocity"`
	Depth      float64            `yaml:"depth"`
	VesselType VesselType         `yaml:"vessel_type"`
	Signature  *AcousticSignature `yaml:"signature"`
}

// DefaultScenario is the two-contact training picture.
func DefaultScenario() Scenario {
	return Scenario{
		Name:        "default",
		Listener:    ListenerState{Position: Vector3{X: 0, Y: -30, Z: 0}},
		MasterGain:  gainOf(DefaultMasterGain),
		Compression: 1,
		Targets: []ScenarioTarget{
			{ID: "target-1", Position: Vector3{X: 500, Y: -50, Z: 0}, Velocity: Vector3{X: 2}, Depth: 50, VesselType: VesselUnknown},
			{ID: "target-2", Position: Vector3{X: -300, Y: -50, Z: 400}, Velocity: Vector3{X: 2}, Depth: 50, VesselType: VesselUnknown},
		},
	}
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return DecodeScenario(f)
}

// DecodeScenario parses and validates a YAML scenario.
func DecodeScenario(r io.Reader) (Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	if sc.Compression == 0 {
		sc.Compression = 1
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

func gainOf(g float64) *float64 { return &g }

// Gain returns the scenario's output gain, DefaultMasterGain when unset.
func (sc Scenario) Gain() float64 {
	if sc.MasterGain == nil {
		return DefaultMasterGain
	}
	return *sc.MasterGain
}

// Validate checks ranges and id uniqueness.
func (sc Scenario) Validate() error {
	if g := sc.Gain(); g < 0 || g > 1 {
		return fmt.Errorf("master gain must be between 0 and 1")
	}
	if !ValidCompression(sc.Compression) {
		return fmt.Errorf("%w: %v", ErrInvalidCompression, sc.Compression)
	}
	seen := make(map[string]struct{}, len(sc.Targets))
	for i, t := range sc.Targets {
		if t.ID != "" {
			if _, dup := seen[t.ID]; dup {
				return fmt.Errorf("target %d: %w %q", i, ErrDuplicateTarget, t.ID)
			}
			seen[t.ID] = struct{}{}
		}
		if err := validateSignature(t.resolveSignature()); err != nil {
			return fmt.Errorf("target %d: %w", i, err)
		}
	}
	return nil
}

func (st ScenarioTarget) resolveSignature() AcousticSignature {
	if st.Signature != nil {
		return st.Signature.clone()
	}
	return SignatureFor(st.VesselType)
}

// Target materializes the scenario entry.
func (st ScenarioTarget) Target() Target {
	return Target{
		ID:        st.ID,
		Position:  st.Position,
		Velocity:  st.Velocity,
		Depth:     st.Depth,
		Signature: st.resolveSignature(),
	}
}

func validateSignature(sig AcousticSignature) error {
	if sig.BladeCount <= 0 {
		return fmt.Errorf("blade count must be positive")
	}
	if sig.ShaftRPM < 0 {
		return fmt.Errorf("shaft rpm must not be negative")
	}
	if sig.CavitationLevel < 0 || sig.CavitationLevel > 1 {
		return fmt.Errorf("cavitation level must be between 0 and 1")
	}
	if sig.EngineFreq < 0 {
		return fmt.Errorf("engine frequency must not be negative")
	}
	return nil
}
