package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/rjboer/GoSonar/internal/logging"
)

// RotationStepDeg is the listener heading increment for operator rotation.
const RotationStepDeg = 15.0

// Simulation owns all mutable state of a sonar session. It is not safe for
// concurrent use; a single driver goroutine calls every method.
type Simulation struct {
	targets     map[string]*Target
	order       []string
	listener    ListenerState
	selectedID  string
	masterGain  float64
	compression float64
	display     Display
	elapsed     time.Duration
	bearings    *BearingTracker
	logger      logging.Logger
}

// TickReport summarizes the transitions of one Tick.
type TickReport struct {
	// Promoted lists targets that went UNDETECTED -> DETECTED this tick.
	Promoted []string
	Lost     []string
	Readings int
}

// New builds a simulation from a scenario. rng drives bearing noise.
func New(sc Scenario, rng *rand.Rand, logger logging.Logger) (*Simulation, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	s := &Simulation{
		targets:     make(map[string]*Target),
		listener:    sc.Listener,
		masterGain:  sc.Gain(),
		compression: sc.Compression,
		display:     DisplayLOFAR,
		bearings:    NewBearingTracker(BearingHistoryLimit, rng),
		logger:      logger.With(logging.F("subsystem", "sim")),
	}
	s.listener.Heading = normalizeDegrees(s.listener.Heading)
	for _, st := range sc.Targets {
		if _, err := s.AddTarget(st.Target()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddTarget registers a new contact. An empty id is replaced by a UUID.
func (s *Simulation) AddTarget(t Target) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := s.targets[t.ID]; exists {
		return "", fmt.Errorf("%w %q", ErrDuplicateTarget, t.ID)
	}
	if err := validateSignature(t.Signature); err != nil {
		return "", fmt.Errorf("target %q: %w", t.ID, err)
	}
	if t.Depth == 0 && t.Position.Y < 0 {
		t.Depth = -t.Position.Y
	}
	t = t.Clone()
	t.Classification = Undetected
	s.refresh(&t)
	s.targets[t.ID] = &t
	s.order = append(s.order, t.ID)
	s.logger.Info("target added", logging.F("target_id", t.ID), logging.F("vessel_type", t.Signature.VesselType))
	return t.ID, nil
}

// RemoveTarget deletes a contact and its bearing history. Unknown ids are ignored.
func (s *Simulation) RemoveTarget(id string) bool {
	if _, ok := s.targets[id]; !ok {
		return false
	}
	delete(s.targets, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.bearings.Drop(id)
	if s.selectedID == id {
		s.selectedID = ""
	}
	s.logger.Info("target removed", logging.F("target_id", id))
	return true
}

// Tick advances the simulation by dt seconds of wall time.
func (s *Simulation) Tick(dt float64) TickReport {
	var report TickReport
	if dt < 0 {
		dt = 0
	}
	s.elapsed += time.Duration(math.Round(dt * float64(time.Second)))
	for _, id := range s.order {
		t := s.targets[id]
		wasDetected := t.Detected
		advance(t, dt, s.compression)
		s.refresh(t)
		if next := autoClassify(t.Classification, t.Detected); next != t.Classification {
			t.Classification = next
			report.Promoted = append(report.Promoted, id)
		}
		if wasDetected && !t.Detected {
			report.Lost = append(report.Lost, id)
		}
		if s.bearings.Observe(id, Geometry{Range: t.Range, Bearing: t.Bearing, SNR: t.SNR, Detected: t.Detected}, s.ElapsedMs()) {
			report.Readings++
		}
	}
	return report
}

// refresh recomputes propagation for t. Classification only advances in Tick.
func (s *Simulation) refresh(t *Target) {
	g := Propagate(t.Position, t.Signature.CavitationLevel, s.listener.Position)
	t.Range = g.Range
	t.Bearing = g.Bearing
	t.SNR = g.SNR
	t.Detected = g.Detected
	t.Course = Course(t.Velocity)
	t.Speed = Speed(t.Velocity)
}

// Select marks the target shown on the analysis displays. An empty id
// clears the selection; unknown ids are ignored.
func (s *Simulation) Select(id string) bool {
	if id == "" {
		s.selectedID = ""
		return true
	}
	if _, ok := s.targets[id]; !ok {
		return false
	}
	s.selectedID = id
	return true
}

// SelectedID returns the current selection, or "".
func (s *Simulation) SelectedID() string { return s.selectedID }

// Classify applies an operator classification request.
func (s *Simulation) Classify(id string, c Classification) error {
	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownTarget, id)
	}
	next, err := operatorClassify(t.Classification, c)
	if err != nil {
		return err
	}
	t.Classification = next
	return nil
}

// ResetClassification returns a target to UNDETECTED. The next Tick
// promotes it again if it is still detected.
func (s *Simulation) ResetClassification(id string) error {
	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownTarget, id)
	}
	t.Classification = Undetected
	return nil
}

// SetShaftRPM changes a target's shaft speed to simulate maneuvering.
func (s *Simulation) SetShaftRPM(id string, rpm float64) error {
	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownTarget, id)
	}
	if rpm < 0 {
		rpm = 0
	}
	t.Signature.ShaftRPM = rpm
	return nil
}

// SetKinematics overrides a target's position and velocity.
func (s *Simulation) SetKinematics(id string, position, velocity Vector3) error {
	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownTarget, id)
	}
	t.Position = position
	t.Velocity = velocity
	s.refresh(t)
	return nil
}

// SetMasterGain stores the output gain clamped to [0,1].
func (s *Simulation) SetMasterGain(g float64) {
	s.masterGain = clamp(g, 0, 1)
}

// MasterGain returns the current output gain.
func (s *Simulation) MasterGain() float64 { return s.masterGain }

// SetTimeCompression selects one of TimeCompressionRates.
func (s *Simulation) SetTimeCompression(k float64) error {
	if !ValidCompression(k) {
		return fmt.Errorf("%w: %v", ErrInvalidCompression, k)
	}
	s.compression = k
	return nil
}

// RotateListener turns the listener by steps × 15°; negative is port.
func (s *Simulation) RotateListener(steps int) {
	s.listener.Heading = normalizeDegrees(s.listener.Heading + float64(steps)*RotationStepDeg)
}

// SetListener replaces the listener position and heading and refreshes
// the geometry of every target.
func (s *Simulation) SetListener(l ListenerState) {
	l.Heading = normalizeDegrees(l.Heading)
	s.listener = l
	for _, id := range s.order {
		s.refresh(s.targets[id])
	}
}

// Listener returns the listener state.
func (s *Simulation) Listener() ListenerState { return s.listener }

// SetDisplay switches the active analysis display.
func (s *Simulation) SetDisplay(d Display) {
	switch d {
	case DisplayLOFAR, DisplayDEMON, DisplayTMA:
		s.display = d
	}
}

// Target returns a copy of one target.
func (s *Simulation) Target(id string) (Target, bool) {
	t, ok := s.targets[id]
	if !ok {
		return Target{}, false
	}
	return t.Clone(), true
}

// Targets returns copies of all targets in creation order.
func (s *Simulation) Targets() []Target {
	out := make([]Target, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.targets[id].Clone())
	}
	return out
}

// BearingHistory returns the readings for one target.
func (s *Simulation) BearingHistory(id string) []BearingReading {
	return s.bearings.History(id)
}

// AppendBearing stores a reading directly, bypassing the sampling gate.
func (s *Simulation) AppendBearing(id string, r BearingReading) {
	if _, ok := s.targets[id]; !ok {
		return
	}
	s.bearings.Append(id, r)
}

// ElapsedMs is the session clock used to timestamp bearing readings.
func (s *Simulation) ElapsedMs() int64 { return s.elapsed.Milliseconds() }

// Snapshot is an immutable copy of operator-visible state.
type Snapshot struct {
	ElapsedMs   int64                       `json:"elapsedMs"`
	Listener    ListenerState               `json:"listener"`
	SelectedID  string                      `json:"selectedTargetId,omitempty"`
	MasterGain  float64                     `json:"masterGain"`
	Compression float64                     `json:"timeCompression"`
	Display     Display                     `json:"activeDisplay"`
	Targets     []Target                    `json:"targets"`
	Bearings    map[string][]BearingReading `json:"bearings"`
}

// Snapshot copies the current state for presentation.
func (s *Simulation) Snapshot() Snapshot {
	snap := Snapshot{
		ElapsedMs:   s.ElapsedMs(),
		Listener:    s.listener,
		SelectedID:  s.selectedID,
		MasterGain:  s.masterGain,
		Compression: s.compression,
		Display:     s.display,
		Targets:     s.Targets(),
		Bearings:    make(map[string][]BearingReading, len(s.order)),
	}
	for _, id := range s.order {
		if h := s.bearings.History(id); len(h) > 0 {
			snap.Bearings[id] = h
		}
	}
	return snap
}
