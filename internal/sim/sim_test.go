package sim

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrateScalesByCompression(t *testing.T) {
	pos := Integrate(Vector3{X: 1, Y: -50, Z: 2}, Vector3{X: 2, Z: -1}, 0.5, 10)
	assert.InDelta(t, 11, pos.X, 1e-9)
	assert.InDelta(t, -50, pos.Y, 1e-9)
	assert.InDelta(t, -3, pos.Z, 1e-9)
}

func TestCourseAndSpeed(t *testing.T) {
	tests := []struct {
		v      Vector3
		course float64
		speed  float64
	}{
		{Vector3{X: 0, Z: 1}, 0, 1},
		{Vector3{X: 2, Z: 0}, 90, 2},
		{Vector3{X: 0, Z: -3}, 180, 3},
		{Vector3{X: -1, Z: 0}, 270, 1},
		{Vector3{X: 3, Y: 100, Z: 4}, math.Atan2(3, 4) * 180 / math.Pi, 5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.course, Course(tt.v), 1e-9, "%+v", tt.v)
		assert.InDelta(t, tt.speed, Speed(tt.v), 1e-9, "%+v", tt.v)
	}
}

func TestBearingAlwaysInRange(t *testing.T) {
	for dx := -1000.0; dx <= 1000; dx += 37.5 {
		for dz := -1000.0; dz <= 1000; dz += 41.25 {
			b := Bearing(Vector3{X: dx, Z: dz}, Vector3{})
			require.GreaterOrEqual(t, b, 0.0)
			require.Less(t, b, 360.0)
		}
	}
	assert.Equal(t, 0.0, Bearing(Vector3{}, Vector3{}))
}

func TestReferenceScenarioGeometry(t *testing.T) {
	g := Propagate(Vector3{X: 500, Y: -50, Z: 0}, 0.3, Vector3{X: 0, Y: -30, Z: 0})
	assert.InDelta(t, 500, g.Range, 1e-9)
	assert.InDelta(t, 300.0/51.0, g.SNR, 1e-9)
	assert.True(t, g.Detected)
	assert.InDelta(t, 90, g.Bearing, 1e-9)
}

func TestSNRStrictlyDecreasingAndDetectionConsistent(t *testing.T) {
	prev := math.Inf(1)
	for r := 0.0; r < 5000; r += 13 {
		snr := SNR(r, 0.4)
		require.Less(t, snr, prev)
		prev = snr
		g := Propagate(Vector3{X: r}, 0.4, Vector3{})
		require.Equal(t, g.SNR > DetectionThreshold, g.Detected)
	}
}

func TestBearingRingKeepsLast200(t *testing.T) {
	ring := NewBearingRing(BearingHistoryLimit)
	for i := 0; i < 250; i++ {
		ring.Push(BearingReading{TimestampMs: int64(i), Bearing: float64(i % 360)})
	}
	got := ring.Readings()
	require.Len(t, got, 200)
	for i, r := range got {
		require.Equal(t, int64(i+50), r.TimestampMs)
	}
}

func TestBearingTrackerObserve(t *testing.T) {
	bt := NewBearingTracker(10, rand.New(rand.NewSource(7)))
	assert.False(t, bt.Observe("a", Geometry{Detected: false}, 0))

	stored := 0
	for i := 0; i < 1000; i++ {
		if bt.Observe("a", Geometry{Bearing: 359, SNR: 40, Detected: true}, int64(i)) {
			stored++
		}
	}
	// 30% gate over 1000 draws.
	assert.InDelta(t, 300, stored, 60)
	h := bt.History("a")
	require.Len(t, h, 10)
	for _, r := range h {
		assert.Equal(t, 1.0, r.Confidence)
		assert.GreaterOrEqual(t, r.Bearing, 0.0)
		assert.Less(t, r.Bearing, 360.0)
		diff := math.Abs(r.Bearing - 359)
		if diff > 180 {
			diff = 360 - diff
		}
		assert.LessOrEqual(t, diff, 2.5)
	}
}

func TestBucketReadings(t *testing.T) {
	h := map[string][]BearingReading{
		"a": {{TimestampMs: 1000, Bearing: 10}, {TimestampMs: 4000, Bearing: 11}, {TimestampMs: 12000, Bearing: 12}},
		"b": {{TimestampMs: 6000, Bearing: 200}},
	}
	buckets := BucketReadings(h, 5000)
	require.Len(t, buckets, 3)
	assert.Equal(t, int64(0), buckets[0].StartMs)
	assert.Equal(t, 11.0, buckets[0].Bearings["a"])
	assert.Equal(t, 200.0, buckets[1].Bearings["b"])
	assert.Equal(t, 10.0, buckets[2].OffsetS)
	assert.Equal(t, 12.0, buckets[2].Bearings["a"])
	assert.Nil(t, BucketReadings(nil, 5000))
}

func TestClassificationIsMonotone(t *testing.T) {
	order := []Classification{Undetected, Detected, Analyzing, Identified}
	for _, from := range order {
		for _, to := range []Classification{Undetected, Detected, Analyzing, Identified} {
			next, err := operatorClassify(from, to)
			assert.GreaterOrEqual(t, next, from, "%s -> %s", from, to)
			if err != nil {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				assert.Equal(t, from, next)
			}
		}
	}
	next, err := operatorClassify(Detected, Analyzing)
	require.NoError(t, err)
	assert.Equal(t, Analyzing, next)
	_, err = operatorClassify(Detected, Identified)
	assert.Error(t, err)
	_, err = operatorClassify(Undetected, Analyzing)
	assert.Error(t, err)
	_, err = operatorClassify(Identified, Detected)
	assert.Error(t, err)
}

func newDefaultSim(t *testing.T) *Simulation {
	t.Helper()
	s, err := New(DefaultScenario(), rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	return s
}

func TestTickPromotesAndKeepsClassification(t *testing.T) {
	s := newDefaultSim(t)
	tgt, ok := s.Target("target-1")
	require.True(t, ok)
	assert.Equal(t, Undetected, tgt.Classification)
	assert.True(t, tgt.Detected)

	report := s.Tick(0.016)
	assert.Contains(t, report.Promoted, "target-1")
	tgt, _ = s.Target("target-1")
	assert.Equal(t, Detected, tgt.Classification)

	require.NoError(t, s.Classify("target-1", Analyzing))
	require.NoError(t, s.Classify("target-1", Identified))
	assert.Error(t, s.Classify("target-1", Detected))

	// Detection range for cavitation 0.3 ends just short of 590 units.
	require.NoError(t, s.SetKinematics("target-1", Vector3{X: 589, Y: -50}, Vector3{X: 20}))
	tgt, _ = s.Target("target-1")
	require.True(t, tgt.Detected)
	report = s.Tick(1)
	assert.Contains(t, report.Lost, "target-1")
	tgt, _ = s.Target("target-1")
	assert.False(t, tgt.Detected)
	assert.Equal(t, Identified, tgt.Classification)

	require.NoError(t, s.ResetClassification("target-1"))
	tgt, _ = s.Target("target-1")
	assert.Equal(t, Undetected, tgt.Classification)
}

func TestElapsedClockAccumulatesFractionalTicks(t *testing.T) {
	s := newDefaultSim(t)
	for i := 0; i < 60; i++ {
		s.Tick(1.0 / 60)
	}
	assert.Equal(t, int64(1000), s.ElapsedMs())

	// Sub-millisecond ticks still advance the clock.
	for i := 0; i < 10; i++ {
		s.Tick(0.0005)
	}
	assert.Equal(t, int64(1005), s.ElapsedMs())
	assert.Equal(t, int64(1005), s.Snapshot().ElapsedMs)
}

func TestTickMovesTargetsWithCompression(t *testing.T) {
	s := newDefaultSim(t)
	require.NoError(t, s.SetTimeCompression(20))
	s.Tick(1)
	tgt, _ := s.Target("target-1")
	assert.InDelta(t, 540, tgt.Position.X, 1e-9)
	assert.InDelta(t, 90, tgt.Course, 1e-9)
	assert.InDelta(t, 2, tgt.Speed, 1e-9)
	assert.Equal(t, int64(1000), s.ElapsedMs())

	err := s.SetTimeCompression(3)
	assert.True(t, errors.Is(err, ErrInvalidCompression))
}

func TestDetectedMatchesFormulaEveryTick(t *testing.T) {
	s := newDefaultSim(t)
	require.NoError(t, s.SetKinematics("target-1", Vector3{X: 400, Y: -50}, Vector3{X: 20}))
	require.NoError(t, s.SetTimeCompression(10))
	toggled := false
	for i := 0; i < 200; i++ {
		s.Tick(0.1)
		for _, tgt := range s.Targets() {
			r := Range(tgt.Position, s.Listener().Position)
			require.InDelta(t, SNR(r, tgt.Signature.CavitationLevel), tgt.SNR, 1e-9)
			require.Equal(t, tgt.SNR > DetectionThreshold, tgt.Detected)
			if tgt.ID == "target-1" && !tgt.Detected {
				toggled = true
			}
		}
	}
	assert.True(t, toggled, "target-1 should fade out as it opens range")
	for _, h := range s.Snapshot().Bearings {
		assert.LessOrEqual(t, len(h), BearingHistoryLimit)
	}
}

func TestOperatorCommands(t *testing.T) {
	s := newDefaultSim(t)

	assert.False(t, s.Select("nope"))
	assert.True(t, s.Select("target-2"))
	assert.Equal(t, "target-2", s.SelectedID())

	s.SetMasterGain(1.7)
	assert.Equal(t, 1.0, s.MasterGain())
	s.SetMasterGain(-1)
	assert.Equal(t, 0.0, s.MasterGain())

	s.RotateListener(-1)
	assert.Equal(t, 345.0, s.Listener().Heading)
	s.RotateListener(2)
	assert.Equal(t, 15.0, s.Listener().Heading)

	s.SetDisplay(DisplayTMA)
	s.SetDisplay("BOGUS")
	assert.Equal(t, DisplayTMA, s.Snapshot().Display)

	assert.True(t, errors.Is(s.Classify("ghost", Analyzing), ErrUnknownTarget))
	assert.True(t, errors.Is(s.SetShaftRPM("ghost", 10), ErrUnknownTarget))

	require.NoError(t, s.SetShaftRPM("target-2", -5))
	tgt, _ := s.Target("target-2")
	assert.Equal(t, 0.0, tgt.Signature.ShaftRPM)
}

func TestAddAndRemoveTarget(t *testing.T) {
	s := newDefaultSim(t)
	id, err := s.AddTarget(Target{Position: Vector3{X: 100, Y: -80}, Signature: SignatureFor(VesselSubmarine)})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	tgt, _ := s.Target(id)
	assert.Equal(t, 80.0, tgt.Depth)

	_, err = s.AddTarget(Target{ID: "target-1", Signature: SignatureFor(VesselUnknown)})
	assert.True(t, errors.Is(err, ErrDuplicateTarget))
	_, err = s.AddTarget(Target{ID: "bad", Signature: AcousticSignature{BladeCount: 0}})
	assert.Error(t, err)

	s.AppendBearing(id, BearingReading{TimestampMs: 1, Bearing: 5})
	require.True(t, s.Select(id))
	assert.True(t, s.RemoveTarget(id))
	assert.False(t, s.RemoveTarget(id))
	assert.Empty(t, s.SelectedID())
	assert.Nil(t, s.BearingHistory(id))
	assert.Len(t, s.Targets(), 2)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := newDefaultSim(t)
	snap := s.Snapshot()
	snap.Targets[0].Signature.Harmonics[0] = 9999
	tgt, _ := s.Target(snap.Targets[0].ID)
	assert.Equal(t, 120.0, tgt.Signature.Harmonics[0])
}

func TestDecodeScenarioKeepsExplicitZeroGain(t *testing.T) {
	sc, err := DecodeScenario(strings.NewReader("name: silent\nmaster_gain: 0\n"))
	require.NoError(t, err)
	require.NotNil(t, sc.MasterGain)
	assert.Equal(t, 0.0, sc.Gain())

	s, err := New(sc, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.MasterGain())

	sc, err = DecodeScenario(strings.NewReader("name: quiet\nmaster_gain: 0.25\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.25, sc.Gain())
}

func TestDecodeScenario(t *testing.T) {
	doc := `
name: strait
listener:
  position: {x: 0, y: -30, z: 0}
  heading: 370
time_compression: 5
targets:
  - id: sub
    position: {x: 200, y: -120, z: 50}
    velocity: {x: 0, y: 0, z: 3}
    depth: 120
    vessel_type: SUBMARINE
  - id: custom
    position: {x: -50, y: -10, z: 0}
    signature:
      engine_freq: 55
      harmonics: [110]
      blade_count: 5
      shaft_rpm: 200
      cavitation_level: 0.9
      vessel_type: WARSHIP
      vessel_class: Destroyer
`
	sc, err := DecodeScenario(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Nil(t, sc.MasterGain)
	assert.Equal(t, DefaultMasterGain, sc.Gain())
	assert.Equal(t, 5.0, sc.Compression)
	require.Len(t, sc.Targets, 2)
	assert.Equal(t, 7, sc.Targets[0].Target().Signature.BladeCount)
	assert.Equal(t, "Destroyer", sc.Targets[1].Target().Signature.VesselClass)

	s, err := New(sc, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 10.0, s.Listener().Heading)

	_, err = DecodeScenario(strings.NewReader("time_compression: 7\n"))
	assert.True(t, errors.Is(err, ErrInvalidCompression))
	_, err = DecodeScenario(strings.NewReader("bogus_field: 1\n"))
	assert.Error(t, err)
	_, err = DecodeScenario(strings.NewReader("targets:\n  - id: a\n  - id: a\n"))
	assert.True(t, errors.Is(err, ErrDuplicateTarget))
}
