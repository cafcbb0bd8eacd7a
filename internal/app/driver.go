package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rjboer/GoSonar/internal/acoustic"
	"github.com/rjboer/GoSonar/internal/dsp"
	"github.com/rjboer/GoSonar/internal/logging"
	"github.com/rjboer/GoSonar/internal/sim"
	"github.com/rjboer/GoSonar/internal/telemetry"
)

// ErrQueueFull is returned by Submit when the command queue is saturated.
var ErrQueueFull = errors.New("command queue full")

// LOFAR line sources.
const (
	LofarProcedural = "procedural"
	LofarFFT        = "fft"
)

// Config captures driver level configuration.
type Config struct {
	TickInterval       time.Duration
	AnalysisPeriod     time.Duration
	AnalysisSampleRate float64
	DemonBuffer        int
	LofarMode          string
	FFTSize            int
	QueueSize          int
	Seed               int64
}

// Tapper exposes the live output of a voice as an analysis source.
type Tapper interface {
	Tap(id string, sampleRate float64) acoustic.SampleSource
}

type analysisSource struct {
	id  string
	src acoustic.SampleSource
}

// Driver owns the simulation and runs it on a single goroutine. Commands
// from other goroutines are queued and applied at the start of each step;
// state leaves the goroutine only as immutable snapshots.
type Driver struct {
	sim      *sim.Simulation
	engine   *acoustic.Engine
	reporter telemetry.Reporter
	metrics  *telemetry.Metrics
	logger   logging.Logger
	cfg      Config

	commands       chan sim.Command
	analysisPeriod atomic.Int64
	sinceAnalysis  time.Duration

	demon     *dsp.Demon
	lofar     *dsp.Lofar
	spectrum  *dsp.Spectrum
	generator *acoustic.Generator
	tapper    atomic.Pointer[Tapper]
	source    atomic.Pointer[analysisSource]
	selected  string
	scratch   []float64
	raw       []float64
}

// NewDriver wires a simulation to its audio engine and reporters. engine,
// reporter and metrics may be nil.
func NewDriver(s *sim.Simulation, engine *acoustic.Engine, reporter telemetry.Reporter, metrics *telemetry.Metrics, logger logging.Logger, cfg Config) *Driver {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 50 * time.Millisecond
	}
	if cfg.AnalysisPeriod <= 0 {
		cfg.AnalysisPeriod = 200 * time.Millisecond
	}
	if cfg.AnalysisSampleRate <= 0 {
		cfg.AnalysisSampleRate = 2048
	}
	if cfg.LofarMode == "" {
		cfg.LofarMode = LofarProcedural
	}
	if cfg.FFTSize <= 0 {
		cfg.FFTSize = 2048
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	demonCfg := dsp.DefaultDemonConfig(cfg.AnalysisSampleRate)
	if cfg.DemonBuffer > 0 {
		demonCfg.BufferSize = cfg.DemonBuffer
	}

	d := &Driver{
		sim:       s,
		engine:    engine,
		reporter:  reporter,
		metrics:   metrics,
		logger:    logger.With(logging.F("subsystem", "driver")),
		cfg:       cfg,
		commands:  make(chan sim.Command, cfg.QueueSize),
		demon:     dsp.NewDemon(demonCfg, rng),
		lofar:     dsp.NewLofar(dsp.LofarBins, dsp.LofarBandHz, rng),
		spectrum:  dsp.NewSpectrum(cfg.FFTSize),
		generator: acoustic.NewGenerator(cfg.AnalysisSampleRate, rng),
	}
	d.analysisPeriod.Store(int64(cfg.AnalysisPeriod))
	d.source.Store(&analysisSource{src: d.generator})
	return d
}

// Submit queues cmd for the next step. It never blocks.
func (d *Driver) Submit(cmd sim.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	select {
	case d.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// SetAnalysisPeriod changes the DEMON/LOFAR cadence. Safe for concurrent
// use.
func (d *Driver) SetAnalysisPeriod(p time.Duration) {
	if p > 0 {
		d.analysisPeriod.Store(int64(p))
	}
}

// AnalysisPeriod returns the current analysis cadence.
func (d *Driver) AnalysisPeriod() time.Duration {
	return time.Duration(d.analysisPeriod.Load())
}

// SetTapper switches analysis to live output taps. Safe for concurrent
// use; it takes effect on the next selection change.
func (d *Driver) SetTapper(t Tapper) {
	if t == nil {
		d.tapper.Store(nil)
		return
	}
	d.tapper.Store(&t)
}

// Run steps the simulation on a ticker until ctx is canceled.
func (d *Driver) Run(ctx context.Context) error {
	if d.reporter != nil {
		d.reporter.ReportSnapshot(d.sim.Snapshot())
	}
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			d.Step(dt)
		}
	}
}

// Step applies queued commands, advances the simulation by dt, refreshes
// audio and publishes state. Analysis runs whenever the accumulated time
// reaches the analysis period.
func (d *Driver) Step(dt time.Duration) {
	start := time.Now()
	d.drain()

	report := d.sim.Tick(dt.Seconds())
	targets := d.sim.Targets()
	listener := d.sim.Listener()
	for _, id := range report.Promoted {
		d.logger.Info("contact detected", logging.F("target_id", id))
	}
	for _, id := range report.Lost {
		d.logger.Info("contact lost", logging.F("target_id", id))
	}

	if d.engine != nil {
		d.engine.SetListener(listener)
		d.engine.SetMasterGain(d.sim.MasterGain())
		if err := d.engine.Sync(targets, listener); err != nil {
			d.logger.Warn("audio update failed", logging.F("error", err))
		}
	}

	if id := d.sim.SelectedID(); id != d.selected {
		d.selectionChanged(id)
	}
	selected, hasSelected := d.sim.Target(d.selected)
	if hasSelected {
		d.generator.Params.Publish(acoustic.Synthesize(selected, listener))
	}

	d.sinceAnalysis += dt
	if d.sinceAnalysis >= d.AnalysisPeriod() {
		d.analyze(selected, hasSelected, targets, d.sinceAnalysis)
		d.sinceAnalysis = 0
	}

	d.metrics.ObserveTick(time.Since(start), report, targets)
	if d.reporter != nil {
		d.reporter.ReportSnapshot(d.sim.Snapshot())
	}
}

func (d *Driver) drain() {
	for {
		select {
		case cmd := <-d.commands:
			d.apply(cmd)
		default:
			return
		}
	}
}

func (d *Driver) apply(cmd sim.Command) {
	err := cmd.Apply(d.sim)
	d.metrics.ObserveCommand(cmd.Kind, err)
	switch {
	case errors.Is(err, sim.ErrUnknownTarget):
		d.logger.Debug("command for unknown target ignored",
			logging.F("type", cmd.Kind), logging.F("target_id", cmd.TargetID))
	case err != nil:
		d.logger.Warn("command rejected", logging.F("type", cmd.Kind), logging.F("error", err))
	case cmd.Kind == sim.CmdRemoveTarget && d.engine != nil:
		if err := d.engine.Remove(cmd.TargetID); err != nil {
			d.logger.Warn("voice removal failed", logging.F("target_id", cmd.TargetID), logging.F("error", err))
		}
	}
}

// selectionChanged resets the analysis chain so no envelope from the
// previous contact leaks into the new estimate.
func (d *Driver) selectionChanged(id string) {
	d.selected = id
	d.demon.Reset()
	d.generator.Reset()
	d.raw = d.raw[:0]

	next := &analysisSource{id: id, src: d.generator}
	if tp := d.tapper.Load(); tp != nil && id != "" {
		next.src = (*tp).Tap(id, d.cfg.AnalysisSampleRate)
	}
	d.source.Store(next)
	d.logger.Debug("analysis source switched", logging.F("target_id", id))
}

func (d *Driver) analyze(selected sim.Target, hasSelected bool, targets []sim.Target, elapsed time.Duration) {
	ts := d.sim.ElapsedMs()
	a := telemetry.Analysis{TimestampMs: ts}

	var samples []float64
	if hasSelected && selected.Detected {
		src := d.source.Load().src
		n := int(math.Round(src.SampleRate() * elapsed.Seconds()))
		if cap(d.scratch) < n {
			d.scratch = make([]float64, n)
		}
		samples = d.scratch[:n]
		samples = samples[:src.Read(samples)]
		d.demon.Process(samples)
		a.TargetID = selected.ID
		a.Demon = d.demon.Analyze(selected.Signature.BladeCount)
	} else {
		a.Demon = d.demon.Fallback()
	}

	a.Lofar = d.lofarLine(targets, samples, ts)
	d.metrics.ObserveAnalysis(a.Demon)
	if d.reporter != nil {
		d.reporter.ReportAnalysis(a)
	}
}

// lofarLine builds the waterfall row. FFT mode analyzes the rolling window
// of the selected contact's samples and falls back to the procedural line
// until a full window is available.
func (d *Driver) lofarLine(targets []sim.Target, samples []float64, ts int64) dsp.LofarLine {
	if d.cfg.LofarMode == LofarFFT && len(samples) > 0 {
		d.raw = append(d.raw, samples...)
		if over := len(d.raw) - d.cfg.FFTSize; over > 0 {
			d.raw = append(d.raw[:0], d.raw[over:]...)
		}
		if len(d.raw) == d.cfg.FFTSize {
			freqs, db := d.spectrum.Compute(d.raw, d.cfg.AnalysisSampleRate)
			return d.lofar.FromSpectrum(freqs, db, ts)
		}
	}

	var sources []dsp.LofarSource
	for _, t := range targets {
		if !t.Detected {
			continue
		}
		sources = append(sources, dsp.LofarSource{
			FundamentalHz: t.Signature.EngineFreq,
			Harmonics:     t.Signature.Harmonics,
			SNR:           t.SNR,
		})
	}
	return d.lofar.Line(sources, ts)
}

// Close releases audio resources.
func (d *Driver) Close() error {
	if d.engine == nil {
		return nil
	}
	if err := d.engine.Close(); err != nil {
		return fmt.Errorf("close audio: %w", err)
	}
	return nil
}
