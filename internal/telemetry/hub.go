package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/rjboer/GoSonar/internal/dsp"
	"github.com/rjboer/GoSonar/internal/logging"
	"github.com/rjboer/GoSonar/internal/sim"
)

// Config represents the runtime configuration exposed by the hub. It
// covers display cadence and retention values that operators may tune
// while a session runs.
type Config struct {
	AnalysisPeriodMs int   `json:"analysisPeriodMs"`
	LofarHistory     int   `json:"lofarHistory"`
	BearingBucketMs  int64 `json:"bearingBucketMs"`
}

const (
	minAnalysisPeriodMs = 20
	maxAnalysisPeriodMs = 5_000
	minLofarHistory     = 1
	maxLofarHistory     = 10_000
	minBearingBucketMs  = 100
	maxBearingBucketMs  = 600_000

	subscriberBuffer = 32
)

// DefaultConfig returns the hub defaults.
func DefaultConfig() Config {
	return Config{
		AnalysisPeriodMs: 200,
		LofarHistory:     dsp.LofarHistory,
		BearingBucketMs:  5_000,
	}
}

func validateConfig(cfg Config, base Config) (Config, error) {
	if base.AnalysisPeriodMs == 0 || base.LofarHistory == 0 || base.BearingBucketMs == 0 {
		base = DefaultConfig()
	}

	if cfg.AnalysisPeriodMs == 0 {
		cfg.AnalysisPeriodMs = base.AnalysisPeriodMs
	}
	if cfg.LofarHistory == 0 {
		cfg.LofarHistory = base.LofarHistory
	}
	if cfg.BearingBucketMs == 0 {
		cfg.BearingBucketMs = base.BearingBucketMs
	}

	if cfg.AnalysisPeriodMs < minAnalysisPeriodMs || cfg.AnalysisPeriodMs > maxAnalysisPeriodMs {
		return Config{}, fmt.Errorf("analysis period must be between %d and %d ms", minAnalysisPeriodMs, maxAnalysisPeriodMs)
	}
	if cfg.LofarHistory < minLofarHistory || cfg.LofarHistory > maxLofarHistory {
		return Config{}, fmt.Errorf("lofar history must be between %d and %d lines", minLofarHistory, maxLofarHistory)
	}
	if cfg.BearingBucketMs < minBearingBucketMs || cfg.BearingBucketMs > maxBearingBucketMs {
		return Config{}, fmt.Errorf("bearing bucket must be between %d and %d ms", minBearingBucketMs, maxBearingBucketMs)
	}
	return cfg, nil
}

// Hub keeps the latest published state, the LOFAR waterfall and fans out
// live events to subscribers.
type Hub struct {
	mu          sync.RWMutex
	snapshot    sim.Snapshot
	hasSnapshot bool
	analysis    Analysis
	waterfall   []dsp.LofarLine
	subscribers map[chan Event]struct{}
	config      Config
	onConfig    func(Config)
	started     time.Time
	metrics     *Metrics
	logger      logging.Logger
}

// NewHub builds a hub with the provided configuration. Zero fields take
// the defaults.
func NewHub(cfg Config, logger logging.Logger) (*Hub, error) {
	if logger == nil {
		logger = logging.Default()
	}
	cfg, err := validateConfig(cfg, DefaultConfig())
	if err != nil {
		return nil, err
	}
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
		config:      cfg,
		started:     time.Now(),
		logger:      logger.With(logging.F("subsystem", "hub")),
	}, nil
}

// SetMetrics attaches collectors for subscriber counts.
func (h *Hub) SetMetrics(m *Metrics) {
	h.mu.Lock()
	h.metrics = m
	h.mu.Unlock()
}

// OnConfigChange registers fn to run after a configuration update is
// accepted.
func (h *Hub) OnConfigChange(fn func(Config)) {
	h.mu.Lock()
	h.onConfig = fn
	h.mu.Unlock()
}

// ReportSnapshot implements Reporter.
func (h *Hub) ReportSnapshot(snap sim.Snapshot) {
	h.mu.Lock()
	h.snapshot = snap
	h.hasSnapshot = true
	h.broadcastLocked(Event{Type: EventSnapshot, Snapshot: &snap})
	h.mu.Unlock()
}

// ReportAnalysis implements Reporter and appends the LOFAR line to the
// waterfall.
func (h *Hub) ReportAnalysis(a Analysis) {
	h.mu.Lock()
	h.analysis = a
	h.waterfall = append(h.waterfall, a.Lofar)
	h.trimLocked()
	h.broadcastLocked(Event{Type: EventAnalysis, Analysis: &a})
	h.mu.Unlock()
}

func (h *Hub) broadcastLocked(ev Event) {
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) trimLocked() {
	if len(h.waterfall) > h.config.LofarHistory {
		h.waterfall = append(h.waterfall[:0], h.waterfall[len(h.waterfall)-h.config.LofarHistory:]...)
	}
}

// Snapshot returns the most recent snapshot, if any.
func (h *Hub) Snapshot() (sim.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot, h.hasSnapshot
}

// LatestAnalysis returns the most recent analysis cycle.
func (h *Hub) LatestAnalysis() Analysis {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.analysis
}

// Waterfall returns a copy of the retained LOFAR lines, oldest first.
func (h *Hub) Waterfall() []dsp.LofarLine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]dsp.LofarLine, len(h.waterfall))
	copy(out, h.waterfall)
	return out
}

// ConfigSnapshot returns the latest validated configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// UpdateConfig validates and applies cfg; zero fields keep current values.
func (h *Hub) UpdateConfig(cfg Config) (Config, error) {
	h.mu.Lock()
	next, err := validateConfig(cfg, h.config)
	if err != nil {
		h.mu.Unlock()
		return Config{}, err
	}
	h.config = next
	h.trimLocked()
	fn := h.onConfig
	h.mu.Unlock()

	h.logger.Info("runtime config updated",
		logging.F("analysis_period_ms", next.AnalysisPeriodMs),
		logging.F("lofar_history", next.LofarHistory),
		logging.F("bearing_bucket_ms", next.BearingBucketMs))
	if fn != nil {
		fn(next)
	}
	return next, nil
}

// Subscribe registers a listener for live updates.
func (h *Hub) Subscribe() (chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	m := h.metrics
	h.mu.Unlock()
	m.subscriberDelta(1)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			close(ch)
			h.mu.Unlock()
			m.subscriberDelta(-1)
		})
	}
	return ch, cancel
}

// Diagnostics reports process health for the console.
type Diagnostics struct {
	Uptime       time.Duration `json:"uptime"`
	NumGoroutine int           `json:"numGoroutine"`
	Subscribers  int           `json:"subscribers"`
	WaterfallLen int           `json:"waterfallLines"`
	ElapsedMs    int64         `json:"elapsedMs"`
}

// Diagnostics returns current process and hub counters.
func (h *Hub) Diagnostics() Diagnostics {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Diagnostics{
		Uptime:       time.Since(h.started),
		NumGoroutine: runtime.NumGoroutine(),
		Subscribers:  len(h.subscribers),
		WaterfallLen: len(h.waterfall),
		ElapsedMs:    h.snapshot.ElapsedMs,
	}
}

func (h *Hub) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ConfigSnapshot())
}

func (h *Hub) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var incoming Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid config payload: %v", err))
		return
	}
	cfg, err := h.UpdateConfig(incoming)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Hub) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Diagnostics())
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	// send current state for immediate display
	if snap, ok := h.Snapshot(); ok {
		writeEvent(w, Event{Type: EventSnapshot, Snapshot: &snap})
	}
	flusher.Flush()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, ev)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	w.Write([]byte("event: "))
	w.Write([]byte(ev.Type))
	w.Write([]byte("\ndata: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}
