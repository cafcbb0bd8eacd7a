package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rjboer/GoSonar/internal/dsp"
	"github.com/rjboer/GoSonar/internal/logging"
	"github.com/rjboer/GoSonar/internal/sim"
)

// Commander queues operator commands for the simulation goroutine.
type Commander interface {
	Submit(cmd sim.Command) error
}

// ServerOptions configures the HTTP surface.
type ServerOptions struct {
	Addr        string
	CORSOrigins []string
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// WebServer exposes the display state, the live stream and the command
// API over HTTP.
type WebServer struct {
	srv      *http.Server
	hub      *Hub
	commands Commander
	logger   logging.Logger

	lofarFreqs []float64
}

// NewWebServer builds the router and the underlying http.Server.
func NewWebServer(opts ServerOptions, hub *Hub, commands Commander, logger logging.Logger) *WebServer {
	if logger == nil {
		logger = logging.Default()
	}
	ws := &WebServer{
		hub:      hub,
		commands: commands,
		logger:   logger.With(logging.F("subsystem", "web")),

		lofarFreqs: dsp.BinFrequencies(dsp.LofarBins, dsp.LofarBandHz),
	}
	ws.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           ws.routes(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

func (ws *WebServer) routes(opts ServerOptions) http.Handler {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/health", ws.handleHealth)
	r.Get("/ws", ws.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", ws.handleSnapshot)
		r.Get("/live", ws.hub.handleLive)
		r.Get("/lofar", ws.handleLofar)
		r.Get("/demon", ws.handleDemon)
		r.Get("/diagnostics", ws.hub.handleDiagnostics)
		r.Get("/config", ws.hub.handleGetConfig)
		r.Post("/config", ws.hub.handleSetConfig)

		r.Get("/bearings", ws.handleBearings)
		r.Get("/bearings/{id}", ws.handleBearingHistory)

		r.Route("/targets", func(r chi.Router) {
			r.Get("/", ws.handleTargets)
			r.Post("/", ws.command(sim.CmdAddTarget))
			r.Get("/{id}", ws.handleTarget)
			r.Delete("/{id}", ws.command(sim.CmdRemoveTarget))
			r.Post("/{id}/classify", ws.command(sim.CmdClassify))
			r.Post("/{id}/reset", ws.command(sim.CmdResetClassification))
			r.Post("/{id}/rpm", ws.command(sim.CmdSetShaftRPM))
			r.Post("/{id}/kinematics", ws.command(sim.CmdSetKinematics))
		})

		r.Post("/select", ws.command(sim.CmdSelect))
		r.Post("/gain", ws.command(sim.CmdSetGain))
		r.Post("/compression", ws.command(sim.CmdSetCompression))
		r.Post("/listener", ws.command(sim.CmdSetListener))
		r.Post("/listener/rotate", ws.command(sim.CmdRotateListener))
		r.Post("/display", ws.command(sim.CmdSetDisplay))
		r.Post("/commands", ws.command(""))
	})
	return r
}

// Handler returns the configured router.
func (ws *WebServer) Handler() http.Handler { return ws.srv.Handler }

// Start listens on the configured address and shuts down when ctx is
// canceled.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", ws.srv.Addr, err)
	}
	return ws.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled.
func (ws *WebServer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := ws.srv.Shutdown(shutdownCtx); err != nil {
			ws.logger.Warn("web shutdown", logging.F("error", err))
		}
	}()

	ws.logger.Info("web console listening", logging.F("addr", ln.Addr().String()))
	if err := ws.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, ready := ws.hub.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"ready":  ready,
		"uptime": ws.hub.Diagnostics().Uptime.String(),
	})
}

func (ws *WebServer) snapshot(w http.ResponseWriter) (sim.Snapshot, bool) {
	snap, ok := ws.hub.Snapshot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "simulation has not published state yet")
	}
	return snap, ok
}

func (ws *WebServer) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	if snap, ok := ws.snapshot(w); ok {
		writeJSON(w, http.StatusOK, snap)
	}
}

func (ws *WebServer) handleTargets(w http.ResponseWriter, _ *http.Request) {
	if snap, ok := ws.snapshot(w); ok {
		writeJSON(w, http.StatusOK, snap.Targets)
	}
}

func (ws *WebServer) handleTarget(w http.ResponseWriter, r *http.Request) {
	snap, ok := ws.snapshot(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	for _, t := range snap.Targets {
		if t.ID == id {
			writeJSON(w, http.StatusOK, t)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("unknown target %q", id))
}

func (ws *WebServer) handleBearings(w http.ResponseWriter, r *http.Request) {
	snap, ok := ws.snapshot(w)
	if !ok {
		return
	}
	bucketMs := ws.hub.ConfigSnapshot().BearingBucketMs
	if raw := r.URL.Query().Get("bucket"); raw != "" {
		v, err := parseBucket(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		bucketMs = v
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bucketMs": bucketMs,
		"buckets":  sim.BucketReadings(snap.Bearings, bucketMs),
	})
}

// parseBucket accepts either a Go duration ("5s") or milliseconds.
func parseBucket(raw string) (int64, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("bucket must be positive")
		}
		return d.Milliseconds(), nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid bucket %q", raw)
	}
	return ms, nil
}

func (ws *WebServer) handleBearingHistory(w http.ResponseWriter, r *http.Request) {
	snap, ok := ws.snapshot(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	known := false
	for _, t := range snap.Targets {
		if t.ID == id {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown target %q", id))
		return
	}
	readings := snap.Bearings[id]
	if readings == nil {
		readings = []sim.BearingReading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (ws *WebServer) handleLofar(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"bins":        dsp.LofarBins,
		"bandHz":      dsp.LofarBandHz,
		"frequencies": ws.lofarFreqs,
		"lines":       ws.hub.Waterfall(),
	})
}

func (ws *WebServer) handleDemon(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ws.hub.LatestAnalysis())
}

// command returns a handler that decodes a command body, fills in the kind
// and path target and queues it. An empty kind takes the kind from the
// body.
func (ws *WebServer) command(kind sim.CommandKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cmd sim.Command
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
				return
			}
		}
		if kind != "" {
			cmd.Kind = kind
		}
		if id := chi.URLParam(r, "id"); id != "" {
			cmd.TargetID = id
		}
		cmd, status, err := ws.dispatch(cmd)
		if err != nil {
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   "queued",
			"type":     cmd.Kind,
			"targetId": cmd.TargetID,
		})
	}
}

// dispatch validates and queues cmd. The returned status is the HTTP code
// to report when err is non-nil.
func (ws *WebServer) dispatch(cmd sim.Command) (sim.Command, int, error) {
	if err := cmd.Validate(); err != nil {
		return cmd, http.StatusBadRequest, err
	}
	if cmd.Kind == sim.CmdAddTarget && cmd.TargetID == "" {
		cmd.TargetID = uuid.NewString()
	}
	if ws.commands == nil {
		return cmd, http.StatusServiceUnavailable, errors.New("command queue unavailable")
	}
	if err := ws.commands.Submit(cmd); err != nil {
		ws.logger.Warn("command rejected", logging.F("type", cmd.Kind), logging.F("error", err))
		return cmd, http.StatusServiceUnavailable, err
	}
	ws.logger.Debug("command queued", logging.F("type", cmd.Kind), logging.F("target_id", cmd.TargetID))
	return cmd, http.StatusAccepted, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
