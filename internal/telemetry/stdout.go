package telemetry

import (
	"github.com/rjboer/GoSonar/internal/logging"
	"github.com/rjboer/GoSonar/internal/sim"
)

// StdoutReporter logs simulation updates.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logger}
}

// ReportSnapshot logs a per-tick summary at debug level.
func (r StdoutReporter) ReportSnapshot(snap sim.Snapshot) {
	detected := 0
	for _, t := range snap.Targets {
		if t.Detected {
			detected++
		}
	}
	r.logger.Debug("simulation snapshot",
		logging.F("subsystem", "telemetry"),
		logging.F("elapsed_ms", snap.ElapsedMs),
		logging.F("targets", len(snap.Targets)),
		logging.F("detected", detected),
		logging.F("heading_deg", snap.Listener.Heading),
	)
}

// ReportAnalysis logs the DEMON estimate for the selected contact.
func (r StdoutReporter) ReportAnalysis(a Analysis) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "timestamp_ms", Value: a.TimestampMs},
	}
	if a.TargetID == "" || a.Demon.Fallback {
		r.logger.Debug("analysis idle", fields...)
		return
	}
	fields = append(fields,
		logging.Field{Key: "target_id", Value: a.TargetID},
		logging.Field{Key: "blade_rate_hz", Value: a.Demon.BladeRateHz},
		logging.Field{Key: "shaft_rpm", Value: a.Demon.ShaftRPM},
		logging.Field{Key: "confidence", Value: a.Demon.Confidence},
	)
	r.logger.Info("demon analysis", fields...)
}
