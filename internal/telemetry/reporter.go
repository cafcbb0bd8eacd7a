// Package telemetry publishes simulation state to operators and exposes
// the display and command API.
package telemetry

import (
	"github.com/rjboer/GoSonar/internal/dsp"
	"github.com/rjboer/GoSonar/internal/sim"
)

// Analysis is one DEMON/LOFAR analysis cycle.
type Analysis struct {
	TimestampMs int64           `json:"timestamp"`
	TargetID    string          `json:"targetId,omitempty"`
	Demon       dsp.DemonResult `json:"demon"`
	Lofar       dsp.LofarLine   `json:"lofar"`
}

// EventType tags live events.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventAnalysis EventType = "analysis"
	EventError    EventType = "error"
)

// Event is the payload of the live SSE and WebSocket streams.
type Event struct {
	Type     EventType     `json:"type"`
	Snapshot *sim.Snapshot `json:"snapshot,omitempty"`
	Analysis *Analysis     `json:"analysis,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// Reporter receives immutable state published by the simulation driver.
type Reporter interface {
	ReportSnapshot(snap sim.Snapshot)
	ReportAnalysis(a Analysis)
}

// MultiReporter fans out telemetry to multiple destinations.
type MultiReporter []Reporter

// ReportSnapshot forwards a snapshot to each configured reporter.
func (m MultiReporter) ReportSnapshot(snap sim.Snapshot) {
	for _, r := range m {
		if r != nil {
			r.ReportSnapshot(snap)
		}
	}
}

// ReportAnalysis forwards an analysis result to each configured reporter.
func (m MultiReporter) ReportAnalysis(a Analysis) {
	for _, r := range m {
		if r != nil {
			r.ReportAnalysis(a)
		}
	}
}
