package sim

import (
	"errors"
	"fmt"
	"strings"
)

// CommandKind names an operator command.
type CommandKind string

const (
	CmdSelect              CommandKind = "select"
	CmdClassify            CommandKind = "classify"
	CmdResetClassification CommandKind = "reset_classification"
	CmdSetGain             CommandKind = "set_gain"
	CmdSetCompression      CommandKind = "set_compression"
	CmdRotateListener      CommandKind = "rotate_listener"
	CmdSetListener         CommandKind = "set_listener"
	CmdSetDisplay          CommandKind = "set_display"
	CmdAddTarget           CommandKind = "add_target"
	CmdRemoveTarget        CommandKind = "remove_target"
	CmdSetShaftRPM         CommandKind = "set_shaft_rpm"
	CmdSetKinematics       CommandKind = "set_kinematics"
)

// ErrInvalidCommand is returned by Command.Validate.
var ErrInvalidCommand = errors.New("invalid command")

// Command is an operator request queued for the simulation goroutine. It
// doubles as the wire format of the command API.
type Command struct {
	Kind           CommandKind `json:"type"`
	TargetID       string      `json:"targetId,omitempty"`
	Classification string      `json:"classification,omitempty"`
	Value          float64     `json:"value,omitempty"`
	Steps          int         `json:"steps,omitempty"`
	Display        Display     `json:"display,omitempty"`
	VesselType     VesselType  `json:"vesselType,omitempty"`
	Position       *Vector3    `json:"position,omitempty"`
	Velocity       *Vector3    `json:"velocity,omitempty"`
	Heading        float64     `json:"heading,omitempty"`
}

// Validate checks the command shape before it is queued, so that callers
// can report malformed requests synchronously.
func (c Command) Validate() error {
	switch c.Kind {
	case CmdSelect:
	case CmdClassify:
		cl, err := ParseClassification(c.Classification)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		if cl != Analyzing && cl != Identified {
			return fmt.Errorf("%w: operator may only request ANALYZING or IDENTIFIED", ErrInvalidCommand)
		}
	case CmdSetGain:
		if c.Value < 0 || c.Value > 1 {
			return fmt.Errorf("%w: gain must be within [0,1]", ErrInvalidCommand)
		}
	case CmdSetCompression:
		if !ValidCompression(c.Value) {
			return fmt.Errorf("%w: %w: %v", ErrInvalidCommand, ErrInvalidCompression, c.Value)
		}
	case CmdRotateListener:
		if c.Steps == 0 {
			return fmt.Errorf("%w: steps must be non-zero", ErrInvalidCommand)
		}
	case CmdSetListener:
		if c.Position == nil {
			return fmt.Errorf("%w: position required", ErrInvalidCommand)
		}
	case CmdSetDisplay:
		switch Display(strings.ToUpper(string(c.Display))) {
		case DisplayLOFAR, DisplayDEMON, DisplayTMA:
		default:
			return fmt.Errorf("%w: unknown display %q", ErrInvalidCommand, c.Display)
		}
	case CmdAddTarget:
		if c.Position == nil {
			return fmt.Errorf("%w: position required", ErrInvalidCommand)
		}
	case CmdResetClassification, CmdRemoveTarget, CmdSetShaftRPM, CmdSetKinematics:
		if c.TargetID == "" {
			return fmt.Errorf("%w: targetId required", ErrInvalidCommand)
		}
		if c.Kind == CmdSetKinematics && (c.Position == nil || c.Velocity == nil) {
			return fmt.Errorf("%w: position and velocity required", ErrInvalidCommand)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, c.Kind)
	}
	return nil
}

// Apply executes the command against s.
func (c Command) Apply(s *Simulation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch c.Kind {
	case CmdSelect:
		if !s.Select(c.TargetID) {
			return fmt.Errorf("%w %q", ErrUnknownTarget, c.TargetID)
		}
	case CmdClassify:
		cl, _ := ParseClassification(c.Classification)
		return s.Classify(c.TargetID, cl)
	case CmdResetClassification:
		return s.ResetClassification(c.TargetID)
	case CmdSetGain:
		s.SetMasterGain(c.Value)
	case CmdSetCompression:
		return s.SetTimeCompression(c.Value)
	case CmdRotateListener:
		s.RotateListener(c.Steps)
	case CmdSetListener:
		s.SetListener(ListenerState{Position: *c.Position, Heading: c.Heading})
	case CmdSetDisplay:
		s.SetDisplay(Display(strings.ToUpper(string(c.Display))))
	case CmdAddTarget:
		t := Target{ID: c.TargetID, Position: *c.Position, Signature: SignatureFor(c.VesselType)}
		if c.Velocity != nil {
			t.Velocity = *c.Velocity
		}
		_, err := s.AddTarget(t)
		return err
	case CmdRemoveTarget:
		if !s.RemoveTarget(c.TargetID) {
			return fmt.Errorf("%w %q", ErrUnknownTarget, c.TargetID)
		}
	case CmdSetShaftRPM:
		return s.SetShaftRPM(c.TargetID, c.Value)
	case CmdSetKinematics:
		return s.SetKinematics(c.TargetID, *c.Position, *c.Velocity)
	}
	return nil
}
