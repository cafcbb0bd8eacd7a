package sim

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Classification represents the lifecycle of a contact.
type Classification int

const (
	Undetected Classification = iota
	Detected
	Analyzing
	Identified
)

func (c Classification) String() string {
	switch c {
	case Undetected:
		return "UNDETECTED"
	case Detected:
		return "DETECTED"
	case Analyzing:
		return "ANALYZING"
	case Identified:
		return "IDENTIFIED"
	default:
		return "UNKNOWN"
	}
}

// ParseClassification converts a string to a Classification.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UNDETECTED":
		return Undetected, nil
	case "DETECTED":
		return Detected, nil
	case "ANALYZING":
		return Analyzing, nil
	case "IDENTIFIED":
		return Identified, nil
	default:
		return Undetected, fmt.Errorf("unsupported classification %q", s)
	}
}

func (c Classification) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Classification) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClassification(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// autoClassify applies the detection-driven transition. Only UNDETECTED
// ever changes here; a lost contact keeps whatever it had.
func autoClassify(current Classification, detected bool) Classification {
	if current == Undetected && detected {
		return Detected
	}
	return current
}

// operatorClassify validates an operator-requested transition. Only the
// next rank after DETECTED is accepted.
func operatorClassify(current, requested Classification) (Classification, error) {
	switch requested {
	case Analyzing:
		if current == Detected {
			return Analyzing, nil
		}
	case Identified:
		if current == Analyzing {
			return Identified, nil
		}
	}
	if requested == current && requested >= Analyzing {
		return current, nil
	}
	return current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, requested)
}
