package onboarding

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// Step is a position in the onboarding sequence. The zero value is invalid.
type Step uint8

const (
	StepPhoneVerification Step = iota + 1
	StepProfileSetup
	StepInterestsSelection
	StepCommunityRecommendations
	StepCompleted
)

var stepNames = map[Step]string{
	StepPhoneVerification:        "PHONE_VERIFICATION",
	StepProfileSetup:             "PROFILE_SETUP",
	StepInterestsSelection:       "INTERESTS_SELECTION",
	StepCommunityRecommendations: "COMMUNITY_RECOMMENDATIONS",
	StepCompleted:                "COMPLETED",
}

// ErrUnknownStep is returned when parsing or scanning an unrecognised step.
var ErrUnknownStep = errors.New("unknown onboarding step")

// Valid reports whether s is one of the defined steps.
func (s Step) Valid() bool {
	_, ok := stepNames[s]
	return ok
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Step(%d)", uint8(s))
}

// Before reports whether s precedes other in the sequence.
func (s Step) Before(other Step) bool {
	return s < other
}

// ParseStep parses the canonical upper-case step name.
func ParseStep(name string) (Step, error) {
	for step, n := range stepNames {
		if n == name {
			return step, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStep, name)
}

func (s Step) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStep, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	parsed, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value stores the step by name so the column stays readable.
func (s Step) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStep, uint8(s))
	}
	return s.String(), nil
}

func (s *Step) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	case nil:
		return fmt.Errorf("%w: null", ErrUnknownStep)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrUnknownStep, src)
	}
}
