package onboarding

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfOrder is returned when an event belongs to a step the account
	// has not reached yet.
	ErrOutOfOrder = errors.New("onboarding event out of order")
	// ErrRegression is returned for any attempt to move an account backwards.
	ErrRegression = errors.New("onboarding step cannot regress")
	// ErrIncomplete is returned by gates that require a completed onboarding.
	ErrIncomplete = errors.New("onboarding incomplete")
	// ErrUnknownEvent is returned for events outside the defined set.
	ErrUnknownEvent = errors.New("unknown onboarding event")
)

// Event is a completed action that moves an account out of one step.
type Event uint8

const (
	EventPhoneVerified Event = iota + 1
	EventProfileSaved
	EventInterestsSaved
	EventRecommendationsAcknowledged
)

func (e Event) String() string {
	switch e {
	case EventPhoneVerified:
		return "phone_verified"
	case EventProfileSaved:
		return "profile_saved"
	case EventInterestsSaved:
		return "interests_saved"
	case EventRecommendationsAcknowledged:
		return "recommendations_acknowledged"
	default:
		return fmt.Sprintf("Event(%d)", uint8(e))
	}
}

// transitions maps each event to the step it completes.
var transitions = map[Event]Step{
	EventPhoneVerified:               StepPhoneVerification,
	EventProfileSaved:                StepProfileSetup,
	EventInterestsSaved:              StepInterestsSelection,
	EventRecommendationsAcknowledged: StepCommunityRecommendations,
}

// Advance applies event to current and returns the resulting step.
func Advance(current Step, event Event) (Step, error) {
	if !current.Valid() {
		return current, fmt.Errorf("%w: %d", ErrUnknownStep, uint8(current))
	}
	from, ok := transitions[event]
	if !ok {
		return current, fmt.Errorf("%w: %d", ErrUnknownEvent, uint8(event))
	}

	switch {
	case current > from:
		return current, nil
	case current < from:
		return current, fmt.Errorf("%w: %s requires %s, account is at %s", ErrOutOfOrder, event, from, current)
	default:
		return from + 1, nil
	}
}

// MoveTo validates a direct transition to target. Staying put is allowed.
func MoveTo(current, target Step) (Step, error) {
	if !current.Valid() || !target.Valid() {
		return current, ErrUnknownStep
	}
	if target < current {
		return current, fmt.Errorf("%w: %s -> %s", ErrRegression, current, target)
	}
	return target, nil
}

// RequireCompleted returns ErrIncomplete unless step is COMPLETED.
func RequireCompleted(step Step) error {
	if step != StepCompleted {
		return fmt.Errorf("%w: account is at %s", ErrIncomplete, step)
	}
	return nil
}

// RequireAtLeast returns ErrIncomplete when step precedes min.
func RequireAtLeast(step, min Step) error {
	if step < min {
		return fmt.Errorf("%w: %s requires %s", ErrIncomplete, step, min)
	}
	return nil
}

// Facts is the subset of an account the phone gate looks at.
type Facts struct {
	Stored        Step
	Federated     bool
	PhoneVerified bool
}

// Effective returns the step gated mutations must be checked against.
func Effective(f Facts) Step {
	if f.Federated && !f.PhoneVerified {
		return StepPhoneVerification
	}
	return f.Stored
}

// PhoneGated reports whether the account must verify a phone before any
// other onboarding mutation is accepted.
func PhoneGated(f Facts) bool {
	return f.Federated && !f.PhoneVerified
}
