package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable marks transport failures and timeouts. Callers may retry.
	ErrUnavailable = errors.New("verification provider unavailable")
	// ErrInvalidAssertion is returned when an identity assertion fails
	// signature, audience, issuer, or expiry checks.
	ErrInvalidAssertion = errors.New("identity assertion invalid")
)

// RejectionError is a provider-side refusal, distinct from a transport
// failure. Status carries the provider's code.
type RejectionError struct {
	Status string
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("provider rejected request: %s", e.Status)
	}
	return fmt.Sprintf("provider rejected request: %s: %s", e.Status, e.Detail)
}

// Validation is the provider's verdict on a submitted code.
type Validation struct {
	Valid  bool
	Status string
	Detail map[string]string
}

// Identity is the verified content of a third-party assertion.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
}

// SMSProvider sends and checks one-time codes. to is an E.164 number.
type SMSProvider interface {
	Originate(ctx context.Context, to string) (ref string, err error)
	Validate(ctx context.Context, ref, code string) (Validation, error)
}

// EmailSender delivers a code. accepted is false when the provider refused
// the message without a transport error.
type EmailSender interface {
	Send(ctx context.Context, to, code string) (accepted bool, err error)
}

// IdentityVerifier validates a third-party identity assertion for audience.
type IdentityVerifier interface {
	VerifyAssertion(ctx context.Context, token, audience string) (Identity, error)
}

// IsRejection reports whether err is a provider refusal.
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}
