package phoneauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneauth/internal/challenge"
	"github.com/MrEthical07/phoneauth/internal/limiters"
	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/MrEthical07/phoneauth/internal/sessions"
	"github.com/MrEthical07/phoneauth/internal/store"
	"github.com/MrEthical07/phoneauth/onboarding"
	"github.com/MrEthical07/phoneauth/provider"
)

// Kind classifies an [Error] for callers that only need to know how to react.
type Kind uint8

const (
	// KindNone is the kind of a nil error.
	KindNone Kind = iota
	// KindInputInvalid marks malformed input rejected before any side effect.
	KindInputInvalid
	// KindRateLimited marks cooldown, hourly cap, and redemption throttle
	// denials. RetryAfter is set.
	KindRateLimited
	// KindProviderUnavailable marks transport failures and timeouts talking to
	// the SMS, email, or identity provider, and an unreachable rate limiter.
	// Retryable.
	KindProviderUnavailable
	// KindChallengeInvalid marks a missing, expired, exhausted, or wrongly
	// answered challenge. Not retryable without a new challenge.
	KindChallengeInvalid
	// KindConflict marks a registration through the wrong flow or an
	// ownership mismatch.
	KindConflict
	// KindStateViolation marks an onboarding-gated action attempted out of
	// order.
	KindStateViolation
	// KindUnauthorized marks an invalid, expired, revoked, or reused
	// credential.
	KindUnauthorized
	// KindInternal marks datastore or transaction failures. Details are
	// logged, never returned.
	KindInternal
)

var kindNames = [...]string{
	KindNone:                "none",
	KindInputInvalid:        "input_invalid",
	KindRateLimited:         "rate_limited",
	KindProviderUnavailable: "provider_unavailable",
	KindChallengeInvalid:    "challenge_invalid",
	KindConflict:            "conflict",
	KindStateViolation:      "state_violation",
	KindUnauthorized:        "unauthorized",
	KindInternal:            "internal",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Retryable reports whether the same request may succeed later unchanged.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindProviderUnavailable
}

var (
	// ErrInvalidPhone is returned for a malformed phone number or country code.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrInvalidEmail is returned for a malformed email address.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrMalformedCode is returned for a code that is empty or not numeric.
	ErrMalformedCode = errors.New("malformed verification code")
	// ErrInvalidDevice is returned when the device id is missing or too long.
	ErrInvalidDevice = errors.New("invalid device")
	// ErrInvalidRequest is returned for any other structurally invalid input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrProviderRejected is returned when a provider refuses the target
	// outright, for example an undeliverable number.
	ErrProviderRejected = errors.New("provider rejected target")

	// ErrRateLimited is returned for cooldown, hourly cap, and redemption
	// throttle denials.
	ErrRateLimited = errors.New("rate limited")

	// ErrProviderUnavailable is returned for provider transport failures and
	// timeouts.
	ErrProviderUnavailable = errors.New("verification provider unavailable")
	// ErrRateLimiterUnavailable is returned when the counter store cannot be
	// reached. Limits fail closed.
	ErrRateLimiterUnavailable = errors.New("rate limiter unavailable")

	// ErrNoActiveChallenge is returned when no unverified challenge exists for
	// the target.
	ErrNoActiveChallenge = errors.New("no active challenge")
	// ErrChallengeExpired is returned when the newest challenge has expired.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrAttemptsExceeded is returned once a challenge used all its attempts.
	ErrAttemptsExceeded = errors.New("challenge attempts exceeded")
	// ErrInvalidCode is returned for a wrong code. The attempt was charged.
	ErrInvalidCode = errors.New("invalid code")

	// ErrWrongFlow is returned when a phone number belongs to an account
	// registered through a different sign-in flow.
	ErrWrongFlow = errors.New("already registered through a different sign-in flow")
	// ErrAccountSuspended is returned when a suspended account tries to sign in.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrEmailTaken is returned when an email is already attached to another
	// account.
	ErrEmailTaken = errors.New("email already in use")
	// ErrPhoneTaken is returned when a phone number is already attached to
	// another account.
	ErrPhoneTaken = errors.New("phone number already in use")
	// ErrNothingToRevoke is returned when a logout matched no active session
	// owned by the caller.
	ErrNothingToRevoke = errors.New("nothing to revoke")
	// ErrConflict is returned for any other uniqueness violation.
	ErrConflict = errors.New("conflict")

	// ErrOnboardingIncomplete is returned by actions that require a completed
	// onboarding.
	ErrOnboardingIncomplete = errors.New("onboarding incomplete")
	// ErrOnboardingOutOfOrder is returned for a step the account has not
	// reached.
	ErrOnboardingOutOfOrder = errors.New("onboarding step out of order")
	// ErrOnboardingRegression is returned for any attempt to move onboarding
	// backwards.
	ErrOnboardingRegression = errors.New("onboarding cannot regress")
	// ErrPhoneVerificationRequired is returned when a federated account must
	// verify a phone before it may continue.
	ErrPhoneVerificationRequired = errors.New("phone verification required")
	// ErrNoPendingChange is returned when a change is confirmed without a
	// matching request.
	ErrNoPendingChange = errors.New("no pending change")

	// ErrUnauthorized is returned when no valid session backs the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidToken is returned for malformed, expired, or wrongly scoped
	// tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRefreshReuse is returned for a refresh token that was already rotated
	// away.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrSessionRevoked is returned for a refresh token of a deactivated
	// session.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrAccountInactive is returned when the account can no longer hold
	// sessions.
	ErrAccountInactive = errors.New("account inactive")
	// ErrInvalidAssertion is returned for a federated identity assertion that
	// fails verification.
	ErrInvalidAssertion = errors.New("invalid identity assertion")

	// ErrInternal is returned for every internal failure.
	ErrInternal = errors.New("internal error")
	// ErrEngineNotReady is returned by a nil or partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Error is the error type returned by every [Engine] operation. Err is one of
// the sentinels above, so callers match with errors.Is and branch on Kind.
type Error struct {
	Kind Kind
	Err  error
	// RetryAfter is set for KindRateLimited.
	RetryAfter time.Duration
	// AttemptsRemaining is set when a wrong code charged an attempt.
	AttemptsRemaining int
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err. Errors that did not come from the engine
// are reported as KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RetryAfter returns the retry hint carried by err, or zero.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// classify maps errors from internal packages onto the public taxonomy. The
// second result reports whether the cause must be logged as internal.
func classify(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}

	var pub *Error
	if errors.As(err, &pub) {
		return pub, false
	}

	var limit *challenge.LimitError
	if errors.As(err, &limit) {
		return &Error{Kind: KindRateLimited, Err: ErrRateLimited, RetryAfter: limit.RetryAfter}, false
	}

	var attempt *challenge.AttemptError
	if errors.As(err, &attempt) {
		if errors.Is(attempt.Err, challenge.ErrInvalidCode) {
			return &Error{Kind: KindChallengeInvalid, Err: ErrInvalidCode, AttemptsRemaining: attempt.Remaining}, false
		}
		inner, internal := classify(attempt.Err)
		if inner.Kind == KindProviderUnavailable {
			inner.AttemptsRemaining = attempt.Remaining
		}
		return inner, internal
	}

	var rejection *provider.RejectionError
	if errors.As(err, &rejection) {
		return newError(KindInputInvalid, ErrProviderRejected), false
	}

	switch {
	case errors.Is(err, rate.ErrUnavailable):
		return newError(KindProviderUnavailable, ErrRateLimiterUnavailable), false
	case errors.Is(err, limiters.ErrCooldown),
		errors.Is(err, limiters.ErrHourlyCap),
		errors.Is(err, limiters.ErrVerifyThrottled):
		return newError(KindRateLimited, ErrRateLimited), false
	case errors.Is(err, provider.ErrUnavailable):
		return newError(KindProviderUnavailable, ErrProviderUnavailable), false
	case errors.Is(err, provider.ErrInvalidAssertion):
		return newError(KindUnauthorized, ErrInvalidAssertion), false

	case errors.Is(err, challenge.ErrNoActiveChallenge):
		return newError(KindChallengeInvalid, ErrNoActiveChallenge), false
	case errors.Is(err, challenge.ErrChallengeExpired):
		return newError(KindChallengeInvalid, ErrChallengeExpired), false
	case errors.Is(err, challenge.ErrAttemptsExceeded):
		return newError(KindChallengeInvalid, ErrAttemptsExceeded), false
	case errors.Is(err, challenge.ErrInvalidCode):
		return newError(KindChallengeInvalid, ErrInvalidCode), false
	case errors.Is(err, challenge.ErrInvalidTarget):
		return newError(KindInputInvalid, ErrInvalidRequest), false

	case errors.Is(err, sessions.ErrRefreshReuse):
		return newError(KindUnauthorized, ErrRefreshReuse), false
	case errors.Is(err, sessions.ErrSessionRevoked):
		return newError(KindUnauthorized, ErrSessionRevoked), false
	case errors.Is(err, sessions.ErrUserInactive):
		return newError(KindUnauthorized, ErrAccountInactive), false
	case errors.Is(err, sessions.ErrInvalidToken):
		return newError(KindUnauthorized, ErrInvalidToken), false
	case errors.Is(err, sessions.ErrNothingToRevoke):
		return newError(KindConflict, ErrNothingToRevoke), false
	case errors.Is(err, sessions.ErrInvalidDevice):
		return newError(KindInputInvalid, ErrInvalidDevice), false
	case errors.Is(err, sessions.ErrInvalidRevokeRequest):
		return newError(KindInputInvalid, ErrInvalidRequest), false

	case errors.Is(err, onboarding.ErrIncomplete):
		return newError(KindStateViolation, ErrOnboardingIncomplete), false
	case errors.Is(err, onboarding.ErrOutOfOrder):
		return newError(KindStateViolation, ErrOnboardingOutOfOrder), false
	case errors.Is(err, onboarding.ErrRegression):
		return newError(KindStateViolation, ErrOnboardingRegression), false

	case errors.Is(err, store.ErrConflict):
		return newError(KindConflict, ErrConflict), false
	}

	return newError(KindInternal, ErrInternal), true
}
