package phoneauth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/phoneauth/internal/challenge"
	"github.com/MrEthical07/phoneauth/internal/store"
	"github.com/MrEthical07/phoneauth/onboarding"
)

// SendCode requests a one-time code for a phone number. The cooldown and
// hourly cap are checked before the provider is called; a provider failure
// leaves no challenge behind.
func (e *Engine) SendCode(ctx context.Context, req SendCodeRequest) (*SendCodeResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	target, err := normalizePhone(req.CountryCode, req.Phone)
	if err != nil {
		return nil, newError(KindInputInvalid, err)
	}
	return e.sendChallenge(ctx, "send_code", target, store.ChallengePhoneAuth, auditSubject{})
}

// sendChallenge creates a challenge and records its outcome.
func (e *Engine) sendChallenge(ctx context.Context, op string, target store.Target, typ store.ChallengeType, subject auditSubject) (*SendCodeResult, error) {
	start := time.Now()
	created, err := e.challenges.Create(ctx, target, typ, e.clientMeta(ctx))
	e.observeSince(MetricSendLatency, start)
	if err != nil {
		pub := e.fail(ctx, op, err, "challenge_type", string(typ), "user_id", subject.userID)
		if KindOf(pub) == KindRateLimited {
			e.emitRateLimit(ctx, string(typ), pub)
		} else {
			e.metricInc(MetricOTPSendFailure)
		}
		e.emitAudit(ctx, auditEventOTPSendFailure, false, subject, pub, func() map[string]string {
			return map[string]string{"challenge_type": string(typ)}
		})
		return nil, pub
	}

	e.metricInc(MetricOTPSent)
	e.emitAudit(ctx, auditEventOTPSent, true, subject, nil, func() map[string]string {
		return map[string]string{"challenge_type": string(typ), "challenge_id": created.ChallengeID}
	})
	return &SendCodeResult{
		ChallengeID: created.ChallengeID,
		ExpiresAt:   created.ExpiresAt,
		RetryAfter:  created.RetryAfter,
	}, nil
}

// VerifyCode redeems a phone code and signs the caller in. Redemption, user
// creation or update, onboarding, and session issuance commit together. A
// wrong code still consumes an attempt.
func (e *Engine) VerifyCode(ctx context.Context, req VerifyCodeRequest) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	target, err := normalizePhone(req.CountryCode, req.Phone)
	if err != nil {
		return nil, newError(KindInputInvalid, err)
	}
	if err := e.validateCode(req.Code); err != nil {
		return nil, newError(KindInputInvalid, err)
	}
	if err := e.validateDevice(req.Device); err != nil {
		return nil, newError(KindInputInvalid, err)
	}

	var (
		result  *AuthResult
		outcome upsertOutcome
		start   = time.Now()
	)
	err = e.redeemTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.challenges.Redeem(ctx, tx, target, store.ChallengePhoneAuth, req.Code); err != nil {
			return err
		}

		u, oc, err := e.upsertPhoneUser(ctx, tx, target)
		if err != nil {
			return err
		}
		pair, _, err := e.sessions.Issue(ctx, tx, u, sessionDevice(req.Device), clientIPFromContext(ctx), userAgentFromContext(ctx))
		if err != nil {
			return err
		}

		outcome = oc
		result = &AuthResult{User: userInfo(u), Tokens: tokenPair(pair), IsNewUser: oc.created}
		return nil
	})
	e.observeSince(MetricRedeemLatency, start)
	if err != nil {
		return nil, e.redeemFailed(ctx, "verify_code", err, auditSubject{deviceID: req.Device.ID})
	}

	subject := auditSubject{userID: result.User.ID, sessionID: result.Tokens.SessionID, deviceID: req.Device.ID}
	e.redeemSucceeded(ctx, store.ChallengePhoneAuth, subject, outcome)
	return result, nil
}

// redeemFailed classifies a failed redemption and records it.
func (e *Engine) redeemFailed(ctx context.Context, op string, err error, subject auditSubject) error {
	pub := e.fail(ctx, op, err, "user_id", subject.userID, "device_id", subject.deviceID)

	var limit *challenge.LimitError
	switch {
	case errors.As(err, &limit):
		e.emitRateLimit(ctx, op, pub)
	case errors.Is(pub, ErrInvalidCode):
		e.metricInc(MetricOTPVerifyFailure)
	case errors.Is(pub, ErrAttemptsExceeded):
		e.metricInc(MetricOTPAttemptsExceeded)
	}
	e.emitAudit(ctx, auditEventOTPVerifyFailure, false, subject, pub, func() map[string]string {
		return map[string]string{"op": op}
	})
	return pub
}

// redeemSucceeded records a successful redemption. subject.sessionID is
// set only when the redemption issued a session.
func (e *Engine) redeemSucceeded(ctx context.Context, typ store.ChallengeType, subject auditSubject, oc upsertOutcome) {
	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerifySuccess, true, subject, nil, func() map[string]string {
		return map[string]string{"challenge_type": string(typ)}
	})
	if oc.created {
		e.metricInc(MetricUserCreated)
		e.emitAudit(ctx, auditEventUserCreated, true, subject, nil, nil)
	}
	if oc.reactivated {
		e.metricInc(MetricAccountReactivated)
		e.emitAudit(ctx, auditEventAccountReactivated, true, subject, nil, nil)
	}
	if subject.sessionID != "" {
		e.metricInc(MetricSessionCreated)
		e.emitAudit(ctx, auditEventSessionIssued, true, subject, nil, nil)
	}
}

type upsertOutcome struct {
	created     bool
	reactivated bool
}

// upsertPhoneUser returns the account owning target, creating it on first
// verification. An account whose phone was attached through federation and
// never verified belongs to the other flow.
func (e *Engine) upsertPhoneUser(ctx context.Context, tx store.Tx, target store.Target) (*store.User, upsertOutcome, error) {
	now := e.now()

	u, err := tx.UserByPhone(ctx, target.CountryCode, target.Phone)
	if errors.Is(err, store.ErrNotFound) {
		step, err := onboarding.Advance(onboarding.StepPhoneVerification, onboarding.EventPhoneVerified)
		if err != nil {
			return nil, upsertOutcome{}, err
		}
		cc, phone := target.CountryCode, target.Phone
		u = &store.User{
			ID:             uuid.NewString(),
			CountryCode:    &cc,
			Phone:          &phone,
			PhoneVerified:  true,
			IsActive:       true,
			OnboardingStep: step,
			Role:           string(e.config.Account.DefaultRole),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			return nil, upsertOutcome{}, err
		}
		return u, upsertOutcome{created: true}, nil
	}
	if err != nil {
		return nil, upsertOutcome{}, err
	}

	if u.Federated() && !u.PhoneVerified {
		return nil, upsertOutcome{}, newError(KindConflict, ErrWrongFlow)
	}
	react, err := admit(u, now)
	if err != nil {
		return nil, upsertOutcome{}, err
	}

	step, err := onboarding.Advance(u.OnboardingStep, onboarding.EventPhoneVerified)
	if err != nil {
		return nil, upsertOutcome{}, err
	}
	u.PhoneVerified = true
	u.OnboardingStep = step
	u.UpdatedAt = now
	if react {
		reactivate(u, now)
	}
	if err := tx.SaveUser(ctx, u); err != nil {
		return nil, upsertOutcome{}, err
	}
	return u, upsertOutcome{reactivated: react}, nil
}
