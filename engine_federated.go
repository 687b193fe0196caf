package phoneauth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/MrEthical07/phoneauth/internal/store"
	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/onboarding"
	"github.com/MrEthical07/phoneauth/provider"
)

// FederatedLogin signs in with a third-party identity assertion. The
// account is found by external id, then by verified email, or created. An
// account without a verified phone gets a short-lived phone verification
// token instead of a session.
func (e *Engine) FederatedLogin(ctx context.Context, req FederatedLoginRequest) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.IDToken) == "" {
		return nil, newError(KindInputInvalid, ErrInvalidRequest)
	}
	if err := e.validateDevice(req.Device); err != nil {
		return nil, newError(KindInputInvalid, err)
	}

	identity, err := e.providers.VerifyAssertion(ctx, req.IDToken, e.config.Provider.FederationAudience)
	if err != nil {
		pub := e.fail(ctx, "federated_login", err)
		e.emitAudit(ctx, auditEventFederatedLoginFailure, false, auditSubject{deviceID: req.Device.ID}, pub, nil)
		return nil, pub
	}

	var (
		result  *AuthResult
		outcome upsertOutcome
	)
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, oc, err := e.upsertFederatedUser(ctx, tx, identity)
		if err != nil {
			return err
		}

		if !u.PhoneVerified {
			tok, err := e.tokens.CreatePhoneVerify(u.ID)
			if err != nil {
				return err
			}
			outcome = oc
			result = &AuthResult{
				User:                       userInfo(u),
				IsNewUser:                  oc.created,
				RequiresPhoneVerification:  true,
				PhoneVerificationToken:     tok.Value,
				PhoneVerificationExpiresAt: tok.ExpiresAt,
			}
			return nil
		}

		if oc.reactivated {
			reactivate(u, e.now())
			if err := tx.SaveUser(ctx, u); err != nil {
				return err
			}
		}
		pair, _, err := e.sessions.Issue(ctx, tx, u, sessionDevice(req.Device), clientIPFromContext(ctx), userAgentFromContext(ctx))
		if err != nil {
			return err
		}
		outcome = oc
		result = &AuthResult{User: userInfo(u), Tokens: tokenPair(pair), IsNewUser: oc.created}
		return nil
	})
	if err != nil {
		pub := e.fail(ctx, "federated_login", err, "device_id", req.Device.ID)
		e.emitAudit(ctx, auditEventFederatedLoginFailure, false, auditSubject{deviceID: req.Device.ID}, pub, nil)
		return nil, pub
	}

	subject := auditSubject{userID: result.User.ID, deviceID: req.Device.ID}
	e.metricInc(MetricFederatedLogin)
	e.emitAudit(ctx, auditEventFederatedLogin, true, subject, nil, nil)
	if outcome.created {
		e.metricInc(MetricUserCreated)
		e.emitAudit(ctx, auditEventUserCreated, true, subject, nil, nil)
	}
	if result.RequiresPhoneVerification {
		e.metricInc(MetricFederatedPhoneRequired)
		e.emitAudit(ctx, auditEventFederatedPhoneRequired, true, subject, nil, nil)
		return result, nil
	}
	if outcome.reactivated {
		e.metricInc(MetricAccountReactivated)
		e.emitAudit(ctx, auditEventAccountReactivated, true, subject, nil, nil)
	}
	subject.sessionID = result.Tokens.SessionID
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionIssued, true, subject, nil, nil)
	return result, nil
}

// upsertFederatedUser resolves identity to an account. reactivated in the
// outcome means a pending deletion must be cancelled if a session is issued;
// the caller applies it.
func (e *Engine) upsertFederatedUser(ctx context.Context, tx store.Tx, id provider.Identity) (*store.User, upsertOutcome, error) {
	now := e.now()
	email := ""
	if id.EmailVerified && id.Email != "" {
		if normalized, err := normalizeEmail(id.Email); err == nil {
			email = normalized
		}
	}

	u, err := tx.UserByExternalID(ctx, id.Subject)
	switch {
	case errors.Is(err, store.ErrNotFound) && email != "":
		u, err = tx.UserByEmail(ctx, email)
		if err == nil {
			// an unverified address proves nothing about who holds it
			if u.Federated() || !u.EmailVerified {
				return nil, upsertOutcome{}, newError(KindConflict, ErrEmailTaken)
			}
			sub := id.Subject
			u.ExternalID = &sub
			u.EmailVerified = true
			u.UpdatedAt = now
			react, err := admit(u, now)
			if err != nil {
				return nil, upsertOutcome{}, err
			}
			if err := tx.SaveUser(ctx, u); err != nil {
				return nil, upsertOutcome{}, err
			}
			return u, upsertOutcome{reactivated: react}, nil
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		sub := id.Subject
		u = &store.User{
			ID:             uuid.NewString(),
			ExternalID:     &sub,
			IsActive:       true,
			OnboardingStep: onboarding.StepPhoneVerification,
			Role:           string(e.config.Account.DefaultRole),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if email != "" {
			u.Email = &email
			u.EmailVerified = true
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			return nil, upsertOutcome{}, err
		}
		return u, upsertOutcome{created: true}, nil
	}
	if err != nil {
		return nil, upsertOutcome{}, err
	}

	react, err := admit(u, now)
	if err != nil {
		return nil, upsertOutcome{}, err
	}
	return u, upsertOutcome{reactivated: react}, nil
}

// SendFederatedPhoneCode attaches an unverified phone to the account named
// by the phone verification token and sends it a code.
func (e *Engine) SendFederatedPhoneCode(ctx context.Context, req FederatedPhoneCodeRequest) (*SendCodeResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	claims, err := e.parsePhoneVerifyToken(req.PhoneVerificationToken)
	if err != nil {
		return nil, err
	}
	target, err := normalizePhone(req.CountryCode, req.Phone)
	if err != nil {
		return nil, newError(KindInputInvalid, err)
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := e.federatedAccount(ctx, tx, claims.UID)
		if err != nil {
			return err
		}
		if err := phoneFree(ctx, tx, u.ID, target); err != nil {
			return err
		}
		cc, phone := target.CountryCode, target.Phone
		u.CountryCode = &cc
		u.Phone = &phone
		u.PhoneVerified = false
		u.UpdatedAt = e.now()
		return tx.SaveUser(ctx, u)
	})
	if err != nil {
		return nil, e.fail(ctx, "send_federated_phone_code", err, "user_id", claims.UID)
	}

	return e.sendChallenge(ctx, "send_federated_phone_code", target, store.ChallengeFederationPhoneVerify, auditSubject{userID: claims.UID})
}

// VerifyFederatedPhone redeems the code sent by [Engine.SendFederatedPhoneCode],
// marks the phone verified, and issues the first session.
func (e *Engine) VerifyFederatedPhone(ctx context.Context, req FederatedPhoneVerifyRequest) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	claims, err := e.parsePhoneVerifyToken(req.PhoneVerificationToken)
	if err != nil {
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
	)
	err = e.redeemTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.challenges.Redeem(ctx, tx, target, store.ChallengeFederationPhoneVerify, req.Code); err != nil {
			return err
		}

		u, err := e.federatedAccount(ctx, tx, claims.UID)
		if err != nil {
			return err
		}
		if err := phoneFree(ctx, tx, u.ID, target); err != nil {
			return err
		}
		now := e.now()
		react, err := admit(u, now)
		if err != nil {
			return err
		}
		step, err := onboarding.Advance(u.OnboardingStep, onboarding.EventPhoneVerified)
		if err != nil {
			return err
		}
		cc, phone := target.CountryCode, target.Phone
		u.CountryCode = &cc
		u.Phone = &phone
		u.PhoneVerified = true
		u.OnboardingStep = step
		u.UpdatedAt = now
		if react {
			reactivate(u, now)
		}
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}

		pair, _, err := e.sessions.Issue(ctx, tx, u, sessionDevice(req.Device), clientIPFromContext(ctx), userAgentFromContext(ctx))
		if err != nil {
			return err
		}
		outcome = upsertOutcome{reactivated: react}
		result = &AuthResult{User: userInfo(u), Tokens: tokenPair(pair)}
		return nil
	})
	if err != nil {
		return nil, e.redeemFailed(ctx, "verify_federated_phone", err, auditSubject{userID: claims.UID, deviceID: req.Device.ID})
	}

	subject := auditSubject{userID: result.User.ID, sessionID: result.Tokens.SessionID, deviceID: req.Device.ID}
	e.redeemSucceeded(ctx, store.ChallengeFederationPhoneVerify, subject, outcome)
	return result, nil
}

func (e *Engine) parsePhoneVerifyToken(token string) (*jwt.Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, newError(KindUnauthorized, ErrInvalidToken)
	}
	claims, err := e.tokens.Parse(token, jwt.ScopePhoneVerify)
	if err != nil {
		return nil, newError(KindUnauthorized, ErrInvalidToken)
	}
	return claims, nil
}

// federatedAccount loads the account a phone verification token names. It
// must still be federated and waiting for a verified phone.
func (e *Engine) federatedAccount(ctx context.Context, tx store.Tx, userID string) (*store.User, error) {
	u, err := tx.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindUnauthorized, ErrInvalidToken)
		}
		return nil, err
	}
	if !u.Federated() || u.PhoneVerified {
		return nil, newError(KindConflict, ErrWrongFlow)
	}
	if u.IsSuspended {
		return nil, newError(KindConflict, ErrAccountSuspended)
	}
	return u, nil
}

// phoneFree reports ErrPhoneTaken when target belongs to an account other
// than userID.
func phoneFree(ctx context.Context, tx store.Tx, userID string, target store.Target) error {
	owner, err := tx.UserByPhone(ctx, target.CountryCode, target.Phone)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	case owner.ID != userID:
		return newError(KindConflict, ErrPhoneTaken)
	}
	return nil
}
