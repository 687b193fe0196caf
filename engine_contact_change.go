package phoneauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/phoneauth/internal/store"
)

// RequestEmailChange stages a new email address on a fully onboarded
// account and sends it a code. The current address stays in effect until
// [Engine.ConfirmEmailChange] succeeds.
func (e *Engine) RequestEmailChange(ctx context.Context, p Principal, email string) (*ContactChangeResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, newError(KindInputInvalid, err)
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := e.loadActiveUser(ctx, tx, p)
		if err != nil {
			return err
		}
		if err := requireCompleted(u); err != nil {
			return err
		}
		if u.Email != nil && *u.Email == addr && u.EmailVerified {
			return newError(KindInputInvalid, ErrInvalidRequest)
		}
		if err := emailFree(ctx, tx, u.ID, addr); err != nil {
			return err
		}
		u.PendingEmail = &addr
		u.UpdatedAt = e.now()
		return tx.SaveUser(ctx, u)
	})
	if err != nil {
		return nil, e.fail(ctx, "request_email_change", err, "user_id", p.UserID)
	}

	e.contactChangeRequested(ctx, p, "email")
	return e.sendChallenge(ctx, "request_email_change", store.Target{UserID: p.UserID, Email: addr}, store.ChallengeEmailVerify, principalSubject(p))
}

// ConfirmEmailChange redeems the code sent to the pending address and makes
// it the verified email of the account.
func (e *Engine) ConfirmEmailChange(ctx context.Context, p Principal, code string) (*UserInfo, error) {
	return e.confirmContact(ctx, "confirm_email_change", p, code, store.ChallengeEmailVerify,
		func(u *store.User) (store.Target, error) {
			if u.PendingEmail == nil {
				return store.Target{}, newError(KindStateViolation, ErrNoPendingChange)
			}
			if err := requireCompleted(u); err != nil {
				return store.Target{}, err
			}
			return store.Target{UserID: u.ID, Email: *u.PendingEmail}, nil
		},
		func(ctx context.Context, tx store.Tx, u *store.User, t store.Target) error {
			if err := emailFree(ctx, tx, u.ID, t.Email); err != nil {
				return err
			}
			addr := t.Email
			u.Email = &addr
			u.EmailVerified = true
			u.PendingEmail = nil
			return nil
		})
}

// RequestPhoneChange stages a new phone number on a fully onboarded account
// and sends it a code.
func (e *Engine) RequestPhoneChange(ctx context.Context, p Principal, countryCode, phone string) (*ContactChangeResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	target, err := normalizePhone(countryCode, phone)
	if err != nil {
		return nil, newError(KindInputInvalid, err)
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := e.loadActiveUser(ctx, tx, p)
		if err != nil {
			return err
		}
		if err := requireCompleted(u); err != nil {
			return err
		}
		if u.HasPhone() && *u.CountryCode == target.CountryCode && *u.Phone == target.Phone && u.PhoneVerified {
			return newError(KindInputInvalid, ErrInvalidRequest)
		}
		if err := phoneFree(ctx, tx, u.ID, target); err != nil {
			return err
		}
		cc, num := target.CountryCode, target.Phone
		u.PendingCountryCode = &cc
		u.PendingPhone = &num
		u.UpdatedAt = e.now()
		return tx.SaveUser(ctx, u)
	})
	if err != nil {
		return nil, e.fail(ctx, "request_phone_change", err, "user_id", p.UserID)
	}

	e.contactChangeRequested(ctx, p, "phone")
	return e.sendChallenge(ctx, "request_phone_change", target, store.ChallengePhoneChange, principalSubject(p))
}

// ConfirmPhoneChange redeems the code sent to the pending number and makes
// it the verified phone of the account.
func (e *Engine) ConfirmPhoneChange(ctx context.Context, p Principal, code string) (*UserInfo, error) {
	return e.confirmContact(ctx, "confirm_phone_change", p, code, store.ChallengePhoneChange,
		func(u *store.User) (store.Target, error) {
			if u.PendingPhone == nil || u.PendingCountryCode == nil {
				return store.Target{}, newError(KindStateViolation, ErrNoPendingChange)
			}
			if err := requireCompleted(u); err != nil {
				return store.Target{}, err
			}
			return store.Target{CountryCode: *u.PendingCountryCode, Phone: *u.PendingPhone}, nil
		},
		func(ctx context.Context, tx store.Tx, u *store.User, t store.Target) error {
			if err := phoneFree(ctx, tx, u.ID, t); err != nil {
				return err
			}
			cc, num := t.CountryCode, t.Phone
			u.CountryCode = &cc
			u.Phone = &num
			u.PhoneVerified = true
			u.PendingCountryCode = nil
			u.PendingPhone = nil
			return nil
		})
}

// RequestEmailVerification sends a code to the account's unverified email.
// A non-empty email replaces the unverified address first. It is not gated
// by onboarding.
func (e *Engine) RequestEmailVerification(ctx context.Context, p Principal, email string) (*SendCodeResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	addr := ""
	if email != "" {
		var err error
		if addr, err = normalizeEmail(email); err != nil {
			return nil, newError(KindInputInvalid, err)
		}
	}

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := e.loadActiveUser(ctx, tx, p)
		if err != nil {
			return err
		}
		if u.EmailVerified {
			return newError(KindInputInvalid, ErrInvalidRequest)
		}
		if addr == "" {
			if u.Email == nil {
				return newError(KindInputInvalid, ErrInvalidEmail)
			}
			addr = *u.Email
			return nil
		}
		if err := emailFree(ctx, tx, u.ID, addr); err != nil {
			return err
		}
		u.Email = &addr
		u.UpdatedAt = e.now()
		return tx.SaveUser(ctx, u)
	})
	if err != nil {
		return nil, e.fail(ctx, "request_email_verification", err, "user_id", p.UserID)
	}

	return e.sendChallenge(ctx, "request_email_verification", store.Target{UserID: p.UserID, Email: addr}, store.ChallengeEmailVerify, principalSubject(p))
}

// ConfirmEmailVerification redeems the code sent by
// [Engine.RequestEmailVerification].
func (e *Engine) ConfirmEmailVerification(ctx context.Context, p Principal, code string) (*UserInfo, error) {
	return e.confirmContact(ctx, "confirm_email_verification", p, code, store.ChallengeEmailVerify,
		func(u *store.User) (store.Target, error) {
			if u.Email == nil || u.EmailVerified {
				return store.Target{}, newError(KindStateViolation, ErrNoPendingChange)
			}
			return store.Target{UserID: u.ID, Email: *u.Email}, nil
		},
		func(_ context.Context, _ store.Tx, u *store.User, _ store.Target) error {
			u.EmailVerified = true
			return nil
		})
}

// confirmContact redeems a code addressed by target(u) and, on success,
// applies the change. Reads happen before the redemption; writes after.
func (e *Engine) confirmContact(
	ctx context.Context,
	op string,
	p Principal,
	code string,
	typ store.ChallengeType,
	target func(u *store.User) (store.Target, error),
	apply func(ctx context.Context, tx store.Tx, u *store.User, t store.Target) error,
) (*UserInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.validateCode(code); err != nil {
		return nil, newError(KindInputInvalid, err)
	}

	var info UserInfo
	err := e.redeemTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := e.loadActiveUser(ctx, tx, p)
		if err != nil {
			return err
		}
		t, err := target(u)
		if err != nil {
			return err
		}
		if _, err := e.challenges.Redeem(ctx, tx, t, typ, code); err != nil {
			return err
		}
		if err := apply(ctx, tx, u, t); err != nil {
			return err
		}
		u.UpdatedAt = e.now()
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		info = userInfo(u)
		return nil
	})
	subject := principalSubject(p)
	if err != nil {
		return nil, e.redeemFailed(ctx, op, err, subject)
	}

	e.redeemSucceeded(ctx, typ, auditSubject{userID: p.UserID, deviceID: p.DeviceID}, upsertOutcome{})
	if op == "confirm_email_verification" {
		e.metricInc(MetricEmailVerified)
		e.emitAudit(ctx, auditEventEmailVerified, true, subject, nil, nil)
	} else {
		e.metricInc(MetricContactChangeConfirmed)
		e.emitAudit(ctx, auditEventContactChangeConfirmed, true, subject, nil, func() map[string]string {
			return map[string]string{"challenge_type": string(typ)}
		})
	}
	return &info, nil
}

func (e *Engine) contactChangeRequested(ctx context.Context, p Principal, channel string) {
	e.metricInc(MetricContactChangeRequested)
	e.emitAudit(ctx, auditEventContactChangeRequested, true, principalSubject(p), nil, func() map[string]string {
		return map[string]string{"channel": channel}
	})
}

// emailFree reports ErrEmailTaken when addr belongs to an account other
// than userID.
func emailFree(ctx context.Context, tx store.Tx, userID, addr string) error {
	owner, err := tx.UserByEmail(ctx, addr)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	case owner.ID != userID:
		return newError(KindConflict, ErrEmailTaken)
	}
	return nil
}

func principalSubject(p Principal) auditSubject {
	return auditSubject{userID: p.UserID, sessionID: p.SessionID, deviceID: p.DeviceID}
}
