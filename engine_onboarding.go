package phoneauth

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/phoneauth/internal/store"
	"github.com/MrEthical07/phoneauth/onboarding"
)

// Profile returns the caller's account.
func (e *Engine) Profile(ctx context.Context, p Principal) (*UserInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var info UserInfo
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := e.loadActiveUser(ctx, tx, p)
		if err != nil {
			return err
		}
		info = userInfo(u)
		return nil
	})
	if err != nil {
		return nil, e.fail(ctx, "profile", err, "user_id", p.UserID)
	}
	return &info, nil
}

// SaveProfile stores the display name and completes the profile step.
// Accounts past that step may call it again to edit their profile.
func (e *Engine) SaveProfile(ctx context.Context, p Principal, in ProfileInput) (*UserInfo, error) {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" || utf8.RuneCountInString(name) > e.config.Onboarding.DisplayNameMaxLength || !utf8.ValidString(name) {
		return nil, newError(KindInputInvalid, ErrInvalidRequest)
	}
	return e.advanceOnboarding(ctx, "save_profile", p, onboarding.EventProfileSaved, func(u *store.User) {
		u.DisplayName = &name
	})
}

// SaveInterests stores the interest set and completes the interests step.
// Entries are trimmed and deduplicated case-insensitively.
func (e *Engine) SaveInterests(ctx context.Context, p Principal, interests []string) (*UserInfo, error) {
	cleaned := normalizeInterests(interests)
	if len(cleaned) < e.config.Onboarding.MinInterests || len(cleaned) > e.config.Onboarding.MaxInterests {
		return nil, newError(KindInputInvalid, ErrInvalidRequest)
	}
	return e.advanceOnboarding(ctx, "save_interests", p, onboarding.EventInterestsSaved, func(u *store.User) {
		u.Interests = cleaned
	})
}

// AcknowledgeRecommendations completes onboarding.
func (e *Engine) AcknowledgeRecommendations(ctx context.Context, p Principal) (*UserInfo, error) {
	return e.advanceOnboarding(ctx, "acknowledge_recommendations", p, onboarding.EventRecommendationsAcknowledged, nil)
}

// advanceOnboarding applies event to the caller's stored step, then lets
// apply write the step's data. The phone gate is checked first: a federated
// account without a verified phone cannot progress.
func (e *Engine) advanceOnboarding(ctx context.Context, op string, p Principal, event onboarding.Event, apply func(u *store.User)) (*UserInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	var (
		info     UserInfo
		from, to onboarding.Step
	)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := e.loadActiveUser(ctx, tx, p)
		if err != nil {
			return err
		}
		if onboarding.PhoneGated(facts(u)) {
			return newError(KindStateViolation, ErrPhoneVerificationRequired)
		}
		from = u.OnboardingStep
		to, err = onboarding.Advance(from, event)
		if err != nil {
			return err
		}
		if apply != nil {
			apply(u)
		}
		u.OnboardingStep = to
		u.UpdatedAt = e.now()
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		info = userInfo(u)
		return nil
	})

	subject := auditSubject{userID: p.UserID, sessionID: p.SessionID, deviceID: p.DeviceID}
	if err != nil {
		pub := e.fail(ctx, op, err, "user_id", p.UserID)
		if KindOf(pub) == KindStateViolation {
			e.metricInc(MetricOnboardingRejected)
			e.emitAudit(ctx, auditEventOnboardingRejected, false, subject, pub, func() map[string]string {
				return map[string]string{"event": event.String()}
			})
		}
		return nil, pub
	}

	if to != from {
		e.metricInc(MetricOnboardingAdvanced)
		e.emitAudit(ctx, auditEventOnboardingAdvanced, true, subject, nil, func() map[string]string {
			return map[string]string{"from": from.String(), "to": to.String()}
		})
	}
	return &info, nil
}

func normalizeInterests(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// requireCompleted rejects accounts whose effective onboarding step is not
// COMPLETED.
func requireCompleted(u *store.User) error {
	if err := onboarding.RequireCompleted(effectiveStep(u)); err != nil {
		if errors.Is(err, onboarding.ErrIncomplete) {
			return newError(KindStateViolation, ErrOnboardingIncomplete)
		}
		return err
	}
	return nil
}
