package phoneauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/phoneauth/internal/sessions"
	"github.com/MrEthical07/phoneauth/internal/store"
)

const maxPushTokenLength = 512

// Refresh rotates the credentials of the session a refresh token belongs
// to. The old pair stops working. A refresh token that was already rotated
// away is reported as ErrRefreshReuse.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, newError(KindUnauthorized, ErrInvalidToken)
	}

	var res sessions.RefreshResult
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = e.sessions.Refresh(ctx, tx, refreshToken)
		return err
	})
	subject := auditSubject{userID: res.UserID, sessionID: res.SessionID, deviceID: res.DeviceID}
	if err != nil {
		pub := e.fail(ctx, "refresh", err, "user_id", res.UserID, "session_id", res.SessionID)
		e.metricInc(MetricRefreshFailure)
		if errors.Is(pub, ErrRefreshReuse) {
			e.metricInc(MetricRefreshReuseDetected)
			e.log.Warn().Str("user_id", res.UserID).Str("session_id", res.SessionID).Msg("refresh token reuse detected")
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, subject, pub, nil)
		} else {
			e.emitAudit(ctx, auditEventRefreshInvalid, false, subject, pub, nil)
		}
		return nil, pub
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, subject, nil, nil)
	return tokenPair(res.Pair), nil
}

// Logout ends sessions of the caller. Ownership is enforced by the query:
// a device id that belongs to someone else matches nothing and reports
// ErrNothingToRevoke.
func (e *Engine) Logout(ctx context.Context, p Principal, req LogoutRequest) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if p.UserID == "" {
		return 0, newError(KindUnauthorized, ErrUnauthorized)
	}

	var n int
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = e.sessions.Revoke(ctx, tx, p.UserID, p.DeviceID, sessions.RevokeRequest{
			TargetDeviceID: req.TargetDeviceID,
			AllOthers:      req.AllOthers,
		})
		return err
	})
	subject := auditSubject{userID: p.UserID, sessionID: p.SessionID, deviceID: p.DeviceID}
	event := auditEventLogoutSession
	if req.AllOthers {
		event = auditEventLogoutAll
	}
	if err != nil {
		pub := e.fail(ctx, "logout", err, "user_id", p.UserID, "device_id", p.DeviceID)
		e.emitAudit(ctx, event, false, subject, pub, nil)
		return 0, pub
	}

	if req.AllOthers {
		e.metricInc(MetricLogoutAll)
	} else {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, event, true, subject, nil, func() map[string]string {
		m := map[string]string{}
		if req.TargetDeviceID != "" {
			m["target_device_id"] = req.TargetDeviceID
		}
		return m
	})
	return n, nil
}

// CurrentSession resolves an access token. Unknown, expired, revoked, or
// malformed tokens yield nil, nil; only internal failures are errors.
func (e *Engine) CurrentSession(ctx context.Context, accessToken string) (*SessionInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, nil
	}

	var info *SessionInfo
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sess, _, err := e.sessions.Lookup(ctx, tx, accessToken)
		if err != nil {
			if errors.Is(err, sessions.ErrInvalidToken) {
				return nil
			}
			return err
		}
		u, err := tx.UserByID(ctx, sess.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		if !sessions.UserCanHoldSession(u) {
			return nil
		}
		info = &SessionInfo{
			UserID:          u.ID,
			SessionID:       sess.ID,
			DeviceID:        sess.DeviceID,
			Role:            Role(u.Role),
			OnboardingStep:  effectiveStep(u),
			AccessExpiresAt: sess.AccessExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, e.fail(ctx, "current_session", err)
	}

	if info != nil && e.config.Session.TouchOnLookup {
		if err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return e.sessions.Touch(ctx, tx, info.SessionID)
		}); err != nil {
			e.log.Warn().Err(err).Str("session_id", info.SessionID).Msg("session touch failed")
		}
	}
	return info, nil
}

// UpdatePushToken sets the push-delivery token of the caller's session. An
// empty token clears it.
func (e *Engine) UpdatePushToken(ctx context.Context, p Principal, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if len(token) > maxPushTokenLength {
		return newError(KindInputInvalid, ErrInvalidRequest)
	}

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.loadActiveUser(ctx, tx, p); err != nil {
			return err
		}
		list, err := e.sessions.ListDevices(ctx, tx, p.UserID)
		if err != nil {
			return err
		}
		for i := range list {
			if list[i].ID == p.SessionID && list[i].DeviceID == p.DeviceID {
				return e.sessions.UpdatePushToken(ctx, tx, &list[i], token)
			}
		}
		return newError(KindUnauthorized, ErrUnauthorized)
	})
	if err != nil {
		return e.fail(ctx, "update_push_token", err, "user_id", p.UserID, "device_id", p.DeviceID)
	}
	return nil
}

// ListDevices returns the caller's active sessions, most recently used
// first.
func (e *Engine) ListDevices(ctx context.Context, p Principal) ([]DeviceInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	var out []DeviceInfo
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := e.loadActiveUser(ctx, tx, p); err != nil {
			return err
		}
		list, err := e.sessions.ListDevices(ctx, tx, p.UserID)
		if err != nil {
			return err
		}
		out = make([]DeviceInfo, 0, len(list))
		for _, s := range list {
			out = append(out, DeviceInfo{
				DeviceID:     s.DeviceID,
				Type:         s.DeviceType,
				Name:         s.DeviceName,
				AppVersion:   s.AppVersion,
				OSVersion:    s.OSVersion,
				LastUsedAt:   s.LastUsedAt,
				CreatedAt:    s.CreatedAt,
				Current:      s.ID == p.SessionID,
				HasPushToken: s.PushToken != nil,
			})
		}
		return nil
	})
	if err != nil {
		return nil, e.fail(ctx, "list_devices", err, "user_id", p.UserID)
	}
	return out, nil
}
