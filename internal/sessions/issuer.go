package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/phoneauth/internal"
	"github.com/MrEthical07/phoneauth/internal/store"
	"github.com/MrEthical07/phoneauth/jwt"
)

var (
	// ErrInvalidToken covers malformed, expired, or wrongly scoped tokens and
	// tokens whose session row is gone.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrRefreshReuse is returned when a well-formed refresh token matches no
	// session row, which happens when it was already rotated away.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrSessionRevoked is returned for a refresh token whose session was
	// deactivated.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrUserInactive is returned when the owning account can no longer hold
	// sessions.
	ErrUserInactive = errors.New("user inactive")
	// ErrNothingToRevoke is returned when a revocation matched no active row.
	ErrNothingToRevoke = errors.New("nothing to revoke")
	// ErrInvalidDevice is returned when a device id is missing or too long.
	ErrInvalidDevice = errors.New("invalid device")
	// ErrInvalidRevokeRequest is returned when both a target device and
	// all-others are requested.
	ErrInvalidRevokeRequest = errors.New("invalid revoke request")
)

const maxDeviceIDLen = 128

// Device describes the client a session is bound to.
type Device struct {
	ID         string
	Type       string
	Name       string
	AppVersion string
	OSVersion  string
}

// Pair is a freshly minted credential pair.
type Pair struct {
	SessionID        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RefreshResult carries the rotated pair, or whatever identifiers could be
// recovered from the presented token when rotation failed.
type RefreshResult struct {
	Pair      Pair
	Session   *store.Session
	User      *store.User
	UserID    string
	SessionID string
	DeviceID  string
}

// RevokeRequest selects which sessions Revoke deactivates. Zero value
// revokes the current device.
type RevokeRequest struct {
	TargetDeviceID string
	AllOthers      bool
}

// Issuer implements the session lifecycle on top of a jwt.Manager.
type Issuer struct {
	tokens *jwt.Manager
	now    func() time.Time
}

func New(tokens *jwt.Manager) *Issuer {
	return &Issuer{tokens: tokens, now: time.Now}
}

// UserCanHoldSession reports whether u may own an active session.
func UserCanHoldSession(u *store.User) bool {
	return u != nil && u.IsActive && !u.IsSuspended && u.DeletedAt == nil
}

// Issue creates the session for (user, device), replacing any existing row
// for that pair.
func (i *Issuer) Issue(ctx context.Context, tx store.Tx, user *store.User, d Device, ip, userAgent string) (Pair, *store.Session, error) {
	if d.ID == "" || len(d.ID) > maxDeviceIDLen {
		return Pair{}, nil, ErrInvalidDevice
	}
	if !UserCanHoldSession(user) {
		return Pair{}, nil, ErrUserInactive
	}

	if err := tx.DeleteSessionByDevice(ctx, user.ID, d.ID); err != nil {
		return Pair{}, nil, err
	}

	sessionID := uuid.NewString()
	pair, err := i.mint(jwt.Subject{UserID: user.ID, SessionID: sessionID, DeviceID: d.ID, Role: user.Role})
	if err != nil {
		return Pair{}, nil, err
	}

	now := i.now()
	sess := &store.Session{
		ID:               sessionID,
		UserID:           user.ID,
		DeviceID:         d.ID,
		DeviceType:       d.Type,
		DeviceName:       d.Name,
		AppVersion:       d.AppVersion,
		OSVersion:        d.OSVersion,
		AccessDigest:     internal.Digest(pair.AccessToken),
		RefreshDigest:    internal.Digest(pair.RefreshToken),
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		IsActive:         true,
		LastUsedAt:       now,
		IPAddress:        ip,
		UserAgent:        userAgent,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.CreateSession(ctx, sess); err != nil {
		return Pair{}, nil, err
	}
	return pair, sess, nil
}

// Refresh rotates both credentials of the session the refresh token belongs
// to.
func (i *Issuer) Refresh(ctx context.Context, tx store.Tx, refreshToken string) (RefreshResult, error) {
	claims, err := i.tokens.Parse(refreshToken, jwt.ScopeRefresh)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	res := RefreshResult{UserID: claims.UID, SessionID: claims.SID, DeviceID: claims.DID}

	sess, err := tx.LockSessionByRefreshDigest(ctx, internal.Digest(refreshToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return res, ErrRefreshReuse
		}
		return res, err
	}
	if !sess.IsActive {
		return res, ErrSessionRevoked
	}
	now := i.now()
	if !now.Before(sess.RefreshExpiresAt) {
		return res, ErrInvalidToken
	}

	user, err := tx.UserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return res, ErrUserInactive
		}
		return res, err
	}
	if !UserCanHoldSession(user) {
		return res, ErrUserInactive
	}

	pair, err := i.mint(jwt.Subject{UserID: user.ID, SessionID: sess.ID, DeviceID: sess.DeviceID, Role: user.Role})
	if err != nil {
		return res, err
	}

	sess.AccessDigest = internal.Digest(pair.AccessToken)
	sess.RefreshDigest = internal.Digest(pair.RefreshToken)
	sess.AccessExpiresAt = pair.AccessExpiresAt
	sess.RefreshExpiresAt = pair.RefreshExpiresAt
	sess.LastUsedAt = now
	sess.UpdatedAt = now
	if err := tx.SaveSession(ctx, sess); err != nil {
		return res, err
	}

	res.Pair = pair
	res.Session = sess
	res.User = user
	return res, nil
}

// Revoke deactivates sessions of userID. Ownership is enforced by the
// query itself, never inferred from the current session.
func (i *Issuer) Revoke(ctx context.Context, tx store.Tx, userID, currentDeviceID string, req RevokeRequest) (int, error) {
	if userID == "" {
		return 0, ErrNothingToRevoke
	}
	filter := store.SessionFilter{UserID: userID}
	switch {
	case req.TargetDeviceID != "" && req.AllOthers:
		return 0, ErrInvalidRevokeRequest
	case req.TargetDeviceID != "":
		filter.DeviceID = req.TargetDeviceID
	case req.AllOthers:
		if currentDeviceID == "" {
			return 0, ErrInvalidRevokeRequest
		}
		filter.ExceptDeviceID = currentDeviceID
	default:
		if currentDeviceID == "" {
			return 0, ErrInvalidRevokeRequest
		}
		filter.DeviceID = currentDeviceID
	}

	n, err := tx.DeactivateSessions(ctx, filter, i.now())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNothingToRevoke
	}
	return n, nil
}

// RevokeAllForUser deactivates every active session of userID. Zero rows is
// not an error.
func (i *Issuer) RevokeAllForUser(ctx context.Context, tx store.Tx, userID string) (int, error) {
	return tx.DeactivateSessions(ctx, store.SessionFilter{UserID: userID}, i.now())
}

// Lookup resolves an access token to its active, unexpired session.
func (i *Issuer) Lookup(ctx context.Context, tx store.Tx, accessToken string) (*store.Session, *jwt.Claims, error) {
	claims, err := i.tokens.Parse(accessToken, jwt.ScopeAccess)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sess, err := tx.SessionByAccessDigest(ctx, internal.Digest(accessToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	if !sess.IsActive || sess.ID != claims.SID || sess.UserID != claims.UID || !i.now().Before(sess.AccessExpiresAt) {
		return nil, nil, ErrInvalidToken
	}
	return sess, claims, nil
}

// Touch records that the session was used.
func (i *Issuer) Touch(ctx context.Context, tx store.Tx, sessionID string) error {
	return tx.TouchSession(ctx, sessionID, i.now())
}

// UpdatePushToken sets or clears the push-delivery token of sess.
func (i *Issuer) UpdatePushToken(ctx context.Context, tx store.Tx, sess *store.Session, token string) error {
	if token == "" {
		sess.PushToken = nil
	} else {
		sess.PushToken = &token
	}
	sess.UpdatedAt = i.now()
	return tx.SaveSession(ctx, sess)
}

// ListDevices returns the active sessions of userID, most recently used
// first.
func (i *Issuer) ListDevices(ctx context.Context, tx store.Tx, userID string) ([]store.Session, error) {
	return tx.ListSessions(ctx, userID, true)
}

func (i *Issuer) mint(s jwt.Subject) (Pair, error) {
	access, err := i.tokens.CreateAccess(s)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.tokens.CreateRefresh(s)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		SessionID:        s.SessionID,
		AccessToken:      access.Value,
		RefreshToken:     refresh.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}
