package store

import (
	"context"
	"time"
)

// Store runs transactions against a backend.
type Store interface {
	// WithinTx runs fn in a transaction. A non-nil error from fn rolls back
	// every mutation made through tx; nil commits them.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	UserByID(ctx context.Context, id string) (*User, error)
	UserByPhone(ctx context.Context, countryCode, phone string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByExternalID(ctx context.Context, externalID string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	SaveUser(ctx context.Context, u *User) error

	CreateChallenge(ctx context.Context, c *Challenge) error
	// LockLatestChallenge selects the most recently created challenge for
	// (target, typ) and locks it for the rest of the transaction. Verified
	// and expired rows are returned; callers decide. Older rows are never
	// considered.
	LockLatestChallenge(ctx context.Context, target Target, typ ChallengeType) (*Challenge, error)
	SaveChallenge(ctx context.Context, c *Challenge) error

	CreateSession(ctx context.Context, s *Session) error
	DeleteSessionByDevice(ctx context.Context, userID, deviceID string) error
	LockSessionByRefreshDigest(ctx context.Context, digest string) (*Session, error)
	SessionByAccessDigest(ctx context.Context, digest string) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	ListSessions(ctx context.Context, userID string, activeOnly bool) ([]Session, error)
	// DeactivateSessions flips is_active off for the active sessions of
	// filter.UserID that match the filter and returns how many changed.
	DeactivateSessions(ctx context.Context, filter SessionFilter, at time.Time) (int, error)
}

// SessionFilter selects active sessions of one user. DeviceID restricts to a
// single device; ExceptDeviceID excludes one. Both empty matches every
// active session of the user.
type SessionFilter struct {
	UserID         string
	DeviceID       string
	ExceptDeviceID string
}
