package store

import (
	"time"

	"github.com/MrEthical07/phoneauth/onboarding"
)

// User is the identity anchor.
type User struct {
	ID                   string          `gorm:"type:uuid;primaryKey"`
	CountryCode          *string         `gorm:"type:varchar(8);uniqueIndex:ux_users_phone"`
	Phone                *string         `gorm:"type:varchar(20);uniqueIndex:ux_users_phone"`
	Email                *string         `gorm:"type:text;uniqueIndex:ux_users_email"`
	ExternalID           *string         `gorm:"type:text;uniqueIndex:ux_users_external_id"`
	PhoneVerified        bool            `gorm:"not null"`
	EmailVerified        bool            `gorm:"not null"`
	IsActive             bool            `gorm:"not null"`
	IsSuspended          bool            `gorm:"not null"`
	DeletedAt            *time.Time      `gorm:"index"`
	DeletionScheduledFor *time.Time      `gorm:"index"`
	OnboardingStep       onboarding.Step `gorm:"type:varchar(32);not null"`
	Role                 string          `gorm:"type:varchar(16);not null"`
	DisplayName          *string         `gorm:"type:text"`
	Interests            []string        `gorm:"type:jsonb;serializer:json"`
	PendingEmail         *string         `gorm:"type:text"`
	PendingCountryCode   *string         `gorm:"type:varchar(8)"`
	PendingPhone         *string         `gorm:"type:varchar(20)"`
	CreatedAt            time.Time       `gorm:"not null"`
	UpdatedAt            time.Time       `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Federated reports whether the user carries an external identity.
func (u *User) Federated() bool {
	return u.ExternalID != nil && *u.ExternalID != ""
}

// HasPhone reports whether a phone identity is attached, verified or not.
func (u *User) HasPhone() bool {
	return u.Phone != nil && *u.Phone != "" && u.CountryCode != nil
}

// ChallengeType distinguishes why a one-time code was issued.
type ChallengeType string

const (
	ChallengePhoneAuth             ChallengeType = "phone_auth"
	ChallengeFederationPhoneVerify ChallengeType = "federation_phone_verify"
	ChallengeEmailVerify           ChallengeType = "email_verify"
	ChallengePhoneChange           ChallengeType = "phone_change"
)

// Valid reports whether t is a known challenge type.
func (t ChallengeType) Valid() bool {
	switch t {
	case ChallengePhoneAuth, ChallengeFederationPhoneVerify, ChallengeEmailVerify, ChallengePhoneChange:
		return true
	}
	return false
}

// Challenge is a single one-time-code verification window.
type Challenge struct {
	ID             string            `gorm:"type:uuid;primaryKey"`
	Type           ChallengeType     `gorm:"type:varchar(32);not null;index:ix_challenge_target,priority:1"`
	CountryCode    string            `gorm:"type:varchar(8);index:ix_challenge_target,priority:2"`
	Phone          string            `gorm:"type:varchar(20);index:ix_challenge_target,priority:3"`
	UserID         *string           `gorm:"type:uuid;index"`
	Email          string            `gorm:"type:text;index:ix_challenge_target,priority:4"`
	ProviderRef    string            `gorm:"type:text"`
	Verified       bool              `gorm:"not null"`
	VerifiedAt     *time.Time
	Attempts       int               `gorm:"not null"`
	MaxAttempts    int               `gorm:"not null"`
	ExpiresAt      time.Time         `gorm:"not null"`
	ProviderStatus string            `gorm:"type:varchar(32)"`
	ProviderMeta   map[string]string `gorm:"type:jsonb;serializer:json"`
	ClientIP       string            `gorm:"type:varchar(64)"`
	UserAgent      string            `gorm:"type:text"`
	CreatedAt      time.Time         `gorm:"not null;index"`
}

func (Challenge) TableName() string { return "otp_challenges" }

// Target returns the target the challenge was issued for.
func (c *Challenge) Target() Target {
	t := Target{CountryCode: c.CountryCode, Phone: c.Phone, Email: c.Email}
	if c.UserID != nil {
		t.UserID = *c.UserID
	}
	return t
}

// Expired reports whether the challenge window closed at or before now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Session is one authenticated device binding.
type Session struct {
	ID               string    `gorm:"type:uuid;primaryKey"`
	UserID           string    `gorm:"type:uuid;not null;uniqueIndex:ux_sessions_user_device,priority:1"`
	DeviceID         string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_sessions_user_device,priority:2"`
	DeviceType       string    `gorm:"type:varchar(32)"`
	DeviceName       string    `gorm:"type:text"`
	AppVersion       string    `gorm:"type:varchar(32)"`
	OSVersion        string    `gorm:"type:varchar(32)"`
	AccessDigest     string    `gorm:"type:char(64);not null;index"`
	RefreshDigest    string    `gorm:"type:char(64);not null;index"`
	AccessExpiresAt  time.Time `gorm:"not null"`
	RefreshExpiresAt time.Time `gorm:"not null"`
	PushToken        *string   `gorm:"type:text"`
	IsActive         bool      `gorm:"not null"`
	LastUsedAt       time.Time `gorm:"not null"`
	IPAddress        string    `gorm:"type:varchar(64)"`
	UserAgent        string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (Session) TableName() string { return "auth_sessions" }

// Target identifies who a challenge is addressed to: a phone number, or a
// user's email address.
type Target struct {
	CountryCode string
	Phone       string
	UserID      string
	Email       string
}

// IsPhone reports whether the target is a phone number.
func (t Target) IsPhone() bool {
	return t.Phone != ""
}

// E164 returns the phone target in +<cc><number> form.
func (t Target) E164() string {
	return "+" + t.CountryCode + t.Phone
}

// Key returns a stable identifier for rate limiting and logging.
func (t Target) Key() string {
	if t.IsPhone() {
		return "phone:" + t.E164()
	}
	return "email:" + t.UserID + ":" + t.Email
}
