package phoneauth

import (
	"time"

	internalaudit "github.com/MrEthical07/phoneauth/internal/audit"
	"github.com/MrEthical07/phoneauth/internal/store"
	"github.com/MrEthical07/phoneauth/onboarding"
)

// Role is the authorization role carried by a user and its access tokens.
type Role string

const (
	RoleStandard  Role = "standard"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStandard, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// Device identifies the client a session is bound to. ID is chosen by the
// client and must be stable across app restarts.
type Device struct {
	ID         string
	Type       string
	Name       string
	AppVersion string
	OSVersion  string
}

// SendCodeRequest asks for a sign-in code to a phone number.
type SendCodeRequest struct {
	CountryCode string
	Phone       string
}

// SendCodeResult reports the challenge created by a code request.
type SendCodeResult struct {
	ChallengeID string
	ExpiresAt   time.Time
	// RetryAfter is the earliest time the client may ask for another code.
	RetryAfter time.Duration
}

// VerifyCodeRequest redeems a sign-in code for the given device.
type VerifyCodeRequest struct {
	CountryCode string
	Phone       string
	Code        string
	Device      Device
}

// TokenPair is a freshly minted access and refresh credential. Raw tokens
// are returned once and never stored.
type TokenPair struct {
	SessionID        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// UserInfo is the caller-visible projection of an account.
type UserInfo struct {
	ID             string
	CountryCode    string
	Phone          string
	Email          string
	PhoneVerified  bool
	EmailVerified  bool
	Federated      bool
	OnboardingStep onboarding.Step
	Role           Role
	DisplayName    string
	Interests      []string
	// DeletionScheduledFor is set while a deletion is pending.
	DeletionScheduledFor *time.Time
}

// AuthResult is returned by every sign-in operation. Exactly one of Tokens
// and PhoneVerificationToken is set.
type AuthResult struct {
	User      UserInfo
	Tokens    *TokenPair
	IsNewUser bool

	RequiresPhoneVerification  bool
	PhoneVerificationToken     string
	PhoneVerificationExpiresAt time.Time
}

// FederatedLoginRequest carries a third-party identity assertion.
type FederatedLoginRequest struct {
	IDToken string
	Device  Device
}

// FederatedPhoneCodeRequest asks for a code to the phone a federated
// account wants to attach.
type FederatedPhoneCodeRequest struct {
	PhoneVerificationToken string
	CountryCode            string
	Phone                  string
}

// FederatedPhoneVerifyRequest redeems the code sent for
// [FederatedPhoneCodeRequest] and, on success, opens a session.
type FederatedPhoneVerifyRequest struct {
	PhoneVerificationToken string
	CountryCode            string
	Phone                  string
	Code                   string
	Device                 Device
}

// Principal is the authenticated caller of a session-scoped operation.
// Middleware builds it from [SessionInfo].
type Principal struct {
	UserID    string
	SessionID string
	DeviceID  string
	Role      Role
}

// LogoutRequest selects which sessions of the caller to end. The zero value
// ends the current device's session.
type LogoutRequest struct {
	TargetDeviceID string
	AllOthers      bool
}

// SessionInfo describes the session behind a valid access token.
type SessionInfo struct {
	UserID          string
	SessionID       string
	DeviceID        string
	Role            Role
	OnboardingStep  onboarding.Step
	AccessExpiresAt time.Time
}

// Principal returns the caller identity carried by s.
func (s *SessionInfo) Principal() Principal {
	return Principal{UserID: s.UserID, SessionID: s.SessionID, DeviceID: s.DeviceID, Role: s.Role}
}

// DeviceInfo is one active session as listed to its owner.
type DeviceInfo struct {
	DeviceID     string
	Type         string
	Name         string
	AppVersion   string
	OSVersion    string
	LastUsedAt   time.Time
	CreatedAt    time.Time
	Current      bool
	HasPushToken bool
}

// ProfileInput is saved by [Engine.SaveProfile].
type ProfileInput struct {
	DisplayName string
}

// ContactChangeResult reports the challenge sent for a pending email or
// phone change.
type ContactChangeResult = SendCodeResult

// AuditEvent is one engine event as delivered to an [EventSink].
type AuditEvent = internalaudit.Event

// EventSink receives engine events. Implementations must be safe for
// concurrent use.
type EventSink = internalaudit.Sink

// NoOpSink drops every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers events on a channel for in-process consumers.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NATSSink publishes events to a NATS subject.
type NATSSink = internalaudit.NATSSink

var (
	NewChannelSink    = internalaudit.NewChannelSink
	NewJSONWriterSink = internalaudit.NewJSONWriterSink
	NewNATSSink       = internalaudit.NewNATSSink
)

func userInfo(u *store.User) UserInfo {
	info := UserInfo{
		ID:                   u.ID,
		PhoneVerified:        u.PhoneVerified,
		EmailVerified:        u.EmailVerified,
		Federated:            u.Federated(),
		OnboardingStep:       effectiveStep(u),
		Role:                 Role(u.Role),
		DeletionScheduledFor: u.DeletionScheduledFor,
	}
	if u.CountryCode != nil {
		info.CountryCode = *u.CountryCode
	}
	if u.Phone != nil {
		info.Phone = *u.Phone
	}
	if u.Email != nil {
		info.Email = *u.Email
	}
	if u.DisplayName != nil {
		info.DisplayName = *u.DisplayName
	}
	if len(u.Interests) > 0 {
		info.Interests = append([]string(nil), u.Interests...)
	}
	return info
}

func effectiveStep(u *store.User) onboarding.Step {
	return onboarding.Effective(facts(u))
}

func facts(u *store.User) onboarding.Facts {
	return onboarding.Facts{Stored: u.OnboardingStep, Federated: u.Federated(), PhoneVerified: u.PhoneVerified}
}
