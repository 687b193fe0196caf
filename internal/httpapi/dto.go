package httpapi

import (
	"time"

	"github.com/MrEthical07/phoneauth"
)

type deviceRequest struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	AppVersion string `json:"app_version"`
	OSVersion  string `json:"os_version"`
}

func (d deviceRequest) device() phoneauth.Device {
	return phoneauth.Device{ID: d.ID, Type: d.Type, Name: d.Name, AppVersion: d.AppVersion, OSVersion: d.OSVersion}
}

type sendCodeRequest struct {
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
}

type verifyCodeRequest struct {
	CountryCode string        `json:"country_code"`
	Phone       string        `json:"phone"`
	Code        string        `json:"code"`
	Device      deviceRequest `json:"device"`
}

type federatedLoginRequest struct {
	IDToken string        `json:"id_token"`
	Device  deviceRequest `json:"device"`
}

type federatedPhoneCodeRequest struct {
	PhoneVerificationToken string `json:"phone_verification_token"`
	CountryCode            string `json:"country_code"`
	Phone                  string `json:"phone"`
}

type federatedPhoneVerifyRequest struct {
	PhoneVerificationToken string        `json:"phone_verification_token"`
	CountryCode            string        `json:"country_code"`
	Phone                  string        `json:"phone"`
	Code                   string        `json:"code"`
	Device                 deviceRequest `json:"device"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	TargetDeviceID string `json:"target_device_id"`
	AllOthers      bool   `json:"all_others"`
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

type profileRequest struct {
	DisplayName string `json:"display_name"`
}

type interestsRequest struct {
	Interests []string `json:"interests"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type phoneRequest struct {
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type sendCodeResponse struct {
	ChallengeID       string    `json:"challenge_id"`
	ExpiresAt         time.Time `json:"expires_at"`
	RetryAfterSeconds int       `json:"retry_after_seconds"`
}

func newSendCodeResponse(r *phoneauth.SendCodeResult) sendCodeResponse {
	return sendCodeResponse{
		ChallengeID:       r.ChallengeID,
		ExpiresAt:         r.ExpiresAt,
		RetryAfterSeconds: int(r.RetryAfter / time.Second),
	}
}

type tokenResponse struct {
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func newTokenResponse(p *phoneauth.TokenPair) *tokenResponse {
	if p == nil {
		return nil
	}
	return &tokenResponse{
		SessionID:        p.SessionID,
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

type userResponse struct {
	ID                   string     `json:"id"`
	CountryCode          string     `json:"country_code,omitempty"`
	Phone                string     `json:"phone,omitempty"`
	Email                string     `json:"email,omitempty"`
	PhoneVerified        bool       `json:"phone_verified"`
	EmailVerified        bool       `json:"email_verified"`
	Federated            bool       `json:"federated"`
	OnboardingStep       string     `json:"onboarding_step"`
	Role                 string     `json:"role"`
	DisplayName          string     `json:"display_name,omitempty"`
	Interests            []string   `json:"interests,omitempty"`
	DeletionScheduledFor *time.Time `json:"deletion_scheduled_for,omitempty"`
}

func newUserResponse(u *phoneauth.UserInfo) userResponse {
	return userResponse{
		ID:                   u.ID,
		CountryCode:          u.CountryCode,
		Phone:                u.Phone,
		Email:                u.Email,
		PhoneVerified:        u.PhoneVerified,
		EmailVerified:        u.EmailVerified,
		Federated:            u.Federated,
		OnboardingStep:       u.OnboardingStep.String(),
		Role:                 string(u.Role),
		DisplayName:          u.DisplayName,
		Interests:            u.Interests,
		DeletionScheduledFor: u.DeletionScheduledFor,
	}
}

type authResponse struct {
	User      userResponse   `json:"user"`
	Tokens    *tokenResponse `json:"tokens,omitempty"`
	IsNewUser bool           `json:"is_new_user"`

	RequiresPhoneVerification  bool       `json:"requires_phone_verification"`
	PhoneVerificationToken     string     `json:"phone_verification_token,omitempty"`
	PhoneVerificationExpiresAt *time.Time `json:"phone_verification_expires_at,omitempty"`
}

func newAuthResponse(r *phoneauth.AuthResult) authResponse {
	out := authResponse{
		User:                      newUserResponse(&r.User),
		Tokens:                    newTokenResponse(r.Tokens),
		IsNewUser:                 r.IsNewUser,
		RequiresPhoneVerification: r.RequiresPhoneVerification,
		PhoneVerificationToken:    r.PhoneVerificationToken,
	}
	if r.RequiresPhoneVerification {
		exp := r.PhoneVerificationExpiresAt
		out.PhoneVerificationExpiresAt = &exp
	}
	return out
}

type deviceResponse struct {
	DeviceID     string    `json:"device_id"`
	Type         string    `json:"type,omitempty"`
	Name         string    `json:"name,omitempty"`
	AppVersion   string    `json:"app_version,omitempty"`
	OSVersion    string    `json:"os_version,omitempty"`
	LastUsedAt   time.Time `json:"last_used_at"`
	CreatedAt    time.Time `json:"created_at"`
	Current      bool      `json:"current"`
	HasPushToken bool      `json:"has_push_token"`
}

type healthResponse struct {
	Status            string `json:"status"`
	DatabaseAvailable bool   `json:"database_available"`
	RedisAvailable    bool   `json:"redis_available"`
}
