package phoneauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventOTPSent                  = "otp_sent"
	auditEventOTPSendFailure           = "otp_send_failure"
	auditEventOTPVerifySuccess         = "otp_verify_success"
	auditEventOTPVerifyFailure         = "otp_verify_failure"
	auditEventUserCreated              = "user_created"
	auditEventAccountReactivated       = "account_reactivated"
	auditEventFederatedLogin           = "federated_login"
	auditEventFederatedLoginFailure    = "federated_login_failure"
	auditEventFederatedPhoneRequired   = "federated_phone_required"
	auditEventSessionIssued            = "session_issued"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventRefreshReuseDetected     = "refresh_reuse_detected"
	auditEventLogoutSession            = "logout_session"
	auditEventLogoutAll                = "logout_all"
	auditEventOnboardingAdvanced       = "onboarding_advanced"
	auditEventOnboardingRejected       = "onboarding_rejected"
	auditEventContactChangeRequested   = "contact_change_requested"
	auditEventContactChangeConfirmed   = "contact_change_confirmed"
	auditEventEmailVerified            = "email_verified"
	auditEventAccountDeletionScheduled = "account_deletion_scheduled"
	auditEventRateLimitTriggered       = "rate_limit_triggered"
)

// retainedAuditEvents wait for buffer space instead of being dropped.
var retainedAuditEvents = []string{
	auditEventRefreshReuseDetected,
	auditEventAccountDeletionScheduled,
	auditEventContactChangeConfirmed,
}

// AuditErrorCode is the stable error label carried by failed events.
type AuditErrorCode string

const (
	auditErrUnauthorized     AuditErrorCode = "unauthorized"
	auditErrInvalidInput     AuditErrorCode = "invalid_input"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrRefreshReuse     AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken     AuditErrorCode = "invalid_token"
	auditErrInvalidCode      AuditErrorCode = "invalid_code"
	auditErrChallengeMissing AuditErrorCode = "no_active_challenge"
	auditErrChallengeExpired AuditErrorCode = "challenge_expired"
	auditErrAttemptsExceeded AuditErrorCode = "attempts_exceeded"
	auditErrAccountSuspended AuditErrorCode = "account_suspended"
	auditErrAccountInactive  AuditErrorCode = "account_inactive"
	auditErrWrongFlow        AuditErrorCode = "wrong_flow"
	auditErrDuplicate        AuditErrorCode = "duplicate"
	auditErrOnboardingState  AuditErrorCode = "onboarding_state"
	auditErrInvalidAssertion AuditErrorCode = "invalid_assertion"
	auditErrProviderRejected AuditErrorCode = "provider_rejected"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

type auditSubject struct {
	userID    string
	sessionID string
	deviceID  string
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject auditSubject,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    subject.userID,
		SessionID: subject.sessionID,
		DeviceID:  subject.deviceID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, err error) {
	e.metricInc(MetricOTPRateLimited)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, auditSubject{}, err, func() map[string]string {
		return map[string]string{
			"scope":       scope,
			"retry_after": RetryAfter(err).String(),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidPhone),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrMalformedCode),
		errors.Is(err, ErrInvalidDevice),
		errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidInput
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrSessionRevoked):
		return auditErrInvalidToken
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrNoActiveChallenge):
		return auditErrChallengeMissing
	case errors.Is(err, ErrChallengeExpired):
		return auditErrChallengeExpired
	case errors.Is(err, ErrAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrAccountSuspended):
		return auditErrAccountSuspended
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrWrongFlow):
		return auditErrWrongFlow
	case errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrPhoneTaken),
		errors.Is(err, ErrConflict):
		return auditErrDuplicate
	case errors.Is(err, ErrOnboardingIncomplete),
		errors.Is(err, ErrOnboardingOutOfOrder),
		errors.Is(err, ErrOnboardingRegression),
		errors.Is(err, ErrPhoneVerificationRequired),
		errors.Is(err, ErrNoPendingChange):
		return auditErrOnboardingState
	case errors.Is(err, ErrInvalidAssertion):
		return auditErrInvalidAssertion
	case errors.Is(err, ErrProviderRejected):
		return auditErrProviderRejected
	case errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrRateLimiterUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
