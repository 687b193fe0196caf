package internaldefs

import (
	"github.com/MrEthical07/phoneauth"
)

// Series is one labelled member of a family.
type Series struct {
	ID    phoneauth.MetricID
	Value string
}

// Family groups engine metrics under one exported name, distinguished by
// Label. A family with an empty Label has exactly one unlabelled series.
type Family struct {
	Name   string
	Help   string
	Label  string
	Series []Series
}

// AuditDroppedName is the counter of events lost by the dispatcher,
// labelled by event_type.
const AuditDroppedName = "phoneauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Audit events dropped under dispatcher backpressure, by event type."

// CounterFamilies lists every exported counter family in render order.
var CounterFamilies = []Family{
	{
		Name:  "phoneauth_otp_challenges_total",
		Help:  "Verification code requests by outcome.",
		Label: "outcome",
		Series: []Series{
			{ID: phoneauth.MetricOTPSent, Value: "sent"},
			{ID: phoneauth.MetricOTPSendFailure, Value: "send_failure"},
		},
	},
	{
		Name:  "phoneauth_otp_redemptions_total",
		Help:  "Verification code redemptions by outcome.",
		Label: "outcome",
		Series: []Series{
			{ID: phoneauth.MetricOTPVerifySuccess, Value: "success"},
			{ID: phoneauth.MetricOTPVerifyFailure, Value: "wrong_code"},
			{ID: phoneauth.MetricOTPAttemptsExceeded, Value: "attempts_exceeded"},
		},
	},
	{
		Name:   "phoneauth_rate_limited_total",
		Help:   "Code requests and redemptions denied by a rate limit.",
		Series: []Series{{ID: phoneauth.MetricOTPRateLimited}},
	},
	{
		Name:  "phoneauth_federated_logins_total",
		Help:  "Accepted identity assertions by result.",
		Label: "result",
		Series: []Series{
			{ID: phoneauth.MetricFederatedLogin, Value: "accepted"},
			{ID: phoneauth.MetricFederatedPhoneRequired, Value: "phone_required"},
		},
	},
	{
		Name:  "phoneauth_sessions_total",
		Help:  "Device session lifecycle events.",
		Label: "event",
		Series: []Series{
			{ID: phoneauth.MetricSessionCreated, Value: "issued"},
			{ID: phoneauth.MetricRefreshSuccess, Value: "refreshed"},
			{ID: phoneauth.MetricRefreshFailure, Value: "refresh_rejected"},
			{ID: phoneauth.MetricRefreshReuseDetected, Value: "refresh_reused"},
			{ID: phoneauth.MetricLogout, Value: "logout"},
			{ID: phoneauth.MetricLogoutAll, Value: "logout_all_others"},
		},
	},
	{
		Name:  "phoneauth_onboarding_steps_total",
		Help:  "Onboarding step submissions by result.",
		Label: "result",
		Series: []Series{
			{ID: phoneauth.MetricOnboardingAdvanced, Value: "advanced"},
			{ID: phoneauth.MetricOnboardingRejected, Value: "rejected"},
		},
	},
	{
		Name:  "phoneauth_contact_changes_total",
		Help:  "Email and phone change requests by stage.",
		Label: "stage",
		Series: []Series{
			{ID: phoneauth.MetricContactChangeRequested, Value: "requested"},
			{ID: phoneauth.MetricContactChangeConfirmed, Value: "confirmed"},
		},
	},
	{
		Name:  "phoneauth_accounts_total",
		Help:  "Account lifecycle events.",
		Label: "event",
		Series: []Series{
			{ID: phoneauth.MetricUserCreated, Value: "created"},
			{ID: phoneauth.MetricEmailVerified, Value: "email_verified"},
			{ID: phoneauth.MetricAccountDeletionScheduled, Value: "deletion_scheduled"},
			{ID: phoneauth.MetricAccountReactivated, Value: "reactivated"},
		},
	},
	{
		Name:   "phoneauth_provider_unavailable_total",
		Help:   "Provider failures surfaced to callers.",
		Series: []Series{{ID: phoneauth.MetricProviderUnavailable}},
	},
}

// HistogramFamilies lists every exported latency histogram family.
var HistogramFamilies = []Family{
	{
		Name:  "phoneauth_challenge_latency_seconds",
		Help:  "Challenge latency by phase.",
		Label: "phase",
		Series: []Series{
			{ID: phoneauth.MetricSendLatency, Value: "send"},
			{ID: phoneauth.MetricRedeemLatency, Value: "redeem"},
		},
	},
}

// HistogramBounds are the Prometheus le labels of the fixed buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
