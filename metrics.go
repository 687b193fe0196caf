package phoneauth

import (
	"time"

	internalmetrics "github.com/MrEthical07/phoneauth/internal/metrics"
)

// MetricID indexes one engine counter or histogram.
type MetricID = internalmetrics.ID

const (
	// MetricOTPSent counts challenges delivered to a provider.
	MetricOTPSent MetricID = iota
	// MetricOTPSendFailure counts challenge creations that failed after validation.
	MetricOTPSendFailure
	// MetricOTPRateLimited counts send and redeem requests denied by a limiter.
	MetricOTPRateLimited
	// MetricOTPVerifySuccess counts successful code redemptions.
	MetricOTPVerifySuccess
	// MetricOTPVerifyFailure counts wrong codes.
	MetricOTPVerifyFailure
	// MetricOTPAttemptsExceeded counts redemptions refused for an exhausted challenge.
	MetricOTPAttemptsExceeded
	// MetricUserCreated counts new accounts.
	MetricUserCreated
	// MetricFederatedLogin counts successful identity assertions.
	MetricFederatedLogin
	// MetricFederatedPhoneRequired counts federated logins held back for phone verification.
	MetricFederatedPhoneRequired
	// MetricSessionCreated counts issued sessions.
	MetricSessionCreated
	// MetricRefreshSuccess counts rotated refresh tokens.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refresh requests rejected for any reason.
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts presentations of already rotated refresh tokens.
	MetricRefreshReuseDetected
	// MetricLogout counts single-device logouts.
	MetricLogout
	// MetricLogoutAll counts logouts of every other device.
	MetricLogoutAll
	// MetricProviderUnavailable counts provider transport failures surfaced to callers.
	MetricProviderUnavailable
	// MetricOnboardingAdvanced counts accepted onboarding steps.
	MetricOnboardingAdvanced
	// MetricOnboardingRejected counts onboarding steps refused as out of order.
	MetricOnboardingRejected
	// MetricContactChangeRequested counts email and phone change requests.
	MetricContactChangeRequested
	// MetricContactChangeConfirmed counts applied email and phone changes.
	MetricContactChangeConfirmed
	// MetricEmailVerified counts confirmed email addresses.
	MetricEmailVerified
	// MetricAccountDeletionScheduled counts scheduled deletions.
	MetricAccountDeletionScheduled
	// MetricAccountReactivated counts sign-ins that cancelled a scheduled deletion.
	MetricAccountReactivated
	// MetricSendLatency records challenge creation latency.
	MetricSendLatency
	// MetricRedeemLatency records end-to-end code redemption latency.
	MetricRedeemLatency
	metricIDCount
)

// Metrics is the engine's lock-free counter registry.
type Metrics = internalmetrics.Registry

// MetricsSnapshot is a point-in-time copy of engine counters.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics allocates a registry sized for every engine metric.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	}, int(metricIDCount), MetricSendLatency, MetricRedeemLatency)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}
