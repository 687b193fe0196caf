package phoneauth

import "time"

// SecurityReport summarizes the abuse and replay protections the engine was
// built with. It carries no secrets.
type SecurityReport struct {
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	TokensAudienceBound    bool
	ChallengeTTL           time.Duration
	MaxAttemptsPerCode     int
	CooldownActive         bool
	HourlyCapActive        bool
	VerifyThrottleActive   bool
	FederationEnabled      bool
	EmailDeliveryEnabled   bool
	AuditEnabled           bool
	DeletionGracePeriod    time.Duration
	RefreshReuseDetection  bool
	OneSessionPerDevice    bool
	LintHighSeverityIssues int
}

// SecurityReport summarizes the protections the running configuration
// enables.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config

	return SecurityReport{
		SigningAlgorithm:       cfg.JWT.SigningMethod,
		AccessTTL:              cfg.JWT.AccessTTL,
		RefreshTTL:             cfg.JWT.RefreshTTL,
		TokensAudienceBound:    cfg.JWT.Issuer != "" && cfg.JWT.Audience != "",
		ChallengeTTL:           cfg.OTP.ChallengeTTL,
		MaxAttemptsPerCode:     cfg.OTP.MaxAttempts,
		CooldownActive:         cfg.RateLimit.Cooldown > 0,
		HourlyCapActive:        cfg.RateLimit.HourlyMax > 0,
		VerifyThrottleActive:   cfg.RateLimit.VerifyMaxAttempts > 0,
		FederationEnabled:      cfg.Provider.FederationAudience != "" && e.providers.HasIdentityVerifier(),
		EmailDeliveryEnabled:   e.providers.HasEmailSender(),
		AuditEnabled:           cfg.Audit.Enabled,
		DeletionGracePeriod:    cfg.Account.DeletionGracePeriod,
		RefreshReuseDetection:  true,
		OneSessionPerDevice:    true,
		LintHighSeverityIssues: len(cfg.Lint().BySeverity(LintHigh)),
	}
}
