package phoneauth

import (
	"context"
	"testing"

	"github.com/MrEthical07/phoneauth/onboarding"
)

func TestOnboardingHappyPath(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()
	_, p := h.signIn(t, testPhone, "device-a")

	info, err := h.engine.SaveProfile(ctx, p, ProfileInput{DisplayName: "  Ada  "})
	if err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}
	if info.DisplayName != "Ada" || info.OnboardingStep != onboarding.StepInterestsSelection {
		t.Fatalf("unexpected profile result %+v", info)
	}

	info, err = h.engine.SaveInterests(ctx, p, []string{"Go", " go ", "hiking", ""})
	if err != nil {
		t.Fatalf("SaveInterests failed: %v", err)
	}
	if len(info.Interests) != 2 || info.Interests[0] != "Go" || info.Interests[1] != "hiking" {
		t.Fatalf("interests not normalized: %v", info.Interests)
	}
	if info.OnboardingStep != onboarding.StepCommunityRecommendations {
		t.Fatalf("expected COMMUNITY_RECOMMENDATIONS, got %s", info.OnboardingStep)
	}

	info, err = h.engine.AcknowledgeRecommendations(ctx, p)
	if err != nil {
		t.Fatalf("AcknowledgeRecommendations failed: %v", err)
	}
	if info.OnboardingStep != onboarding.StepCompleted {
		t.Fatalf("expected COMPLETED, got %s", info.OnboardingStep)
	}

	if got := h.engine.MetricsSnapshot().Counters[MetricOnboardingAdvanced]; got != 3 {
		t.Fatalf("expected 3 advanced steps, got %d", got)
	}
}

func TestOnboardingOutOfOrder(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()
	_, p := h.signIn(t, testPhone, "device-a")

	_, err := h.engine.SaveInterests(ctx, p, []string{"go"})
	requireKind(t, err, KindStateViolation, ErrOnboardingOutOfOrder)
	_, err = h.engine.AcknowledgeRecommendations(ctx, p)
	requireKind(t, err, KindStateViolation, ErrOnboardingOutOfOrder)

	info, err := h.engine.Profile(ctx, p)
	if err != nil || info.OnboardingStep != onboarding.StepProfileSetup {
		t.Fatalf("rejected steps changed state: %+v, %v", info, err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricOnboardingRejected]; got != 2 {
		t.Fatalf("expected 2 rejected steps, got %d", got)
	}
}

func TestOnboardingNeverRegresses(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()
	_, p := h.signIn(t, testPhone, "device-a")
	h.completeOnboarding(t, p)

	info, err := h.engine.SaveProfile(ctx, p, ProfileInput{DisplayName: "Grace"})
	if err != nil {
		t.Fatalf("profile edit after completion failed: %v", err)
	}
	if info.OnboardingStep != onboarding.StepCompleted || info.DisplayName != "Grace" {
		t.Fatalf("profile edit moved onboarding: %+v", info)
	}

	// signing in again replays the phone event without moving the account back
	res, _ := h.signIn(t, testPhone, "device-b")
	if res.User.OnboardingStep != onboarding.StepCompleted {
		t.Fatalf("sign-in regressed onboarding to %s", res.User.OnboardingStep)
	}
}

func TestOnboardingInputValidation(t *testing.T) {
	h := newEngineHarness(t, func(c *Config) { c.Onboarding.MaxInterests = 2 })
	ctx := context.Background()
	_, p := h.signIn(t, testPhone, "device-a")

	_, err := h.engine.SaveProfile(ctx, p, ProfileInput{DisplayName: "   "})
	requireKind(t, err, KindInputInvalid, ErrInvalidRequest)

	if _, err := h.engine.SaveProfile(ctx, p, ProfileInput{DisplayName: "Ada"}); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}
	_, err = h.engine.SaveInterests(ctx, p, []string{"a", "b", "c"})
	requireKind(t, err, KindInputInvalid, ErrInvalidRequest)
	_, err = h.engine.SaveInterests(ctx, p, nil)
	requireKind(t, err, KindInputInvalid, ErrInvalidRequest)
}

func TestProfileUnknownUser(t *testing.T) {
	h := newEngineHarness(t)
	_, err := h.engine.Profile(context.Background(), Principal{UserID: "missing"})
	requireKind(t, err, KindUnauthorized, ErrUnauthorized)
}
