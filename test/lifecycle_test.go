//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/internal/enginetest"
	"github.com/MrEthical07/phoneauth/metrics/export/prometheus"
	"github.com/MrEthical07/phoneauth/onboarding"
)

func TestAccountLifecycleAcrossDevices(t *testing.T) {
	h := enginetest.New(t)
	ctx := context.Background()

	phone := h.SignIn(t, enginetest.Phone, "phone")
	tablet := h.SignIn(t, enginetest.Phone, "tablet")
	if phone.User.ID != tablet.User.ID || tablet.IsNewUser {
		t.Fatalf("second device created a new account: %+v", tablet.User)
	}

	p := enginetest.Principal(phone, "phone")
	if _, err := h.Engine.SaveProfile(ctx, p, phoneauth.ProfileInput{DisplayName: "Grace"}); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}
	if _, err := h.Engine.SaveInterests(ctx, p, []string{"Go", "go", "rust"}); err != nil {
		t.Fatalf("SaveInterests failed: %v", err)
	}
	info, err := h.Engine.AcknowledgeRecommendations(ctx, p)
	if err != nil {
		t.Fatalf("AcknowledgeRecommendations failed: %v", err)
	}
	if info.OnboardingStep != onboarding.StepCompleted || len(info.Interests) != 2 {
		t.Fatalf("unexpected profile %+v", info)
	}

	sess, err := h.Engine.CurrentSession(ctx, tablet.Tokens.AccessToken)
	if err != nil || sess == nil || sess.OnboardingStep != onboarding.StepCompleted {
		t.Fatalf("tablet session = %+v, %v", sess, err)
	}

	n, err := h.Engine.Logout(ctx, p, phoneauth.LogoutRequest{AllOthers: true})
	if err != nil || n != 1 {
		t.Fatalf("Logout = %d, %v", n, err)
	}
	if _, err := h.Engine.Refresh(ctx, tablet.Tokens.RefreshToken); !errors.Is(err, phoneauth.ErrSessionRevoked) {
		t.Fatalf("tablet refresh after logout: %v", err)
	}

	pair, err := h.Engine.Refresh(ctx, phone.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("phone refresh failed: %v", err)
	}
	if _, err := h.Engine.Refresh(ctx, phone.Tokens.RefreshToken); !errors.Is(err, phoneauth.ErrRefreshReuse) {
		t.Fatalf("reuse not detected: %v", err)
	}
	if sess, _ := h.Engine.CurrentSession(ctx, pair.AccessToken); sess == nil {
		t.Fatal("rotated access token rejected")
	}

	out := prometheus.NewPrometheusExporter(h.Engine).Render()
	for _, want := range []string{
		`phoneauth_sessions_total{event="issued"} 2`,
		`phoneauth_sessions_total{event="refresh_reused"} 1`,
		`phoneauth_onboarding_steps_total{result="advanced"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
}
