package phoneauth

import (
	"context"
	"testing"
	"time"
)

func TestScheduleDeletionRevokesSessions(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()
	res, p := h.signIn(t, testPhone, "device-a")
	h.signIn(t, testPhone, "device-b")

	deadline, err := h.engine.ScheduleDeletion(ctx, p)
	if err != nil {
		t.Fatalf("ScheduleDeletion failed: %v", err)
	}
	want := time.Now().Add(30 * 24 * time.Hour)
	if deadline.Before(want.Add(-time.Minute)) || deadline.After(want.Add(time.Minute)) {
		t.Fatalf("unexpected deadline %v", deadline)
	}

	for _, s := range h.st.Sessions() {
		if s.IsActive {
			t.Fatalf("session %s survived deletion", s.DeviceID)
		}
	}
	if info, err := h.engine.CurrentSession(ctx, res.Tokens.AccessToken); err != nil || info != nil {
		t.Fatalf("session resolves after deletion: %+v, %v", info, err)
	}
	_, err = h.engine.Refresh(ctx, res.Tokens.RefreshToken)
	requireKind(t, err, KindUnauthorized, ErrSessionRevoked)

	_, err = h.engine.Profile(ctx, p)
	requireKind(t, err, KindUnauthorized, ErrAccountInactive)
	_, err = h.engine.ScheduleDeletion(ctx, p)
	requireKind(t, err, KindUnauthorized, ErrAccountInactive)
}

func TestSignInWithinGraceReactivates(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()
	_, p := h.signIn(t, testPhone, "device-a")
	h.completeOnboarding(t, p)
	if _, err := h.engine.ScheduleDeletion(ctx, p); err != nil {
		t.Fatalf("ScheduleDeletion failed: %v", err)
	}

	res, _ := h.signIn(t, testPhone, "device-a")
	if res.IsNewUser || res.User.ID != p.UserID {
		t.Fatalf("expected the scheduled account back, got %+v", res.User)
	}
	if res.User.DeletionScheduledFor != nil {
		t.Fatal("deletion still scheduled after sign-in")
	}
	if _, err := h.engine.Profile(ctx, Principal{UserID: p.UserID}); err != nil {
		t.Fatalf("reactivated account unusable: %v", err)
	}
	if h.engine.MetricsSnapshot().Counters[MetricAccountReactivated] != 1 {
		t.Fatal("reactivation not counted")
	}
}

func TestSignInAfterGraceIsRefused(t *testing.T) {
	h := newEngineHarness(t)
	_, p := h.signIn(t, testPhone, "device-a")
	if _, err := h.engine.ScheduleDeletion(context.Background(), p); err != nil {
		t.Fatalf("ScheduleDeletion failed: %v", err)
	}

	h.engine.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	h.send(t, testPhone)
	_, err := h.verify(testPhone, testCode, "device-a")
	requireKind(t, err, KindUnauthorized, ErrAccountInactive)
}

func TestFederatedSignInWithinGraceReactivates(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()
	login := h.federatedLogin(t, "id-token-1", "sub-1", "ada@example.com", "device-a")
	if _, err := h.engine.SendFederatedPhoneCode(ctx, FederatedPhoneCodeRequest{
		PhoneVerificationToken: login.PhoneVerificationToken,
		CountryCode:            testCC,
		Phone:                  testPhone,
	}); err != nil {
		t.Fatalf("SendFederatedPhoneCode failed: %v", err)
	}
	verified, err := h.engine.VerifyFederatedPhone(ctx, FederatedPhoneVerifyRequest{
		PhoneVerificationToken: login.PhoneVerificationToken,
		CountryCode:            testCC,
		Phone:                  testPhone,
		Code:                   testCode,
		Device:                 testDevice("device-a"),
	})
	if err != nil {
		t.Fatalf("VerifyFederatedPhone failed: %v", err)
	}

	p := Principal{UserID: verified.User.ID, SessionID: verified.Tokens.SessionID, DeviceID: "device-a"}
	if _, err := h.engine.ScheduleDeletion(ctx, p); err != nil {
		t.Fatalf("ScheduleDeletion failed: %v", err)
	}

	again := h.federatedLogin(t, "id-token-2", "sub-1", "ada@example.com", "device-a")
	if again.Tokens == nil || again.User.DeletionScheduledFor != nil {
		t.Fatalf("federated sign-in did not reactivate: %+v", again)
	}
}
