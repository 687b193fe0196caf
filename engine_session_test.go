package phoneauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/phoneauth/internal/store"
)

func TestRefreshRotatesAndIsSingleUse(t *testing.T) {
	h := newEngineHarness(t)
	res, _ := h.signIn(t, testPhone, "device-a")
	ctx := context.Background()

	rotated, err := h.engine.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.SessionID != res.Tokens.SessionID {
		t.Fatal("refresh must keep the session id")
	}
	if rotated.RefreshToken == res.Tokens.RefreshToken || rotated.AccessToken == res.Tokens.AccessToken {
		t.Fatal("refresh must rotate both tokens")
	}

	_, err = h.engine.Refresh(ctx, res.Tokens.RefreshToken)
	requireKind(t, err, KindUnauthorized, ErrRefreshReuse)

	// reuse is recorded, the rotated pair keeps working
	if _, err := h.engine.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("rotated refresh token rejected: %v", err)
	}
	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricRefreshReuseDetected] != 1 || snap.Counters[MetricRefreshSuccess] != 2 {
		t.Fatalf("unexpected refresh counters: %+v", snap.Counters)
	}

	info, err := h.engine.CurrentSession(ctx, res.Tokens.AccessToken)
	if err != nil || info != nil {
		t.Fatalf("rotated access token still resolves: %+v, %v", info, err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	h := newEngineHarness(t)
	res, _ := h.signIn(t, testPhone, "device-a")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := h.engine.Refresh(context.Background(), res.Tokens.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success, reuse := 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrRefreshReuse):
			reuse++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 || reuse != n-1 {
		t.Fatalf("expected 1 success and %d reuse, got %d and %d", n-1, success, reuse)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	h := newEngineHarness(t)
	res, _ := h.signIn(t, testPhone, "device-a")

	_, err := h.engine.Refresh(context.Background(), res.Tokens.AccessToken)
	requireKind(t, err, KindUnauthorized, ErrInvalidToken)
	_, err = h.engine.Refresh(context.Background(), "")
	requireKind(t, err, KindUnauthorized, ErrInvalidToken)
}

func TestRefreshAfterLogoutIsRevoked(t *testing.T) {
	h := newEngineHarness(t)
	res, p := h.signIn(t, testPhone, "device-a")

	n, err := h.engine.Logout(context.Background(), p, LogoutRequest{})
	if err != nil || n != 1 {
		t.Fatalf("Logout = %d, %v", n, err)
	}
	_, err = h.engine.Refresh(context.Background(), res.Tokens.RefreshToken)
	requireKind(t, err, KindUnauthorized, ErrSessionRevoked)
}

func TestLogoutScopes(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()
	_, pa := h.signIn(t, testPhone, "device-a")
	h.signIn(t, testPhone, "device-b")
	h.signIn(t, testPhone, "device-c")

	n, err := h.engine.Logout(ctx, pa, LogoutRequest{TargetDeviceID: "device-b"})
	if err != nil || n != 1 {
		t.Fatalf("targeted logout = %d, %v", n, err)
	}
	n, err = h.engine.Logout(ctx, pa, LogoutRequest{AllOthers: true})
	if err != nil || n != 1 {
		t.Fatalf("logout all others = %d, %v", n, err)
	}

	devices, err := h.engine.ListDevices(ctx, pa)
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 1 || devices[0].DeviceID != "device-a" || !devices[0].Current {
		t.Fatalf("unexpected devices %+v", devices)
	}

	_, err = h.engine.Logout(ctx, pa, LogoutRequest{AllOthers: true})
	requireKind(t, err, KindConflict, ErrNothingToRevoke)
	_, err = h.engine.Logout(ctx, pa, LogoutRequest{TargetDeviceID: "device-b", AllOthers: true})
	requireKind(t, err, KindInputInvalid, ErrInvalidRequest)
}

func TestLogoutCannotTouchAnotherUsersDevice(t *testing.T) {
	h := newEngineHarness(t)
	_, alice := h.signIn(t, testPhone, "device-a")
	h.signIn(t, "5559876543", "device-b")

	_, err := h.engine.Logout(context.Background(), alice, LogoutRequest{TargetDeviceID: "device-b"})
	requireKind(t, err, KindConflict, ErrNothingToRevoke)

	active := 0
	for _, s := range h.st.Sessions() {
		if s.IsActive {
			active++
		}
	}
	if active != 2 {
		t.Fatalf("expected both sessions active, got %d", active)
	}
}

func TestLogoutRequiresPrincipal(t *testing.T) {
	h := newEngineHarness(t)
	_, err := h.engine.Logout(context.Background(), Principal{}, LogoutRequest{})
	requireKind(t, err, KindUnauthorized, ErrUnauthorized)
}

func TestCurrentSession(t *testing.T) {
	h := newEngineHarness(t)
	res, _ := h.signIn(t, testPhone, "device-a")
	ctx := context.Background()

	info, err := h.engine.CurrentSession(ctx, res.Tokens.AccessToken)
	if err != nil || info == nil {
		t.Fatalf("CurrentSession = %+v, %v", info, err)
	}
	if info.UserID != res.User.ID || info.DeviceID != "device-a" || info.Role != RoleStandard {
		t.Fatalf("unexpected session info %+v", info)
	}
	if p := info.Principal(); p.SessionID != res.Tokens.SessionID {
		t.Fatalf("unexpected principal %+v", p)
	}

	for _, tok := range []string{"", "garbage", res.Tokens.RefreshToken, strings.Repeat("a.", 3)} {
		info, err := h.engine.CurrentSession(ctx, tok)
		if err != nil || info != nil {
			t.Fatalf("token %q: expected nil, nil; got %+v, %v", tok, info, err)
		}
	}
}

func TestCurrentSessionInactiveUser(t *testing.T) {
	h := newEngineHarness(t)
	res, _ := h.signIn(t, testPhone, "device-a")
	h.updateUser(t, res.User.ID, func(u *store.User) { u.IsSuspended = true })

	info, err := h.engine.CurrentSession(context.Background(), res.Tokens.AccessToken)
	if err != nil || info != nil {
		t.Fatalf("suspended user session resolved: %+v, %v", info, err)
	}
}

func TestCurrentSessionStoreFailureIsInternal(t *testing.T) {
	h := newEngineHarness(t)
	res, _ := h.signIn(t, testPhone, "device-a")
	h.st.InjectFault("SessionByAccessDigest", nil)

	_, err := h.engine.CurrentSession(context.Background(), res.Tokens.AccessToken)
	requireKind(t, err, KindInternal, ErrInternal)
}

func TestUpdatePushTokenAndListDevices(t *testing.T) {
	h := newEngineHarness(t)
	_, p := h.signIn(t, testPhone, "device-a")
	ctx := context.Background()

	if err := h.engine.UpdatePushToken(ctx, p, "apns-token"); err != nil {
		t.Fatalf("UpdatePushToken failed: %v", err)
	}
	devices, err := h.engine.ListDevices(ctx, p)
	if err != nil || len(devices) != 1 || !devices[0].HasPushToken {
		t.Fatalf("ListDevices = %+v, %v", devices, err)
	}
	if devices[0].Type != "ios" || devices[0].AppVersion != "1.0.0" {
		t.Fatalf("device metadata not stored: %+v", devices[0])
	}

	if err := h.engine.UpdatePushToken(ctx, p, ""); err != nil {
		t.Fatalf("clearing push token failed: %v", err)
	}
	devices, _ = h.engine.ListDevices(ctx, p)
	if devices[0].HasPushToken {
		t.Fatal("push token not cleared")
	}

	err = h.engine.UpdatePushToken(ctx, p, strings.Repeat("x", maxPushTokenLength+1))
	requireKind(t, err, KindInputInvalid, ErrInvalidRequest)

	stale := p
	stale.SessionID = "not-a-session"
	err = h.engine.UpdatePushToken(ctx, stale, "tok")
	requireKind(t, err, KindUnauthorized, ErrUnauthorized)
}
