package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newTestManager(t *testing.T) (*Manager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "phoneauth",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, priv
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{UID: "u1", Scope: ScopeAccess, RegisteredClaims: gjwt.RegisteredClaims{ID: "j1", ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Parse(token, ScopeAccess); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestCreateAndParseRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)

	access, err := m.CreateAccess(Subject{UserID: "u1", SessionID: "s1", DeviceID: "d1", Role: "admin"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.Parse(access.Value, ScopeAccess)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "u1" || claims.SID != "s1" || claims.DID != "d1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID != access.ID {
		t.Fatalf("jti mismatch: %q vs %q", claims.ID, access.ID)
	}
	if d := time.Until(access.ExpiresAt); d < 59*time.Minute || d > time.Hour {
		t.Fatalf("unexpected access expiry in %s", d)
	}
}

func TestTokensAreUniquePerCall(t *testing.T) {
	m, _ := newTestManager(t)
	s := Subject{UserID: "u1", SessionID: "s1", DeviceID: "d1"}

	a, _ := m.CreateRefresh(s)
	b, _ := m.CreateRefresh(s)
	if a.Value == b.Value || a.ID == b.ID {
		t.Fatal("two refresh tokens minted in the same second must differ")
	}
}

func TestParseEnforcesScope(t *testing.T) {
	m, _ := newTestManager(t)
	s := Subject{UserID: "u1", SessionID: "s1", DeviceID: "d1"}

	refresh, _ := m.CreateRefresh(s)
	if _, err := m.Parse(refresh.Value, ScopeAccess); !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("refresh used as access: expected ErrScopeMismatch, got %v", err)
	}

	verify, _ := m.CreatePhoneVerify("u1")
	if _, err := m.Parse(verify.Value, ScopeAccess); !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("phone verify used as access: expected ErrScopeMismatch, got %v", err)
	}
	claims, err := m.Parse(verify.Value, ScopePhoneVerify)
	if err != nil {
		t.Fatalf("parse phone verify: %v", err)
	}
	if claims.SID != "" {
		t.Fatal("phone verify token must not carry a session")
	}
	if d := time.Until(verify.ExpiresAt); d > 10*time.Minute {
		t.Fatalf("phone verify token lives too long: %s", d)
	}
}

func TestParseIssuerAudienceAndLeeway(t *testing.T) {
	m, priv := newTestManager(t)

	sign := func(iss, aud string, exp, iat time.Time) string {
		c := Claims{UID: "u1", Scope: ScopeAccess, RegisteredClaims: gjwt.RegisteredClaims{
			ID:        "j1",
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			ExpiresAt: gjwt.NewNumericDate(exp),
			IssuedAt:  gjwt.NewNumericDate(iat),
		}}
		s, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		return s
	}
	now := time.Now()

	if _, err := m.Parse(sign("other", "api", now.Add(time.Minute), now), ScopeAccess); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Parse(sign("phoneauth", "other-api", now.Add(time.Minute), now), ScopeAccess); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.Parse(sign("phoneauth", "api", now.Add(-15*time.Second), now.Add(-time.Minute)), ScopeAccess); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	if _, err := m.Parse(sign("phoneauth", "api", now.Add(-2*time.Minute), now.Add(-3*time.Minute)), ScopeAccess); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{UID: "u1", Scope: ScopeAccess, RegisteredClaims: gjwt.RegisteredClaims{ID: "j1", ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, _ := tok.SignedString(priv1)
	if _, err := m.Parse(token, ScopeAccess); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	good, err := m.CreateAccess(Subject{UserID: "u1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Parse(good.Value, ScopeAccess); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}
}

func TestNewManagerRejectsShortHMACKey(t *testing.T) {
	if _, err := NewManager(Config{AccessTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 key to be rejected")
	}
	if _, err := NewManager(Config{AccessTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: make([]byte, 32)}); err != nil {
		t.Fatalf("expected 32 byte key to pass: %v", err)
	}
}
