package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/phoneauth/internal"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

// Scope names what a token may be used for.
type Scope string

const (
	ScopeAccess      Scope = "access"
	ScopeRefresh     Scope = "refresh"
	ScopePhoneVerify Scope = "phone_verify"
)

// ErrScopeMismatch is returned by [Manager.Parse] when a validly signed token
// carries a different scope than the one required.
var ErrScopeMismatch = errors.New("token scope mismatch")

// Config configures a [Manager].
type Config struct {
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	PhoneVerifyTTL time.Duration
	SigningMethod  SigningMethod
	PrivateKey     []byte
	PublicKey      []byte
	Issuer         string
	Audience       string
	Leeway         time.Duration
	RequireIAT     bool
	MaxFutureIAT   time.Duration
	KeyID          string
	VerifyKeys     map[string][]byte
}

// Manager mints and verifies scoped access, refresh and phone-verification
// tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// Claims is the payload of every phoneauth token. ID (jti) is random per
// token; SID and DID are empty for phone-verification tokens.
type Claims struct {
	UID   string `json:"uid"`
	SID   string `json:"sid,omitempty"`
	DID   string `json:"did,omitempty"`
	Role  string `json:"role,omitempty"`
	Scope Scope  `json:"scope"`
	jwt.RegisteredClaims
}

// Subject identifies who a session token is minted for.
type Subject struct {
	UserID    string
	SessionID string
	DeviceID  string
	Role      string
}

// Token is a signed credential and the facts the issuer needs to store.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// NewManager validates cfg and parses its keys.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.PhoneVerifyTTL <= 0 {
		cfg.PhoneVerifyTTL = 10 * time.Minute
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a private key of at least 32 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// AccessTTL returns the configured access token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// CreateAccess signs an access token for s.
func (j *Manager) CreateAccess(s Subject) (Token, error) {
	return j.create(ScopeAccess, s, j.config.AccessTTL)
}

// CreateRefresh mints the long-lived credential paired with an access token.
func (j *Manager) CreateRefresh(s Subject) (Token, error) {
	return j.create(ScopeRefresh, Subject{UserID: s.UserID, SessionID: s.SessionID, DeviceID: s.DeviceID}, j.config.RefreshTTL)
}

// CreatePhoneVerify mints the short-lived token a federated user without a
// verified phone presents to finish phone verification.
func (j *Manager) CreatePhoneVerify(userID string) (Token, error) {
	return j.create(ScopePhoneVerify, Subject{UserID: userID}, j.config.PhoneVerifyTTL)
}

func (j *Manager) create(scope Scope, s Subject, ttl time.Duration) (Token, error) {
	if s.UserID == "" {
		return Token{}, errors.New("missing user id")
	}
	jti, err := internal.NewTokenID()
	if err != nil {
		return Token{}, err
	}

	now := j.now()
	exp := now.Add(ttl)
	claims := Claims{
		UID:   s.UserID,
		SID:   s.SessionID,
		DID:   s.DeviceID,
		Role:  s.Role,
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   s.UserID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return Token{}, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ID: jti, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Parse verifies signature, expiry, issuer, and audience, then requires the
// token scope to equal scope. It returns [ErrScopeMismatch] for a valid token
// of another scope.
func (j *Manager) Parse(tokenStr string, scope Scope) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(j.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := j.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return j.keyBytesToVerifyKey(key)
		}

		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}

		return j.getVerifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && j.config.MaxFutureIAT > 0 {
		maxAllowed := j.now().Add(j.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, errors.New("token iat too far in the future")
		}
	}
	if claims.Scope != scope {
		return nil, ErrScopeMismatch
	}
	if claims.UID == "" || claims.ID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
