// Package local is an in-process verification provider for development and
// tests. It implements provider.SMSProvider, provider.EmailSender, and
// provider.IdentityVerifier and remembers every code it issued.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/MrEthical07/phoneauth/internal"
	"github.com/MrEthical07/phoneauth/provider"
)

type verification struct {
	to       string
	code     string
	approved bool
}

type assertion struct {
	identity provider.Identity
	audience string
}

// Provider issues and checks codes without any network traffic.
type Provider struct {
	mu            sync.Mutex
	fixedCode     string
	digits        int
	verifications map[string]*verification
	lastCode      map[string]string
	assertions    map[string]assertion
	failNext      error
}

var (
	_ provider.SMSProvider      = (*Provider)(nil)
	_ provider.EmailSender      = (*Provider)(nil)
	_ provider.IdentityVerifier = (*Provider)(nil)
)

// Option configures a [Provider].
type Option func(*Provider)

// WithFixedCode makes every originated code equal to code.
func WithFixedCode(code string) Option {
	return func(p *Provider) { p.fixedCode = code }
}

// WithDigits sets the length of generated codes. Default 6.
func WithDigits(n int) Option {
	return func(p *Provider) { p.digits = n }
}

func New(opts ...Option) *Provider {
	p := &Provider{
		digits:        6,
		verifications: map[string]*verification{},
		lastCode:      map[string]string{},
		assertions:    map[string]assertion{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FailNext makes the next provider call return err.
func (p *Provider) FailNext(err error) {
	p.mu.Lock()
	p.failNext = err
	p.mu.Unlock()
}

// LastCode returns the most recent code sent to a phone number or email.
func (p *Provider) LastCode(to string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCode[to]
}

// RegisterAssertion makes token verify as identity for audience.
func (p *Provider) RegisterAssertion(token, audience string, identity provider.Identity) {
	p.mu.Lock()
	p.assertions[token] = assertion{identity: identity, audience: audience}
	p.mu.Unlock()
}

func (p *Provider) takeFault() error {
	err := p.failNext
	p.failNext = nil
	return err
}

func (p *Provider) Originate(ctx context.Context, to string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFault(); err != nil {
		return "", err
	}

	code := p.fixedCode
	if code == "" {
		var err error
		if code, err = internal.NewOTP(p.digits); err != nil {
			return "", err
		}
	}
	ref := "LV" + uuid.NewString()
	p.verifications[ref] = &verification{to: to, code: code}
	p.lastCode[to] = code
	return ref, nil
}

// Validate approves a matching code once. Approved or unknown references
// report "not_found".
func (p *Provider) Validate(ctx context.Context, ref, code string) (provider.Validation, error) {
	if err := ctx.Err(); err != nil {
		return provider.Validation{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFault(); err != nil {
		return provider.Validation{}, err
	}

	v, ok := p.verifications[ref]
	if !ok || v.approved {
		return provider.Validation{Status: "not_found"}, nil
	}
	if v.code != code {
		return provider.Validation{Status: "pending", Detail: map[string]string{"reason": "code_mismatch"}}, nil
	}
	v.approved = true
	return provider.Validation{Valid: true, Status: "approved"}, nil
}

func (p *Provider) Send(ctx context.Context, to, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFault(); err != nil {
		return false, err
	}
	p.lastCode[to] = code
	return true, nil
}

func (p *Provider) VerifyAssertion(ctx context.Context, token, audience string) (provider.Identity, error) {
	if err := ctx.Err(); err != nil {
		return provider.Identity{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeFault(); err != nil {
		return provider.Identity{}, err
	}

	a, ok := p.assertions[token]
	if !ok {
		return provider.Identity{}, fmt.Errorf("%w: unknown token", provider.ErrInvalidAssertion)
	}
	if a.audience != audience {
		return provider.Identity{}, fmt.Errorf("%w: audience mismatch", provider.ErrInvalidAssertion)
	}
	return a.identity, nil
}
