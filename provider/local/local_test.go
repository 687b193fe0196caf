package local

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/phoneauth/provider"
)

func TestOriginateValidateOnce(t *testing.T) {
	p := New()
	ctx := context.Background()

	ref, err := p.Originate(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	code := p.LastCode("+15551234567")
	if len(code) != 6 {
		t.Fatalf("unexpected code %q", code)
	}

	v, err := p.Validate(ctx, ref, "000000x")
	if err != nil || v.Valid {
		t.Fatalf("wrong code must not validate: %+v %v", v, err)
	}
	v, err = p.Validate(ctx, ref, code)
	if err != nil || !v.Valid {
		t.Fatalf("expected approval: %+v %v", v, err)
	}
	v, _ = p.Validate(ctx, ref, code)
	if v.Valid || v.Status != "not_found" {
		t.Fatalf("approved verification must not validate twice: %+v", v)
	}
}

func TestFailNextFiresOnce(t *testing.T) {
	p := New(WithFixedCode("123456"))
	boom := errors.New("boom")
	p.FailNext(boom)

	if _, err := p.Originate(context.Background(), "+1"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := p.Originate(context.Background(), "+1"); err != nil {
		t.Fatalf("fault must fire once: %v", err)
	}
}

func TestVerifyAssertionAudience(t *testing.T) {
	p := New()
	p.RegisterAssertion("tok", "aud-1", provider.Identity{Subject: "s1"})

	if id, err := p.VerifyAssertion(context.Background(), "tok", "aud-1"); err != nil || id.Subject != "s1" {
		t.Fatalf("expected identity, got %+v %v", id, err)
	}
	if _, err := p.VerifyAssertion(context.Background(), "tok", "aud-2"); !errors.Is(err, provider.ErrInvalidAssertion) {
		t.Fatalf("expected ErrInvalidAssertion, got %v", err)
	}
}
