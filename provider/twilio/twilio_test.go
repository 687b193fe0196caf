package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/phoneauth/provider"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "secret", ServiceSID: "VA1"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return c
}

func TestOriginateSendsFormAndReturnsSid(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/Services/VA1/Verifications" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "secret" {
			t.Errorf("missing basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("To") != "+15551234567" || r.PostForm.Get("Channel") != "sms" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"VE42","status":"pending"}`))
	})

	ref, err := c.Originate(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("originate failed: %v", err)
	}
	if ref != "VE42" {
		t.Fatalf("unexpected ref %q", ref)
	}
}

func TestOriginateClientErrorIsRejection(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":60200,"message":"Invalid parameter","status":400}`))
	})

	_, err := c.Originate(context.Background(), "+1")
	if !provider.IsRejection(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestOriginateServerErrorIsTransport(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Originate(context.Background(), "+15551234567")
	if err == nil || provider.IsRejection(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		valid  bool
		want   string
	}{
		{"approved", http.StatusOK, `{"sid":"VE42","status":"approved","valid":true}`, true, "approved"},
		{"wrong code", http.StatusOK, `{"sid":"VE42","status":"pending","valid":false}`, false, "pending"},
		{"not found", http.StatusNotFound, `{"code":20404,"message":"not found","status":404}`, false, "20404"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v2/Services/VA1/VerificationCheck" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			v, err := c.Validate(context.Background(), "VE42", "123456")
			if err != nil {
				t.Fatalf("validate failed: %v", err)
			}
			if v.Valid != tc.valid || v.Status != tc.want {
				t.Fatalf("got %+v", v)
			}
		})
	}
}
