// Package twilio implements provider.SMSProvider against the Twilio Verify
// v2 REST API.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrEthical07/phoneauth/provider"
)

const defaultBaseURL = "https://verify.twilio.com"

// Config holds the Verify service credentials.
type Config struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	ServiceSID string
	// Channel is the delivery channel; empty means "sms".
	Channel    string
	HTTPClient *http.Client
}

// Client talks to one Verify service.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ provider.SMSProvider = (*Client)(nil)

// New validates cfg and returns a [Client].
func New(cfg Config) (*Client, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.ServiceSID == "" {
		return nil, errors.New("twilio: account sid, auth token and service sid are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Channel == "" {
		cfg.Channel = "sms"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{cfg: cfg, http: hc}, nil
}

type verificationResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
	Valid  bool   `json:"valid"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Originate starts a verification and returns its sid.
func (c *Client) Originate(ctx context.Context, to string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("Channel", c.cfg.Channel)

	var out verificationResponse
	status, apiErr, err := c.post(ctx, "/Verifications", form, &out)
	if err != nil {
		return "", err
	}
	if apiErr != nil {
		return "", &provider.RejectionError{Status: rejectionStatus(status, apiErr), Detail: apiErr.Message}
	}
	return out.SID, nil
}

// Validate checks code against the verification sid ref. Unknown, expired,
// or exhausted verifications are reported as an invalid code, not an error.
func (c *Client) Validate(ctx context.Context, ref, code string) (provider.Validation, error) {
	form := url.Values{}
	form.Set("VerificationSid", ref)
	form.Set("Code", code)

	var out verificationResponse
	status, apiErr, err := c.post(ctx, "/VerificationCheck", form, &out)
	if err != nil {
		return provider.Validation{}, err
	}
	if apiErr != nil {
		st := rejectionStatus(status, apiErr)
		return provider.Validation{
			Valid:  false,
			Status: st,
			Detail: map[string]string{"code": st, "message": apiErr.Message},
		}, nil
	}
	return provider.Validation{
		Valid:  out.Valid && out.Status == "approved",
		Status: out.Status,
		Detail: map[string]string{"sid": out.SID},
	}, nil
}

func rejectionStatus(httpStatus int, e *errorResponse) string {
	if e.Code != 0 {
		return strconv.Itoa(e.Code)
	}
	if httpStatus == http.StatusNotFound {
		return "not_found"
	}
	return strconv.Itoa(httpStatus)
}

// post returns a non-nil *errorResponse for 4xx answers and an error for
// transport failures and 5xx answers.
func (c *Client) post(ctx context.Context, path string, form url.Values, out any) (int, *errorResponse, error) {
	endpoint := c.cfg.BaseURL + "/v2/Services/" + url.PathEscape(c.cfg.ServiceSID) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}

	switch {
	case resp.StatusCode >= 500:
		return resp.StatusCode, nil, fmt.Errorf("twilio: upstream status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		var e errorResponse
		if err := json.Unmarshal(body, &e); err != nil {
			e = errorResponse{Status: resp.StatusCode}
		}
		return resp.StatusCode, &e, nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("twilio: decode response: %w", err)
	}
	return resp.StatusCode, nil, nil
}
