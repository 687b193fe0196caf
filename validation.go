package phoneauth

import (
	"net/mail"
	"strings"

	"github.com/MrEthical07/phoneauth/internal/store"
)

const (
	maxCountryCodeDigits = 3
	minPhoneDigits       = 4
	maxE164Digits        = 15
	maxEmailLength       = 254
)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// normalizePhone strips presentation characters and returns the phone
// target. The country code may carry a leading '+'.
func normalizePhone(countryCode, phone string) (store.Target, error) {
	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	num := phoneSeparators.Replace(strings.TrimSpace(phone))

	if cc == "" || len(cc) > maxCountryCodeDigits || !allDigits(cc) || cc[0] == '0' {
		return store.Target{}, ErrInvalidPhone
	}
	if len(num) < minPhoneDigits || !allDigits(num) || len(cc)+len(num) > maxE164Digits {
		return store.Target{}, ErrInvalidPhone
	}
	return store.Target{CountryCode: cc, Phone: num}, nil
}

// normalizeEmail lower-cases a bare address. Display names are rejected.
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > maxEmailLength {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at:], ".") {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(email), nil
}

func (e *Engine) validateCode(code string) error {
	code = strings.TrimSpace(code)
	if len(code) < e.config.OTP.MinCodeLength || len(code) > e.config.OTP.MaxCodeLength || !allDigits(code) {
		return ErrMalformedCode
	}
	return nil
}

func (e *Engine) validateDevice(d Device) error {
	if strings.TrimSpace(d.ID) == "" || len(d.ID) > e.config.Session.MaxDeviceIDLength {
		return ErrInvalidDevice
	}
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
