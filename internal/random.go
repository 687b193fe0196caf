package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const tokenIDSize = 16

// NewTokenID returns 128 random bits, base64url without padding. Used as
// the jti of every signed credential so two tokens minted in the same
// second never share a digest.
func NewTokenID() (string, error) {
	var raw [tokenIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Digest is the hex SHA-256 of v. Bearer credentials and email codes are
// stored only in this form.
func Digest(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// DigestMatches reports whether Digest(v) equals digest, in constant time.
func DigestMatches(digest, v string) bool {
	if digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(digest), []byte(Digest(v))) == 1
}

// NewOTP returns a uniformly random numeric code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}
