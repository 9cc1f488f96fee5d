// Package auth establishes the caller's agent address for protected routes.
//
// Callers prove control of an address by signing a short timestamped
// challenge with the address's key (EIP-191 personal-sign). There are no
// server-side accounts or API keys. In development mode a bare address
// header is accepted so local clients can skip signing.
package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cinchpay/cinch/internal/validation"
)

var (
	// ErrBadSignature is returned when the signature does not recover to
	// the claimed address.
	ErrBadSignature = errors.New("auth: signature does not match address")

	// ErrStaleTimestamp is returned when the signed timestamp is outside
	// the accepted clock skew window.
	ErrStaleTimestamp = errors.New("auth: timestamp outside accepted window")

	// ErrMissingCredentials is returned when required headers are absent.
	ErrMissingCredentials = errors.New("auth: missing credentials")
)

// MaxClockSkew bounds how far a signed timestamp may drift from server time.
const MaxClockSkew = 5 * time.Minute

// Verifier checks signed authentication challenges.
type Verifier struct {
	allowInsecure bool // dev mode: accept a bare address header
	maxSkew       time.Duration
	nowFn         func() time.Time
}

// NewVerifier creates a verifier. allowInsecure skips signature checks and
// should only be set in development.
func NewVerifier(allowInsecure bool) *Verifier {
	return &Verifier{
		allowInsecure: allowInsecure,
		maxSkew:       MaxClockSkew,
		nowFn:         time.Now,
	}
}

// WithNowFunc overrides the clock for tests.
func (v *Verifier) WithNowFunc(fn func() time.Time) *Verifier {
	v.nowFn = fn
	return v
}

// ChallengeMessage builds the exact string a caller must sign.
func ChallengeMessage(address string, timestamp int64) string {
	return fmt.Sprintf("cinch-auth:%s:%d", strings.ToLower(address), timestamp)
}

// Verify checks that signature is a valid personal-sign of the challenge for
// address at the given unix timestamp. Returns the sanitized address.
func (v *Verifier) Verify(address, timestamp, signature string) (string, error) {
	if !validation.IsValidAddress(address) {
		return "", ErrBadSignature
	}
	addr := validation.SanitizeAddress(address)

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return "", ErrStaleTimestamp
	}
	now := v.nowFn()
	drift := now.Sub(time.Unix(ts, 0))
	if drift > v.maxSkew || drift < -v.maxSkew {
		return "", ErrStaleTimestamp
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(signature), "0x"))
	if err != nil || len(sig) != 65 {
		return "", ErrBadSignature
	}
	// Accept both 0/1 and legacy 27/28 recovery ids.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	msg := ChallengeMessage(addr, ts)
	digest := personalHash(msg)

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", ErrBadSignature
	}
	recovered := strings.ToLower(crypto.PubkeyToAddress(*pub).Hex())
	if recovered != addr {
		return "", ErrBadSignature
	}
	return addr, nil
}

// personalHash computes the EIP-191 personal-sign digest of msg.
func personalHash(msg string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	return crypto.Keccak256([]byte(prefixed))
}
