package pgauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"time"
)

const (
	tokenBytes    = 48
	tokenText     = 64
	timestampSize = 8
	identitySize  = 16
	signatureSize = tokenBytes - identitySize // 32, sha256.Size

	// maxClockSkew is the maximum distance, in either direction, the token's
	// embedded timestamp may sit from the verifier's clock.
	maxClockSkew = 10000 * time.Millisecond
)

var tokenEncoding = base64.URLEncoding.WithPadding(base64.NoPadding)

// Option configures a Verifier at construction time.
type Option func(*Verifier)

// WithClock overrides the verifier's notion of "now", for deterministic
// tests of the expiry window.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// Verifier implements a 48-byte token scheme: a token carrying a timestamp,
// 8 random bytes, and an HMAC-SHA-256 signature
// over the first 16 bytes, base64url-encoded with no padding to exactly 64
// characters.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier builds a Verifier keyed by secret. secret is used verbatim as
// the HMAC key (the UTF-8 bytes of the string).
func NewVerifier(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Generate produces a fresh, valid token: random bytes 8..15, the current
// timestamp in bytes 0..7, and the HMAC of bytes 0..15 in bytes 16..47.
func (v *Verifier) Generate() (string, error) {
	var buf [tokenBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	binary.LittleEndian.PutUint64(buf[0:timestampSize], uint64(v.now().UnixMilli()))

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(buf[:identitySize])
	copy(buf[identitySize:], mac.Sum(nil))

	return tokenEncoding.EncodeToString(buf[:]), nil
}

// Verify decodes and checks token, returning its identity (the lowercase hex
// of its first 16 bytes) on success. Failures are one of ErrMalformed,
// ErrExpired, or ErrBadSignature; callers wanting replay protection on top
// should consult a ReplayStore afterward.
func (v *Verifier) Verify(token string) (string, error) {
	if len(token) != tokenText {
		return "", ErrMalformed
	}
	buf, err := tokenEncoding.DecodeString(token)
	if err != nil || len(buf) != tokenBytes {
		return "", ErrMalformed
	}

	timestampMs := int64(binary.LittleEndian.Uint64(buf[0:timestampSize]))
	delta := timestampMs - v.now().UnixMilli()
	if delta < 0 {
		delta = -delta
	}
	if time.Duration(delta)*time.Millisecond >= maxClockSkew {
		return "", ErrExpired
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(buf[:identitySize])
	expected := mac.Sum(nil)
	if subtle.ConstantTimeCompare(expected, buf[identitySize:]) != 1 {
		return "", ErrBadSignature
	}

	return hex.EncodeToString(buf[:identitySize]), nil
}
