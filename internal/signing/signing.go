// Package signing signs and verifies cache purge requests with HMAC-SHA256 so
// the HTTP cache only honours purges coming from the workers.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Header names carried by signed purge requests.
const (
	HeaderExpires   = "X-Purge-Expires"
	HeaderSignature = "X-Purge-Signature"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature of ref valid until expiresUnix.
func (s *Signer) Sign(ref string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", ref, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Headers returns the expiry and signature headers of a purge of ref valid
// for ttl.
func (s *Signer) Headers(ref string, ttl time.Duration) (expires, signature string) {
	exp := s.now().Add(ttl).Unix()
	return strconv.FormatInt(exp, 10), s.Sign(ref, exp)
}

// Validate compares the provided signature with the expected one and rejects
// expired signatures.
func (s *Signer) Validate(ref, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if s.now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(s.Sign(ref, exp)), []byte(signature))
}
