package notification

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// Signature headers set on signed deliveries.
const (
	HeaderSignature   = "X-Promote-Signature"
	HeaderTimestamp   = "X-Promote-Timestamp"
	HeaderSignatureV2 = "X-Promote-Signature-V2"
)

// DefaultSignatureTolerance is how far a delivery timestamp may drift from
// the receiver's clock.
const DefaultSignatureTolerance = 5 * time.Minute

var (
	errMissingSignature = errors.New("missing signature headers")
	errStaleTimestamp   = errors.New("signature timestamp outside tolerance")
	errBadSignature     = errors.New("signature mismatch")
)

// Signer signs webhook payloads with HMAC-SHA256.
type Signer struct {
	// Algorithm is the signature prefix (default "sha256").
	Algorithm string
}

// NewSigner creates a new payload signer.
func NewSigner() *Signer {
	return &Signer{Algorithm: "sha256"}
}

// SignPayload returns "sha256=<hex hmac>" for payload.
func (s *Signer) SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return s.Algorithm + "=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches payload.
func (s *Signer) VerifySignature(payload []byte, secret, signature string) bool {
	expected := s.SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignedHeaders returns the headers for a signed delivery. The V2
// signature covers "<unix timestamp>.<payload>" so receivers can reject
// replays.
func (s *Signer) SignedHeaders(payload []byte, secret string, timestamp time.Time) map[string]string {
	ts := strconv.FormatInt(timestamp.Unix(), 10)
	return map[string]string{
		HeaderSignature:   s.SignPayload(payload, secret),
		HeaderTimestamp:   ts,
		HeaderSignatureV2: s.SignPayload(append([]byte(ts+"."), payload...), secret),
	}
}

// VerifyHeaders checks a V2 signature and its timestamp against now.
// header is typically http.Header.Get.
func (s *Signer) VerifyHeaders(payload []byte, secret string, header func(string) string, now time.Time, tolerance time.Duration) error {
	ts, sig := header(HeaderTimestamp), header(HeaderSignatureV2)
	if ts == "" || sig == "" {
		return errMissingSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errMissingSignature
	}
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	if d := now.Sub(time.Unix(unix, 0)); d > tolerance || d < -tolerance {
		return errStaleTimestamp
	}

	if !s.VerifySignature(append([]byte(ts+"."), payload...), secret, sig) {
		return errBadSignature
	}
	return nil
}
