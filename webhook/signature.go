/*
Package webhook accepts payment-gateway callbacks and feeds them into the
same Engine.VerifyPayment path staff use.

SIGNATURE:
  Gateway-Signature: t=<unix seconds>,v1=<hex HMAC-SHA256(secret, "<t>.<raw body>")>

  Several v1 values may be present while the gateway rotates secrets; any
  match is accepted. A timestamp outside the tolerance window is rejected so
  a captured request cannot be replayed later.
*/
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the gateway signature.
const SignatureHeader = "Gateway-Signature"

// DefaultTolerance is the accepted clock skew between gateway and server.
const DefaultTolerance = 5 * time.Minute

var (
	// ErrInvalidSignature covers every verification failure. The reason is
	// logged, never returned to the caller.
	ErrInvalidSignature = errors.New("invalid signature")

	errMalformedHeader = errors.New("malformed signature header")
	errNoMatch         = errors.New("no matching signature")
	errStaleTimestamp  = errors.New("timestamp outside tolerance")
)

// Verifier checks signed payloads.
type Verifier struct {
	Secret    []byte
	Tolerance time.Duration
	Now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{Secret: []byte(secret), Tolerance: tolerance, Now: time.Now}
}

// Sign computes the header value for body at time t.
func Sign(secret []byte, t time.Time, body []byte) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return "t=" + ts + ",v1=" + mac(secret, ts, body)
}

func mac(secret []byte, ts string, body []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(ts))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify returns nil if header is a valid, fresh signature of body.
// The returned error wraps ErrInvalidSignature.
func (v *Verifier) Verify(header string, body []byte) error {
	if len(v.Secret) == 0 {
		return invalid(errors.New("no webhook secret configured"))
	}

	ts, sigs, err := parseHeader(header)
	if err != nil {
		return invalid(err)
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return invalid(errMalformedHeader)
	}
	skew := v.Now().Sub(time.Unix(sec, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.Tolerance {
		return invalid(errStaleTimestamp)
	}

	expected := []byte(mac(v.Secret, ts, body))
	for _, s := range sigs {
		if hmac.Equal(expected, []byte(s)) {
			return nil
		}
	}
	return invalid(errNoMatch)
}

func parseHeader(header string) (ts string, sigs []string, err error) {
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return "", nil, errMalformedHeader
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			sigs = append(sigs, val)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return "", nil, errMalformedHeader
	}
	return ts, sigs, nil
}

type signatureError struct{ reason error }

func (e *signatureError) Error() string { return "invalid signature: " + e.reason.Error() }

func (e *signatureError) Unwrap() error { return ErrInvalidSignature }

func invalid(reason error) error { return &signatureError{reason: reason} }
