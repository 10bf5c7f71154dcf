package webhook

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	testSecret = []byte("whsec_test")
	testNow    = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
)

func testVerifier() *Verifier {
	v := NewVerifier(string(testSecret), 0)
	v.Now = func() time.Time { return testNow }
	return v
}

func TestVerify_ValidSignature(t *testing.T) {
	body := []byte(`{"type":"payment.succeeded"}`)
	assert.NoError(t, testVerifier().Verify(Sign(testSecret, testNow, body), body))
}

func TestVerify_Rejects(t *testing.T) {
	body := []byte(`{"type":"payment.succeeded"}`)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"garbage", "not-a-signature"},
		{"no v1", "t=1717243200"},
		{"wrong secret", Sign([]byte("other"), testNow, body)},
		{"tampered body", Sign(testSecret, testNow, []byte(`{"type":"payment.failed"}`))},
		{"too old", Sign(testSecret, testNow.Add(-6*time.Minute), body)},
		{"too far ahead", Sign(testSecret, testNow.Add(6*time.Minute), body)},
		{"non-numeric timestamp", "t=abc,v1=00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testVerifier().Verify(tt.header, body)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestVerify_WithinTolerance(t *testing.T) {
	body := []byte(`{}`)
	header := Sign(testSecret, testNow.Add(-4*time.Minute), body)
	assert.NoError(t, testVerifier().Verify(header, body))
}

func TestVerify_AnyOfRotatedSignatures(t *testing.T) {
	body := []byte(`{}`)
	good := Sign(testSecret, testNow, body)
	header := good + ",v1=deadbeef"
	assert.NoError(t, testVerifier().Verify(header, body))

	ts := strconv.FormatInt(testNow.Unix(), 10)
	header = "t=" + ts + ",v1=deadbeef,v1=" + mac(testSecret, ts, body)
	assert.NoError(t, testVerifier().Verify(header, body))
}

func TestVerify_NoSecretConfigured(t *testing.T) {
	v := NewVerifier("", time.Minute)
	v.Now = func() time.Time { return testNow }
	body := []byte(`{}`)
	assert.ErrorIs(t, v.Verify(Sign(nil, testNow, body), body), ErrInvalidSignature)
}
