package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds how far a webhook timestamp may drift from the
// local clock before the delivery is rejected as stale or replayed.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingHeaders   = errors.New("missing webhook verification headers")
	ErrMissingSecret    = errors.New("webhook secret is not configured")
	ErrInvalidTimestamp = errors.New("webhook timestamp is not a unix timestamp")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// SignatureContext carries everything needed to verify one delivery. It is
// built per request from headers plus the raw body and never persisted.
type SignatureContext struct {
	ID              string
	Timestamp       string
	SignatureHeader string
	RawBody         []byte
	Secret          string

	// Tolerance overrides DefaultTolerance when > 0.
	Tolerance time.Duration
}

// timeNow is swapped in tests to pin the freshness window.
var timeNow = time.Now

// VerifySignature checks an inbound identity webhook delivery. The signed
// content is "{id}.{timestamp}.{rawBody}" where rawBody must be the exact
// bytes received on the wire. Re-serialized JSON is not guaranteed to match
// what the sender signed, so callers must not parse the body first.
func VerifySignature(sc SignatureContext) error {
	id := strings.TrimSpace(sc.ID)
	ts := strings.TrimSpace(sc.Timestamp)
	sigHeader := strings.TrimSpace(sc.SignatureHeader)
	if strings.TrimSpace(sc.Secret) == "" {
		return ErrMissingSecret
	}
	if id == "" || ts == "" || sigHeader == "" {
		return ErrMissingHeaders
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	tolerance := sc.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	drift := timeNow().Sub(time.Unix(unix, 0))
	if drift > tolerance || drift < -tolerance {
		return ErrStaleTimestamp
	}

	// The header may carry several space separated candidates after secret
	// rotations. The last one is signed with the current secret.
	candidates := strings.Fields(sigHeader)
	candidate := candidates[len(candidates)-1]

	expectedSig, err := hex.DecodeString(strings.ToLower(candidate))
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(sc.Secret))
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(sc.RawBody)
	if !hmac.Equal(mac.Sum(nil), expectedSig) {
		return ErrInvalidSignature
	}
	return nil
}

// SignPayload computes the hex signature for the given delivery. Used by
// tests and by local tooling that replays webhook fixtures.
func SignPayload(id, timestamp string, rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
