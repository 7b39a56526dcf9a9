package identity

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func pinClock(t *testing.T, at time.Time) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = orig })
}

func TestVerifySignatureValid(t *testing.T) {
	now := time.Unix(1700000000, 0)
	pinClock(t, now)

	body := []byte(`{"type":"user.created","data":{"id":"u_1"}}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := SignPayload("evt_1", ts, body, testSecret)

	err := VerifySignature(SignatureContext{
		ID:              "evt_1",
		Timestamp:       ts,
		SignatureHeader: sig,
		RawBody:         body,
		Secret:          testSecret,
	})
	assert.NoError(t, err)
}

func TestVerifySignatureLastCandidateWins(t *testing.T) {
	now := time.Unix(1700000000, 0)
	pinClock(t, now)

	body := []byte(`{"type":"user.created"}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	valid := SignPayload("evt_1", ts, body, testSecret)
	stale := SignPayload("evt_1", ts, body, "whsec_rotated_out")

	// Old-secret signatures may precede the current one after a rotation.
	err := VerifySignature(SignatureContext{
		ID:              "evt_1",
		Timestamp:       ts,
		SignatureHeader: stale + " " + valid,
		RawBody:         body,
		Secret:          testSecret,
	})
	assert.NoError(t, err)

	// With the order reversed the authoritative (last) candidate is wrong.
	err = VerifySignature(SignatureContext{
		ID:              "evt_1",
		Timestamp:       ts,
		SignatureHeader: valid + " " + stale,
		RawBody:         body,
		Secret:          testSecret,
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifySignatureTampering(t *testing.T) {
	now := time.Unix(1700000000, 0)
	pinClock(t, now)

	body := []byte(`{"type":"user.created","data":{"id":"u_1"}}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := SignPayload("evt_1", ts, body, testSecret)

	flip := func(b []byte, i int) []byte {
		out := append([]byte(nil), b...)
		out[i] ^= 0x01
		return out
	}

	tests := []struct {
		name string
		sc   SignatureContext
	}{
		{"flipped body byte", SignatureContext{ID: "evt_1", Timestamp: ts, SignatureHeader: sig, RawBody: flip(body, 5), Secret: testSecret}},
		{"flipped signature byte", SignatureContext{ID: "evt_1", Timestamp: ts, SignatureHeader: string(flip([]byte(sig), 0)), RawBody: body, Secret: testSecret}},
		{"mismatched secret", SignatureContext{ID: "evt_1", Timestamp: ts, SignatureHeader: sig, RawBody: body, Secret: "whsec_other"}},
		{"mismatched event id", SignatureContext{ID: "evt_2", Timestamp: ts, SignatureHeader: sig, RawBody: body, Secret: testSecret}},
		{"signature not hex", SignatureContext{ID: "evt_1", Timestamp: ts, SignatureHeader: "zz" + sig[2:], RawBody: body, Secret: testSecret}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, VerifySignature(tt.sc), ErrInvalidSignature)
		})
	}
}

func TestVerifySignatureFreshnessWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	pinClock(t, now)
	body := []byte(`{}`)

	verifyAt := func(eventTime time.Time) error {
		ts := strconv.FormatInt(eventTime.Unix(), 10)
		return VerifySignature(SignatureContext{
			ID:              "evt_1",
			Timestamp:       ts,
			SignatureHeader: SignPayload("evt_1", ts, body, testSecret),
			RawBody:         body,
			Secret:          testSecret,
		})
	}

	require.NoError(t, verifyAt(now.Add(-4*time.Minute)))
	require.NoError(t, verifyAt(now.Add(4*time.Minute)))
	assert.ErrorIs(t, verifyAt(now.Add(-6*time.Minute)), ErrStaleTimestamp)
	assert.ErrorIs(t, verifyAt(now.Add(6*time.Minute)), ErrStaleTimestamp)
}

func TestVerifySignatureMissingInputs(t *testing.T) {
	now := time.Unix(1700000000, 0)
	pinClock(t, now)

	body := []byte(`{}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := SignPayload("evt_1", ts, body, testSecret)

	tests := []struct {
		name string
		sc   SignatureContext
		want error
	}{
		{"missing id", SignatureContext{Timestamp: ts, SignatureHeader: sig, RawBody: body, Secret: testSecret}, ErrMissingHeaders},
		{"missing timestamp", SignatureContext{ID: "evt_1", SignatureHeader: sig, RawBody: body, Secret: testSecret}, ErrMissingHeaders},
		{"missing signature", SignatureContext{ID: "evt_1", Timestamp: ts, RawBody: body, Secret: testSecret}, ErrMissingHeaders},
		{"missing secret", SignatureContext{ID: "evt_1", Timestamp: ts, SignatureHeader: sig, RawBody: body}, ErrMissingSecret},
		{"timestamp not numeric", SignatureContext{ID: "evt_1", Timestamp: "yesterday", SignatureHeader: sig, RawBody: body, Secret: testSecret}, ErrInvalidTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, VerifySignature(tt.sc), tt.want)
		})
	}
}
