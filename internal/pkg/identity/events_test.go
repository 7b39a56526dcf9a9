package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelopeUserCreated(t *testing.T) {
	raw := []byte(`{
		"type": "user.created",
		"data": {
			"id": "u_1",
			"email_addresses": [{"id": "e1", "email_address": "a@b.com"}],
			"primary_email_address_id": "e1"
		}
	}`)

	env, err := ParseEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, EventUserCreated, env.Type)

	data, err := ParseUserEventData(env.Data)
	require.NoError(t, err)
	assert.Equal(t, "u_1", data.ID)

	email, ok := data.PrimaryEmail()
	require.True(t, ok)
	assert.Equal(t, "a@b.com", email)
}

func TestParseEnvelopeRejectsMissingType(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"data":{"id":"u_1"}}`))
	assert.ErrorIs(t, err, ErrMissingEventType)

	_, err = ParseEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestPrimaryEmailMissing(t *testing.T) {
	tests := []struct {
		name string
		data UserEventData
	}{
		{"no addresses", UserEventData{ID: "u_1", PrimaryEmailAddressID: "e1"}},
		{"primary id not in list", UserEventData{
			ID:                    "u_1",
			EmailAddresses:        []EmailAddress{{ID: "e2", EmailAddress: "x@y.com"}},
			PrimaryEmailAddressID: "e1",
		}},
		{"primary address empty", UserEventData{
			ID:                    "u_1",
			EmailAddresses:        []EmailAddress{{ID: "e1", EmailAddress: ""}},
			PrimaryEmailAddressID: "e1",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tt.data.PrimaryEmail()
			assert.False(t, ok)
		})
	}
}

func TestParseEmailEventData(t *testing.T) {
	raw := []byte(`{
		"id": "email_123",
		"to_email_address": "a@b.com",
		"data": {"otp_code": "424242"}
	}`)

	data, err := ParseEmailEventData(raw)
	require.NoError(t, err)
	assert.Equal(t, "email_123", data.ID)
	assert.Equal(t, "424242", data.Data.OTPCode)

	_, err = ParseEmailEventData([]byte(`{"to_email_address":"a@b.com"}`))
	assert.Error(t, err)
}
