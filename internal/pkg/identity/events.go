package identity

import (
	"encoding/json"
	"errors"
	"strings"
)

// Event types delivered by the identity provider that this service handles.
// Anything else is acknowledged and ignored.
const (
	EventUserCreated  = "user.created"
	EventUserUpdated  = "user.updated"
	EventUserDeleted  = "user.deleted"
	EventEmailCreated = "email.created"
)

var ErrMissingEventType = errors.New("identity event envelope missing type")

// Envelope is the outer shape of every identity webhook payload. Data stays
// raw until the event type is known.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func ParseEnvelope(rawBody []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, err
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, ErrMissingEventType
	}
	return &env, nil
}

// EmailAddress is one entry of a user's email address list.
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// UserEventData is the payload of user.* events.
type UserEventData struct {
	ID                    string          `json:"id"`
	EmailAddresses        []EmailAddress  `json:"email_addresses"`
	PrimaryEmailAddressID string          `json:"primary_email_address_id"`
	FirstName             string          `json:"first_name"`
	LastName              string          `json:"last_name"`
	ImageURL              string          `json:"image_url"`
	PublicMetadata        json.RawMessage `json:"public_metadata"`
}

// PrimaryEmail resolves the address referenced by primary_email_address_id.
func (d *UserEventData) PrimaryEmail() (string, bool) {
	for _, addr := range d.EmailAddresses {
		if addr.ID == d.PrimaryEmailAddressID && addr.EmailAddress != "" {
			return addr.EmailAddress, true
		}
	}
	return "", false
}

// EmailEventData is the payload of email.created events. The provider embeds
// the one-time code it rendered into the message body.
type EmailEventData struct {
	ID             string `json:"id"`
	ToEmailAddress string `json:"to_email_address"`
	Data           struct {
		OTPCode string `json:"otp_code"`
	} `json:"data"`
}

func ParseUserEventData(data json.RawMessage) (*UserEventData, error) {
	var out UserEventData
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("identity user event missing user id")
	}
	return &out, nil
}

func ParseEmailEventData(data json.RawMessage) (*EmailEventData, error) {
	var out EmailEventData
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("identity email event missing email id")
	}
	return &out, nil
}
