package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/algomatic/backend/internal/pkg/datalayer"
	"github.com/algomatic/backend/internal/pkg/identity"
)

var (
	// ErrMissingPrimaryEmail is returned before any billing side effect when
	// the inbound payload has no resolvable primary email address.
	ErrMissingPrimaryEmail = errors.New("user payload has no primary email address")

	ErrUserNotFound = errors.New("user not found")
)

// Customers is the slice of the billing client the saga depends on.
type Customers interface {
	FindOrCreateCustomer(ctx context.Context, userID, email string) (string, bool, error)
	DeleteCustomer(ctx context.Context, customerID string) error
}

// User is the projection of a user row in the data layer.
type User struct {
	ID                string          `json:"id"`
	Email             string          `json:"email"`
	EmailVerified     bool            `json:"email_verified"`
	AvatarURL         string          `json:"avatar_url"`
	BillingCustomerID string          `json:"billing_customer_id"`
	Metadata          json.RawMessage `json:"metadata"`
}

// ProvisionInput drives one run of the provisioning saga.
type ProvisionInput struct {
	ID                    string
	Email                 string
	EmailVerified         bool
	AvatarURL             string
	Metadata              json.RawMessage
	CreateBillingCustomer bool
}

// Service owns user rows in the data layer and the create-user saga.
type Service struct {
	exec      datalayer.Executor
	customers Customers
}

func NewService(exec datalayer.Executor, customers Customers) *Service {
	return &Service{exec: exec, customers: customers}
}

const upsertUserMutation = `
mutation UpsertUser($object: users_insert_input!) {
  insert_users_one(
    object: $object
    on_conflict: {constraint: users_pkey, update_columns: [email, email_verified, avatar_url, metadata, billing_customer_id]}
  ) {
    id
    email
    email_verified
    avatar_url
    billing_customer_id
    metadata
  }
}`

const deleteUserMutation = `
mutation DeleteUser($id: String!) {
  delete_users_by_pk(id: $id) {
    id
  }
}`

const userByIDQuery = `
query UserByID($id: String!) {
  users_by_pk(id: $id) {
    id
    email
    email_verified
    avatar_url
    billing_customer_id
    metadata
  }
}`

const userByEmailQuery = `
query UserByEmail($email: String!) {
  users(where: {email: {_eq: $email}}, limit: 1) {
    id
    email
    email_verified
    avatar_url
    billing_customer_id
    metadata
  }
}`

const updateUserMetadataMutation = `
mutation UpdateUserMetadata($id: String!, $metadata: jsonb!) {
  update_users_by_pk(pk_columns: {id: $id}, _set: {metadata: $metadata}) {
    id
    email
    email_verified
    avatar_url
    billing_customer_id
    metadata
  }
}`

// ProvisionUser runs the create-user saga: optionally find-or-create a
// billing customer, then upsert the user row. When the upsert fails and the
// billing customer was created by this very invocation it is deleted again,
// so a redelivered webhook can rerun the whole saga from a clean slate. A
// customer that already existed is never deleted.
func (s *Service) ProvisionUser(ctx context.Context, in ProvisionInput) (*User, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, errors.New("user id is required")
	}
	if strings.TrimSpace(in.Email) == "" {
		return nil, ErrMissingPrimaryEmail
	}

	customerID := ""
	customerCreated := false
	if in.CreateBillingCustomer {
		var err error
		customerID, customerCreated, err = s.customers.FindOrCreateCustomer(ctx, in.ID, in.Email)
		if err != nil {
			return nil, fmt.Errorf("billing customer lookup failed: %w", err)
		}
	}

	object := map[string]interface{}{
		"id":             in.ID,
		"email":          in.Email,
		"email_verified": in.EmailVerified,
		"avatar_url":     in.AvatarURL,
		"metadata":       metadataValue(in.Metadata),
	}
	if customerID != "" {
		object["billing_customer_id"] = customerID
	}

	data, err := s.exec.ExecuteQuery(ctx, upsertUserMutation, map[string]interface{}{"object": object})
	if err != nil {
		if customerCreated {
			if delErr := s.customers.DeleteCustomer(ctx, customerID); delErr != nil {
				log.Errorf("[Users] Compensation failed, billing customer %s is orphaned: %v", customerID, delErr)
			} else {
				log.Infof("[Users] Rolled back billing customer %s after persist failure", customerID)
			}
		}
		return nil, fmt.Errorf("user upsert failed: %w", err)
	}

	var result struct {
		InsertUsersOne *User `json:"insert_users_one"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	if result.InsertUsersOne == nil {
		return nil, errors.New("user upsert returned no row")
	}
	return result.InsertUsersOne, nil
}

// HandleUserCreated translates a user.created event into a saga run. The
// primary-email check happens first so invalid payloads never reach billing.
func (s *Service) HandleUserCreated(ctx context.Context, data *identity.UserEventData) (*User, error) {
	email, ok := data.PrimaryEmail()
	if !ok {
		return nil, ErrMissingPrimaryEmail
	}
	return s.ProvisionUser(ctx, ProvisionInput{
		ID:                    data.ID,
		Email:                 email,
		EmailVerified:         true,
		AvatarURL:             data.ImageURL,
		Metadata:              data.PublicMetadata,
		CreateBillingCustomer: true,
	})
}

// HandleUserUpdated re-syncs profile fields. No billing customer is created
// here; the update upsert keeps whatever billing linkage exists.
func (s *Service) HandleUserUpdated(ctx context.Context, data *identity.UserEventData) (*User, error) {
	email, ok := data.PrimaryEmail()
	if !ok {
		return nil, ErrMissingPrimaryEmail
	}
	return s.ProvisionUser(ctx, ProvisionInput{
		ID:            data.ID,
		Email:         email,
		EmailVerified: true,
		AvatarURL:     data.ImageURL,
		Metadata:      data.PublicMetadata,
	})
}

// HandleUserDeleted removes the user row. A missing row is a no-op so
// redelivered deletions stay idempotent.
func (s *Service) HandleUserDeleted(ctx context.Context, userID string) error {
	data, err := s.exec.ExecuteQuery(ctx, deleteUserMutation, map[string]interface{}{"id": userID})
	if err != nil {
		return fmt.Errorf("user delete failed: %w", err)
	}
	var result struct {
		DeleteUsersByPk *struct {
			ID string `json:"id"`
		} `json:"delete_users_by_pk"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}
	if result.DeleteUsersByPk == nil {
		log.Infof("[Users] Delete for unknown user %s ignored", userID)
	}
	return nil
}

func (s *Service) FindByID(ctx context.Context, userID string) (*User, error) {
	data, err := s.exec.ExecuteQuery(ctx, userByIDQuery, map[string]interface{}{"id": userID})
	if err != nil {
		return nil, err
	}
	var result struct {
		UsersByPk *User `json:"users_by_pk"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	if result.UsersByPk == nil {
		return nil, ErrUserNotFound
	}
	return result.UsersByPk, nil
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	data, err := s.exec.ExecuteQuery(ctx, userByEmailQuery, map[string]interface{}{"email": email})
	if err != nil {
		return nil, err
	}
	var result struct {
		Users []User `json:"users"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	if len(result.Users) == 0 {
		return nil, ErrUserNotFound
	}
	return &result.Users[0], nil
}

func (s *Service) UpdateMetadata(ctx context.Context, userID string, metadata json.RawMessage) (*User, error) {
	data, err := s.exec.ExecuteQuery(ctx, updateUserMetadataMutation, map[string]interface{}{
		"id":       userID,
		"metadata": metadataValue(metadata),
	})
	if err != nil {
		return nil, err
	}
	var result struct {
		UpdateUsersByPk *User `json:"update_users_by_pk"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	if result.UpdateUsersByPk == nil {
		return nil, ErrUserNotFound
	}
	return result.UpdateUsersByPk, nil
}

func metadataValue(metadata json.RawMessage) interface{} {
	if len(metadata) == 0 {
		return map[string]interface{}{}
	}
	return metadata
}
