package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algomatic/backend/internal/pkg/identity"
)

type fakeExecutor struct {
	failOn  string
	queries []string
}

func (f *fakeExecutor) ExecuteQuery(_ context.Context, query string, variables map[string]interface{}) (json.RawMessage, error) {
	f.queries = append(f.queries, query)

	if f.failOn != "" && strings.Contains(query, f.failOn) {
		return nil, errors.New("data layer unavailable")
	}

	switch {
	case strings.Contains(query, "insert_users_one"):
		object := variables["object"].(map[string]interface{})
		row := map[string]interface{}{
			"id":             object["id"],
			"email":          object["email"],
			"email_verified": object["email_verified"],
			"avatar_url":     object["avatar_url"],
			"metadata":       map[string]interface{}{},
		}
		if cid, ok := object["billing_customer_id"]; ok {
			row["billing_customer_id"] = cid
		}
		return json.Marshal(map[string]interface{}{"insert_users_one": row})
	case strings.Contains(query, "delete_users_by_pk"):
		return json.RawMessage(`{"delete_users_by_pk":{"id":"u_1"}}`), nil
	default:
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
}

type fakeCustomers struct {
	existing map[string]string // email -> customer id
	created  []string
	deleted  []string
	failFind bool
}

func (f *fakeCustomers) FindOrCreateCustomer(_ context.Context, userID, email string) (string, bool, error) {
	if f.failFind {
		return "", false, errors.New("billing api down")
	}
	if id, ok := f.existing[email]; ok {
		return id, false, nil
	}
	id := "cus_" + userID
	f.created = append(f.created, id)
	return id, true, nil
}

func (f *fakeCustomers) DeleteCustomer(_ context.Context, customerID string) error {
	f.deleted = append(f.deleted, customerID)
	return nil
}

func userCreatedData() *identity.UserEventData {
	return &identity.UserEventData{
		ID: "u_1",
		EmailAddresses: []identity.EmailAddress{
			{ID: "e1", EmailAddress: "a@b.com"},
		},
		PrimaryEmailAddressID: "e1",
	}
}

func TestHandleUserCreatedProvisionsBillingCustomer(t *testing.T) {
	exec := &fakeExecutor{}
	customers := &fakeCustomers{}
	svc := NewService(exec, customers)

	user, err := svc.HandleUserCreated(context.Background(), userCreatedData())
	require.NoError(t, err)

	assert.Equal(t, "u_1", user.ID)
	assert.Equal(t, "a@b.com", user.Email)
	assert.NotEmpty(t, user.BillingCustomerID)
	assert.Equal(t, []string{"cus_u_1"}, customers.created)
	assert.Empty(t, customers.deleted)
}

func TestHandleUserCreatedMissingPrimaryEmail(t *testing.T) {
	exec := &fakeExecutor{}
	customers := &fakeCustomers{}
	svc := NewService(exec, customers)

	data := userCreatedData()
	data.PrimaryEmailAddressID = "e_other"

	_, err := svc.HandleUserCreated(context.Background(), data)
	assert.ErrorIs(t, err, ErrMissingPrimaryEmail)

	// The check precedes every side effect.
	assert.Empty(t, customers.created)
	assert.Empty(t, exec.queries)
}

func TestProvisionUserCompensatesCreatedCustomer(t *testing.T) {
	exec := &fakeExecutor{failOn: "insert_users_one"}
	customers := &fakeCustomers{}
	svc := NewService(exec, customers)

	_, err := svc.HandleUserCreated(context.Background(), userCreatedData())
	require.Error(t, err)

	assert.Equal(t, []string{"cus_u_1"}, customers.created)
	assert.Equal(t, []string{"cus_u_1"}, customers.deleted)
}

func TestProvisionUserNeverDeletesFoundCustomer(t *testing.T) {
	exec := &fakeExecutor{failOn: "insert_users_one"}
	customers := &fakeCustomers{existing: map[string]string{"a@b.com": "cus_preexisting"}}
	svc := NewService(exec, customers)

	_, err := svc.HandleUserCreated(context.Background(), userCreatedData())
	require.Error(t, err)

	assert.Empty(t, customers.created)
	assert.Empty(t, customers.deleted)
}

func TestProvisionUserBillingFailureStopsSaga(t *testing.T) {
	exec := &fakeExecutor{}
	customers := &fakeCustomers{failFind: true}
	svc := NewService(exec, customers)

	_, err := svc.HandleUserCreated(context.Background(), userCreatedData())
	require.Error(t, err)
	assert.Empty(t, exec.queries)
}

func TestHandleUserUpdatedSkipsBillingCustomer(t *testing.T) {
	exec := &fakeExecutor{}
	customers := &fakeCustomers{}
	svc := NewService(exec, customers)

	user, err := svc.HandleUserUpdated(context.Background(), userCreatedData())
	require.NoError(t, err)

	assert.Equal(t, "u_1", user.ID)
	assert.Empty(t, customers.created)
	assert.Empty(t, user.BillingCustomerID)
}

func TestHandleUserDeleted(t *testing.T) {
	exec := &fakeExecutor{}
	svc := NewService(exec, &fakeCustomers{})

	require.NoError(t, svc.HandleUserDeleted(context.Background(), "u_1"))
	require.Len(t, exec.queries, 1)
	assert.Contains(t, exec.queries[0], "delete_users_by_pk")
}
