package controllers

import (
	"bytes"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algomatic/backend/internal/pkg/users"
)

func newActionsTestApp(exec *stubExecutor, customers *stubCustomers) *fiber.App {
	InitializeActionsController(users.NewService(exec, customers))

	app := fiber.New()
	app.Post("/actions/create-user", HandleCreateUserAction)
	return app
}

func postAction(t *testing.T, app *fiber.App, body string) (int, map[string]interface{}) {
	t.Helper()

	req := newJSONRequest("POST", "/actions/create-user", bytes.NewReader([]byte(body)))
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode, decodeBody(t, resp.Body)
}

func TestCreateUserActionProvisionsUser(t *testing.T) {
	exec := &stubExecutor{}
	customers := &stubCustomers{}
	app := newActionsTestApp(exec, customers)

	status, payload := postAction(t, app, `{
		"action": {"name": "createUser"},
		"input": {
			"id": "user_1",
			"email": "ada@example.com",
			"emailVerified": true,
			"createBillingCustomer": true
		}
	}`)

	assert.Equal(t, fiber.StatusOK, status)
	user, ok := payload["user"].(map[string]interface{})
	require.True(t, ok, "expected a user object, got %v", payload)
	assert.Equal(t, "user_1", user["id"])
	assert.Equal(t, "ada@example.com", user["email"])
	assert.Equal(t, []string{"cus_user_1"}, customers.created)
}

func TestCreateUserActionValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing id", `{"input": {"email": "ada@example.com"}}`},
		{"missing email", `{"input": {"id": "user_1"}}`},
		{"malformed email", `{"input": {"id": "user_1", "email": "not-an-email"}}`},
		{"garbage body", `{"input": 42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &stubExecutor{}
			customers := &stubCustomers{}
			app := newActionsTestApp(exec, customers)

			status, payload := postAction(t, app, tt.body)

			// Action failures are a 200 with an error object so the data
			// layer relays the message instead of retrying the call.
			assert.Equal(t, fiber.StatusOK, status)
			errObj, ok := payload["error"].(map[string]interface{})
			require.True(t, ok, "expected an error object, got %v", payload)
			assert.NotEmpty(t, errObj["message"])
			assert.Empty(t, exec.queries)
			assert.Empty(t, customers.created)
		})
	}
}

func TestCreateUserActionServiceFailure(t *testing.T) {
	exec := &stubExecutor{failOn: "insert_users_one"}
	customers := &stubCustomers{}
	app := newActionsTestApp(exec, customers)

	status, payload := postAction(t, app, `{
		"input": {"id": "user_1", "email": "ada@example.com", "createBillingCustomer": true}
	}`)

	assert.Equal(t, fiber.StatusOK, status)
	errObj, ok := payload["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, errObj["message"], "user upsert failed")

	// The saga compensated the billing customer it created.
	assert.Equal(t, customers.created, customers.deleted)
}
