package datalayer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := &Client{
		Endpoint:    srv.URL,
		AdminSecret: "test-secret",
		HTTPClient:  &http.Client{Timeout: 2 * time.Second},
	}
	return client, srv
}

func TestExecuteQueryReturnsData(t *testing.T) {
	var gotSecret string
	var gotBody struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}

	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("x-hasura-admin-secret")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"users_by_pk":{"id":"u_1","email":"a@b.com"}}}`))
	})
	defer srv.Close()

	data, err := client.ExecuteQuery(context.Background(),
		"query ($id: String!) { users_by_pk(id: $id) { id email } }",
		map[string]interface{}{"id": "u_1"})
	require.NoError(t, err)

	assert.Equal(t, "test-secret", gotSecret)
	assert.Equal(t, "u_1", gotBody.Variables["id"])
	assert.JSONEq(t, `{"users_by_pk":{"id":"u_1","email":"a@b.com"}}`, string(data))
}

func TestExecuteQueryGraphQLErrors(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors":[{"message":"field 'userz' not found"}]}`))
	})
	defer srv.Close()

	_, err := client.ExecuteQuery(context.Background(), "query { userz }", nil)
	require.Error(t, err)

	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Contains(t, qerr.Messages, "field 'userz' not found")
}

func TestExecuteQueryTransportError(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer srv.Close()

	_, err := client.ExecuteQuery(context.Background(), "query { users { id } }", nil)
	require.Error(t, err)

	var qerr *QueryError
	assert.False(t, errors.As(err, &qerr))
	assert.Contains(t, err.Error(), "status=502")
}

func TestExecuteQueryRequiresEndpoint(t *testing.T) {
	client := &Client{HTTPClient: http.DefaultClient}
	_, err := client.ExecuteQuery(context.Background(), "query { users { id } }", nil)
	assert.Error(t, err)
}

func TestAffectedRows(t *testing.T) {
	data := json.RawMessage(`{"update_subscriptions":{"affected_rows":1}}`)

	n, err := AffectedRows(data, "update_subscriptions")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = AffectedRows(data, "update_payments")
	assert.Error(t, err)
}
