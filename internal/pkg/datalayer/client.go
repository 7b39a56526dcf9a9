package datalayer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/algomatic/backend/internal/pkg/env"
)

// Executor is the outbound query capability consumers depend on. The client
// below is the production implementation; tests substitute fakes.
type Executor interface {
	ExecuteQuery(ctx context.Context, query string, variables map[string]interface{}) (json.RawMessage, error)
}

// Client talks to the managed GraphQL data layer using admin credentials.
type Client struct {
	Endpoint    string
	AdminSecret string

	HTTPClient *http.Client
}

// QueryError carries GraphQL-level errors returned with a 200 response.
type QueryError struct {
	Messages []string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("data layer query failed: %s", strings.Join(e.Messages, "; "))
}

func NewClientFromEnv() *Client {
	return &Client{
		Endpoint:    strings.TrimSpace(env.MustGetEnv("DATALAYER_GRAPHQL_ENDPOINT")),
		AdminSecret: strings.TrimSpace(env.MustGetEnv("DATALAYER_ADMIN_SECRET")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ExecuteQuery posts a GraphQL document with variables and returns the raw
// "data" object. GraphQL errors are returned as *QueryError so callers can
// distinguish them from transport failures.
func (c *Client) ExecuteQuery(ctx context.Context, query string, variables map[string]interface{}) (json.RawMessage, error) {
	if strings.TrimSpace(c.Endpoint) == "" {
		return nil, errors.New("DATALAYER_GRAPHQL_ENDPOINT is not configured")
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AdminSecret != "" {
		req.Header.Set("x-hasura-admin-secret", c.AdminSecret)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("data layer request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var raw struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if len(raw.Errors) > 0 {
		qerr := &QueryError{}
		for _, e := range raw.Errors {
			qerr.Messages = append(qerr.Messages, e.Message)
		}
		return nil, qerr
	}
	return raw.Data, nil
}

// AffectedRows extracts the affected_rows count of a named mutation result
// from a raw "data" object.
func AffectedRows(data json.RawMessage, field string) (int, error) {
	var payload map[string]struct {
		AffectedRows int `json:"affected_rows"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, err
	}
	result, ok := payload[field]
	if !ok {
		return 0, fmt.Errorf("data layer response missing field %s", field)
	}
	return result.AffectedRows, nil
}
