package controllers

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/algomatic/backend/internal/pkg/payments"
)

type stubProvider struct {
	canceled []string
	paused   []string
	resumed  []string
	refunded []string
	err      error
}

func (s *stubProvider) CreatePaymentIntent(_ context.Context, customerID string, amount int64, currency string) (*stripe.PaymentIntent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &stripe.PaymentIntent{
		ID:           "pi_test",
		Amount:       amount,
		Currency:     stripe.Currency(currency),
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
		ClientSecret: "pi_test_secret",
	}, nil
}

func (s *stubProvider) CreateSubscription(_ context.Context, customerID, priceID string) (*stripe.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &stripe.Subscription{ID: "sub_test", Status: stripe.SubscriptionStatusIncomplete}, nil
}

func (s *stubProvider) CancelSubscription(_ context.Context, subscriptionID string) (*stripe.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.canceled = append(s.canceled, subscriptionID)
	return &stripe.Subscription{ID: subscriptionID, Status: stripe.SubscriptionStatusCanceled}, nil
}

func (s *stubProvider) PauseSubscription(_ context.Context, subscriptionID string) (*stripe.Subscription, error) {
	s.paused = append(s.paused, subscriptionID)
	return &stripe.Subscription{ID: subscriptionID, Status: stripe.SubscriptionStatusActive}, nil
}

func (s *stubProvider) ResumeSubscription(_ context.Context, subscriptionID string) (*stripe.Subscription, error) {
	s.resumed = append(s.resumed, subscriptionID)
	return &stripe.Subscription{ID: subscriptionID, Status: stripe.SubscriptionStatusActive}, nil
}

func (s *stubProvider) RefundPayment(_ context.Context, paymentIntentID string) (*stripe.Refund, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.refunded = append(s.refunded, paymentIntentID)
	return &stripe.Refund{ID: "re_test", Status: stripe.RefundStatusSucceeded}, nil
}

func (s *stubProvider) CreateCheckoutSession(_ context.Context, customerID, priceID, successURL, cancelURL string) (*stripe.CheckoutSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &stripe.CheckoutSession{ID: "cs_test", URL: "https://checkout.example.com/cs_test"}, nil
}

func newPaymentsTestApp(provider *stubProvider, exec *stubExecutor) *fiber.App {
	InitializePaymentsController(payments.NewService(provider, exec))

	app := fiber.New()
	app.Post("/api/v1/payments", HandleCreatePayment)
	app.Post("/api/v1/payments/refund", HandleRefundPayment)
	app.Post("/api/v1/payments/checkout", HandleCreateCheckoutSession)
	app.Post("/api/v1/subscriptions", HandleCreateSubscription)
	app.Delete("/api/v1/subscriptions/:id", HandleCancelSubscription)
	app.Post("/api/v1/subscriptions/:id/pause", HandlePauseSubscription)
	app.Post("/api/v1/subscriptions/:id/resume", HandleResumeSubscription)
	return app
}

func TestCreatePaymentEndpoint(t *testing.T) {
	provider := &stubProvider{}
	exec := &stubExecutor{}
	app := newPaymentsTestApp(provider, exec)

	req := newJSONRequest("POST", "/api/v1/payments", bytes.NewReader([]byte(`{
		"userId": "user_1",
		"customerId": "cus_1",
		"amount": 1999,
		"currency": "eur"
	}`)))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp.Body)
	assert.Equal(t, "pi_test", payload["id"])
	assert.Equal(t, "pi_test_secret", payload["client_secret"])

	require.Len(t, exec.queries, 1)
	assert.Contains(t, exec.queries[0], "insert_payments_one")
}

func TestCreatePaymentValidation(t *testing.T) {
	app := newPaymentsTestApp(&stubProvider{}, &stubExecutor{})

	req := newJSONRequest("POST", "/api/v1/payments", bytes.NewReader([]byte(`{
		"userId": "user_1",
		"amount": -5,
		"currency": "eur"
	}`)))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRefundEndpoint(t *testing.T) {
	provider := &stubProvider{}
	exec := &stubExecutor{}
	app := newPaymentsTestApp(provider, exec)

	req := newJSONRequest("POST", "/api/v1/payments/refund", bytes.NewReader([]byte(`{"paymentIntentId": "pi_9"}`)))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"pi_9"}, provider.refunded)

	// The refund is mirrored into the data layer.
	require.Len(t, exec.queries, 1)
	assert.Contains(t, exec.queries[0], "update_payments")
}

func TestCancelSubscriptionEndpoint(t *testing.T) {
	provider := &stubProvider{}
	exec := &stubExecutor{}
	app := newPaymentsTestApp(provider, exec)

	req := newJSONRequest("DELETE", "/api/v1/subscriptions/sub_7", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"sub_7"}, provider.canceled)

	payload := decodeBody(t, resp.Body)
	assert.Equal(t, true, payload["canceled"])
}

func TestPauseAndResumeSubscriptionEndpoints(t *testing.T) {
	provider := &stubProvider{}
	app := newPaymentsTestApp(provider, &stubExecutor{})

	resp, err := app.Test(newJSONRequest("POST", "/api/v1/subscriptions/sub_7/pause", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(newJSONRequest("POST", "/api/v1/subscriptions/sub_7/resume", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"sub_7"}, provider.paused)
	assert.Equal(t, []string{"sub_7"}, provider.resumed)
}

func TestProviderFailureMapsToServerError(t *testing.T) {
	provider := &stubProvider{err: errors.New("provider unavailable")}
	app := newPaymentsTestApp(provider, &stubExecutor{})

	req := newJSONRequest("POST", "/api/v1/payments/checkout", bytes.NewReader([]byte(`{
		"priceId": "price_1",
		"successUrl": "https://app.example.com/ok",
		"cancelUrl": "https://app.example.com/cancel"
	}`)))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
