package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/algomatic/backend/internal/pkg/env"
)

// Client wraps the payment processor SDK with the narrow operations this
// service needs. All methods take a context and return provider errors as-is
// so callers can decide between compensation and retry.
type Client struct {
	api           *client.API
	webhookSecret string
}

func NewClientFromEnv() *Client {
	api := &client.API{}
	api.Init(strings.TrimSpace(env.MustGetEnv("STRIPE_SECRET_KEY")), nil)

	return &Client{
		api:           api,
		webhookSecret: strings.TrimSpace(env.MustGetEnv("STRIPE_WEBHOOK_SECRET")),
	}
}

// FindOrCreateCustomer returns the billing customer for the given email,
// creating one when none exists. The created flag tells callers whether this
// invocation created the customer; only then may a failed downstream step
// delete it as compensation.
func (c *Client) FindOrCreateCustomer(ctx context.Context, userID, email string) (string, bool, error) {
	if strings.TrimSpace(email) == "" {
		return "", false, errors.New("customer email is required")
	}

	listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)
	iter := c.api.Customers.List(listParams)
	for iter.Next() {
		return iter.Customer().ID, false, nil
	}
	if err := iter.Err(); err != nil {
		return "", false, err
	}

	createParams := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
	}
	createParams.AddMetadata("user_id", userID)
	cus, err := c.api.Customers.New(createParams)
	if err != nil {
		return "", false, err
	}
	return cus.ID, true, nil
}

func (c *Client) DeleteCustomer(ctx context.Context, customerID string) error {
	if strings.TrimSpace(customerID) == "" {
		return errors.New("customer id is required")
	}
	_, err := c.api.Customers.Del(customerID, &stripe.CustomerParams{Params: stripe.Params{Context: ctx}})
	return err
}

func (c *Client) CreateSubscription(ctx context.Context, customerID, priceID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	return c.api.Subscriptions.New(params)
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	return c.api.Subscriptions.Cancel(subscriptionID, &stripe.SubscriptionCancelParams{
		Params: stripe.Params{Context: ctx},
	})
}

// PauseSubscription stops collection without cancelling. Invoices raised
// while paused are marked uncollectible.
func (c *Client) PauseSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String("mark_uncollectible"),
		},
	}
	return c.api.Subscriptions.Update(subscriptionID, params)
}

func (c *Client) ResumeSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
	// Clearing pause_collection resumes normal collection.
	params.AddExtra("pause_collection", "")
	return c.api.Subscriptions.Update(subscriptionID, params)
}

func (c *Client) CreatePaymentIntent(ctx context.Context, customerID string, amount int64, currency string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	return c.api.PaymentIntents.New(params)
}

func (c *Client) RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.Get(paymentIntentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
}

func (c *Client) ConfirmPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.PaymentIntent, error) {
	return c.api.PaymentIntents.Confirm(paymentIntentID, &stripe.PaymentIntentConfirmParams{
		Params: stripe.Params{Context: ctx},
	})
}

func (c *Client) RefundPayment(ctx context.Context, paymentIntentID string) (*stripe.Refund, error) {
	return c.api.Refunds.New(&stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(paymentIntentID),
	})
}

func (c *Client) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
		Mode:   stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	return c.api.CheckoutSessions.New(params)
}

// ConstructEvent verifies a payments webhook delivery against the raw body
// and signature header. Verification is delegated to the SDK.
func (c *Client) ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
