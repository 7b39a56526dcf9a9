package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"

	"github.com/algomatic/backend/internal/pkg/datalayer"
)

// Provider is the slice of the billing client the payment service needs.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, customerID string, amount int64, currency string) (*stripe.PaymentIntent, error)
	CreateSubscription(ctx context.Context, customerID, priceID string) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	PauseSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	ResumeSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	RefundPayment(ctx context.Context, paymentIntentID string) (*stripe.Refund, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (*stripe.CheckoutSession, error)
}

// Service is the synchronous pass-through path: call the payment processor,
// then record the result in the data layer. The webhook reconciler keeps the
// rows converged afterwards.
type Service struct {
	provider Provider
	exec     datalayer.Executor
	recon    *Reconciler
}

func NewService(provider Provider, exec datalayer.Executor) *Service {
	return &Service{provider: provider, exec: exec, recon: NewReconciler(exec)}
}

type CreatePaymentInput struct {
	UserID     string `json:"userId" validate:"required"`
	CustomerID string `json:"customerId"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	Currency   string `json:"currency" validate:"required,len=3"`
}

type CreateSubscriptionInput struct {
	UserID     string `json:"userId" validate:"required"`
	CustomerID string `json:"customerId" validate:"required"`
	PriceID    string `json:"priceId" validate:"required"`
}

type CheckoutInput struct {
	CustomerID string `json:"customerId"`
	PriceID    string `json:"priceId" validate:"required"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

const insertPaymentMutation = `
mutation InsertPayment($object: payments_insert_input!) {
  insert_payments_one(
    object: $object
    on_conflict: {constraint: payments_stripe_payment_intent_id_key, update_columns: [status, amount]}
  ) {
    id
  }
}`

// CreatePayment creates a payment intent and records the pending payment.
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (*stripe.PaymentIntent, error) {
	intent, err := s.provider.CreatePaymentIntent(ctx, in.CustomerID, in.Amount, in.Currency)
	if err != nil {
		return nil, fmt.Errorf("payment intent creation failed: %w", err)
	}

	object := map[string]interface{}{
		"stripe_payment_intent_id": intent.ID,
		"user_id":                  in.UserID,
		"amount":                   intent.Amount,
		"currency":                 string(intent.Currency),
		"status":                   string(intent.Status),
	}
	if _, err := s.exec.ExecuteQuery(ctx, insertPaymentMutation, map[string]interface{}{"object": object}); err != nil {
		return nil, fmt.Errorf("payment persist failed: %w", err)
	}
	return intent, nil
}

// CreateSubscription creates the provider subscription and records it with
// the owning user attached.
func (s *Service) CreateSubscription(ctx context.Context, in CreateSubscriptionInput) (*stripe.Subscription, error) {
	sub, err := s.provider.CreateSubscription(ctx, in.CustomerID, in.PriceID)
	if err != nil {
		return nil, fmt.Errorf("subscription creation failed: %w", err)
	}

	object := map[string]interface{}{
		"stripe_subscription_id": sub.ID,
		"stripe_customer_id":     in.CustomerID,
		"user_id":                in.UserID,
		"status":                 string(sub.Status),
		"price_id":               in.PriceID,
	}
	if end := subscriptionPeriodEnd(sub); end != "" {
		object["current_period_end"] = end
	}
	if _, err := s.exec.ExecuteQuery(ctx, upsertSubscriptionMutation, map[string]interface{}{"object": object}); err != nil {
		return nil, fmt.Errorf("subscription persist failed: %w", err)
	}
	return sub, nil
}

// CancelSubscription cancels at the provider and marks the row canceled
// right away instead of waiting for the deletion webhook.
func (s *Service) CancelSubscription(ctx context.Context, subscriptionID string) error {
	sub, err := s.provider.CancelSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("subscription cancel failed: %w", err)
	}
	return s.recon.ApplySubscriptionDeleted(ctx, sub)
}

func (s *Service) PauseSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	return s.provider.PauseSubscription(ctx, subscriptionID)
}

func (s *Service) ResumeSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	return s.provider.ResumeSubscription(ctx, subscriptionID)
}

// RefundPayment refunds the full payment and records the new status.
func (s *Service) RefundPayment(ctx context.Context, paymentIntentID string) (*stripe.Refund, error) {
	if paymentIntentID == "" {
		return nil, errors.New("payment intent id is required")
	}
	refund, err := s.provider.RefundPayment(ctx, paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("refund failed: %w", err)
	}
	if err := s.recon.updatePayment(ctx, paymentIntentID, map[string]interface{}{"status": "refunded"}); err != nil {
		return nil, err
	}
	return refund, nil
}

func (s *Service) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*stripe.CheckoutSession, error) {
	return s.provider.CreateCheckoutSession(ctx, in.CustomerID, in.PriceID, in.SuccessURL, in.CancelURL)
}
