package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/algomatic/backend/internal/pkg/datalayer"
)

// Reconciler applies payment-processor webhook events to the data layer.
// Every mutation is an idempotent overwrite keyed by the processor's own id,
// so redelivered events converge on the same row state.
type Reconciler struct {
	exec datalayer.Executor
}

func NewReconciler(exec datalayer.Executor) *Reconciler {
	return &Reconciler{exec: exec}
}

const upsertSubscriptionMutation = `
mutation UpsertSubscription($object: subscriptions_insert_input!) {
  insert_subscriptions_one(
    object: $object
    on_conflict: {constraint: subscriptions_stripe_subscription_id_key, update_columns: [status, price_id, current_period_end, cancel_at_period_end]}
  ) {
    id
  }
}`

const updateSubscriptionMutation = `
mutation UpdateSubscription($stripeSubscriptionId: String!, $changes: subscriptions_set_input!) {
  update_subscriptions(
    where: {stripe_subscription_id: {_eq: $stripeSubscriptionId}}
    _set: $changes
  ) {
    affected_rows
  }
}`

const updatePaymentMutation = `
mutation UpdatePayment($stripePaymentIntentId: String!, $changes: payments_set_input!) {
  update_payments(
    where: {stripe_payment_intent_id: {_eq: $stripePaymentIntentId}}
    _set: $changes
  ) {
    affected_rows
  }
}`

// ApplySubscriptionCreated records a new subscription. An upsert rather than
// a plain insert because the synchronous create path may have written the
// row before the webhook arrives.
func (r *Reconciler) ApplySubscriptionCreated(ctx context.Context, sub *stripe.Subscription) error {
	object := map[string]interface{}{
		"stripe_subscription_id": sub.ID,
		"status":                 string(sub.Status),
		"price_id":               subscriptionPriceID(sub),
		"cancel_at_period_end":   sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		object["stripe_customer_id"] = sub.Customer.ID
	}
	if end := subscriptionPeriodEnd(sub); end != "" {
		object["current_period_end"] = end
	}

	_, err := r.exec.ExecuteQuery(ctx, upsertSubscriptionMutation, map[string]interface{}{"object": object})
	if err != nil {
		return fmt.Errorf("subscription upsert failed: %w", err)
	}
	return nil
}

func (r *Reconciler) ApplySubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	changes := map[string]interface{}{
		"status":               string(sub.Status),
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
	}
	if priceID := subscriptionPriceID(sub); priceID != "" {
		changes["price_id"] = priceID
	}
	if end := subscriptionPeriodEnd(sub); end != "" {
		changes["current_period_end"] = end
	}
	return r.updateSubscription(ctx, sub.ID, changes)
}

func (r *Reconciler) ApplySubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	return r.updateSubscription(ctx, sub.ID, map[string]interface{}{
		"status": "canceled",
	})
}

func (r *Reconciler) ApplyPaymentSucceeded(ctx context.Context, intent *stripe.PaymentIntent) error {
	return r.updatePayment(ctx, intent.ID, map[string]interface{}{
		"status": "succeeded",
	})
}

func (r *Reconciler) ApplyPaymentFailed(ctx context.Context, intent *stripe.PaymentIntent) error {
	changes := map[string]interface{}{
		"status": "failed",
	}
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		changes["error_message"] = intent.LastPaymentError.Msg
	}
	return r.updatePayment(ctx, intent.ID, changes)
}

func (r *Reconciler) updateSubscription(ctx context.Context, stripeSubscriptionID string, changes map[string]interface{}) error {
	data, err := r.exec.ExecuteQuery(ctx, updateSubscriptionMutation, map[string]interface{}{
		"stripeSubscriptionId": stripeSubscriptionID,
		"changes":              changes,
	})
	if err != nil {
		return fmt.Errorf("subscription update failed: %w", err)
	}
	rows, err := datalayer.AffectedRows(data, "update_subscriptions")
	if err != nil {
		return err
	}
	if rows == 0 {
		// Event for a subscription this service never recorded. Nothing to
		// reconcile, the redelivery will be a no-op too.
		log.Infof("[Payments] Update for unknown subscription %s ignored", stripeSubscriptionID)
	}
	return nil
}

func (r *Reconciler) updatePayment(ctx context.Context, stripePaymentIntentID string, changes map[string]interface{}) error {
	data, err := r.exec.ExecuteQuery(ctx, updatePaymentMutation, map[string]interface{}{
		"stripePaymentIntentId": stripePaymentIntentID,
		"changes":               changes,
	})
	if err != nil {
		return fmt.Errorf("payment update failed: %w", err)
	}
	rows, err := datalayer.AffectedRows(data, "update_payments")
	if err != nil {
		return err
	}
	if rows == 0 {
		log.Infof("[Payments] Update for unknown payment intent %s ignored", stripePaymentIntentID)
	}
	return nil
}

// UnmarshalSubscription decodes the raw event object of a subscription event.
func UnmarshalSubscription(raw json.RawMessage) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// UnmarshalPaymentIntent decodes the raw event object of a payment event.
func UnmarshalPaymentIntent(raw json.RawMessage) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	item := sub.Items.Data[0]
	if item.Price == nil {
		return ""
	}
	return item.Price.ID
}

func subscriptionPeriodEnd(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	end := sub.Items.Data[0].CurrentPeriodEnd
	if end == 0 {
		return ""
	}
	return time.Unix(end, 0).UTC().Format(time.RFC3339)
}
