package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/algomatic/backend/internal/pkg/jobqueue"
	"github.com/algomatic/backend/internal/pkg/payments"
)

// EventConstructor verifies a payment-provider webhook payload and returns
// the decoded event. Implemented by the billing client.
type EventConstructor interface {
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

// paymentRetryQueue is the producer slice for queuing failed-payment retries.
type paymentRetryQueue interface {
	AddPaymentRetry(paymentIntentID, userID string) (*jobqueue.Job, error)
}

// PaymentsWebhookController receives provider webhooks and feeds the
// reconciler so the data-layer rows converge with the provider state.
type PaymentsWebhookController struct {
	events EventConstructor
	recon  *payments.Reconciler
	queue  paymentRetryQueue
}

var paymentsWebhookController *PaymentsWebhookController

func InitializePaymentsWebhookController(events EventConstructor, recon *payments.Reconciler, queue paymentRetryQueue) {
	paymentsWebhookController = &PaymentsWebhookController{events: events, recon: recon, queue: queue}
}

// HandlePaymentsWebhook processes POST /webhooks/payments.
func HandlePaymentsWebhook(c *fiber.Ctx) error {
	return paymentsWebhookController.handle(c)
}

func (pc *PaymentsWebhookController) handle(c *fiber.Ctx) error {
	event, err := pc.events.ConstructEvent(c.BodyRaw(), c.Get("payment-signature"))
	if err != nil {
		log.Warnf("[PaymentsWebhook] Rejected delivery: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctx := c.UserContext()

	switch event.Type {
	case "customer.subscription.created":
		sub, err := payments.UnmarshalSubscription(event.Data.Raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := pc.recon.ApplySubscriptionCreated(ctx, sub); err != nil {
			return pc.reconcileError(c, event.Type, err)
		}

	case "customer.subscription.updated":
		sub, err := payments.UnmarshalSubscription(event.Data.Raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := pc.recon.ApplySubscriptionUpdated(ctx, sub); err != nil {
			return pc.reconcileError(c, event.Type, err)
		}

	case "customer.subscription.deleted":
		sub, err := payments.UnmarshalSubscription(event.Data.Raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := pc.recon.ApplySubscriptionDeleted(ctx, sub); err != nil {
			return pc.reconcileError(c, event.Type, err)
		}

	case "payment_intent.succeeded":
		intent, err := payments.UnmarshalPaymentIntent(event.Data.Raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := pc.recon.ApplyPaymentSucceeded(ctx, intent); err != nil {
			return pc.reconcileError(c, event.Type, err)
		}

	case "payment_intent.payment_failed":
		intent, err := payments.UnmarshalPaymentIntent(event.Data.Raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := pc.recon.ApplyPaymentFailed(ctx, intent); err != nil {
			return pc.reconcileError(c, event.Type, err)
		}
		// Retry is best effort; the row already records the failure and the
		// provider must not redeliver because queuing hiccuped.
		if pc.queue != nil {
			if _, err := pc.queue.AddPaymentRetry(intent.ID, intent.Metadata["user_id"]); err != nil {
				log.Errorf("[PaymentsWebhook] Failed to queue payment retry for %s: %v", intent.ID, err)
			}
		}

	default:
		log.Infof("[PaymentsWebhook] Ignoring unhandled event type %s", event.Type)
		return c.JSON(fiber.Map{"status": "ignored", "type": string(event.Type)})
	}

	return c.JSON(fiber.Map{"received": true})
}

func (pc *PaymentsWebhookController) reconcileError(c *fiber.Ctx, eventType stripe.EventType, err error) error {
	log.Errorf("[PaymentsWebhook] Reconciling %s failed: %v", eventType, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
