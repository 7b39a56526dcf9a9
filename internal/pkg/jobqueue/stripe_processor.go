package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
)

// PaymentRetrier is the slice of the billing client the stripe queue needs.
type PaymentRetrier interface {
	RetrievePaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.PaymentIntent, error)
}

// paymentRetryProcessor re-checks a payment intent and attempts another
// confirmation. A still-failing confirmation surfaces as an error so the
// queue's backoff drives the next retry.
func paymentRetryProcessor(payments PaymentRetrier) ProcessorFunc {
	return func(ctx context.Context, job *JobContext) error {
		payload, err := PaymentRetryPayloadFromMap(job.Payload())
		if err != nil {
			return err
		}
		if payload.PaymentIntentID == "" {
			return errors.New("retry-payment job missing payment intent id")
		}

		intent, err := payments.RetrievePaymentIntent(ctx, payload.PaymentIntentID)
		if err != nil {
			return err
		}

		switch intent.Status {
		case stripe.PaymentIntentStatusSucceeded:
			log.Infof("[JobQueue:stripe] Payment %s already succeeded, nothing to retry", intent.ID)
			return nil
		case stripe.PaymentIntentStatusCanceled:
			log.Infof("[JobQueue:stripe] Payment %s canceled, abandoning retry", intent.ID)
			return nil
		}

		confirmed, err := payments.ConfirmPaymentIntent(ctx, payload.PaymentIntentID)
		if err != nil {
			return err
		}
		if confirmed.Status != stripe.PaymentIntentStatusSucceeded {
			return fmt.Errorf("payment %s still in status %s after confirmation", confirmed.ID, confirmed.Status)
		}
		return nil
	}
}
