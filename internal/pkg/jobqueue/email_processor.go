package jobqueue

import (
	"context"
	"errors"
)

// Mailer is the slice of the mail package the email queue needs.
type Mailer interface {
	SendWelcomeEmail(to, firstName string) error
	SendSubscriptionExpiryEmail(to, expiryDate string) error
}

func welcomeEmailProcessor(mailer Mailer) ProcessorFunc {
	return func(_ context.Context, job *JobContext) error {
		payload, err := WelcomeEmailPayloadFromMap(job.Payload())
		if err != nil {
			return err
		}
		if payload.Email == "" {
			return errors.New("welcome-email job missing recipient")
		}
		return mailer.SendWelcomeEmail(payload.Email, payload.FirstName)
	}
}

func subscriptionExpiryProcessor(mailer Mailer) ProcessorFunc {
	return func(_ context.Context, job *JobContext) error {
		payload, err := SubscriptionExpiryPayloadFromMap(job.Payload())
		if err != nil {
			return err
		}
		if payload.Email == "" {
			return errors.New("subscription-expiry job missing recipient")
		}
		return mailer.SendSubscriptionExpiryEmail(payload.Email, payload.ExpiryDate)
	}
}
