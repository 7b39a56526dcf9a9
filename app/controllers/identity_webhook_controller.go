package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/algomatic/backend/internal/pkg/env"
	"github.com/algomatic/backend/internal/pkg/identity"
	"github.com/algomatic/backend/internal/pkg/jobqueue"
	"github.com/algomatic/backend/internal/pkg/otp"
	"github.com/algomatic/backend/internal/pkg/users"
)

// welcomeMailQueue is the producer slice the controller needs to queue the
// post-provisioning welcome mail.
type welcomeMailQueue interface {
	AddWelcomeEmail(email, firstName string) (*jobqueue.Job, error)
}

// IdentityWebhookController receives signed user-lifecycle events from the
// identity provider and routes them to the provisioning service.
type IdentityWebhookController struct {
	users  *users.Service
	codes  *otp.Service
	queue  welcomeMailQueue
	secret string
}

var identityWebhookController *IdentityWebhookController

// InitializeIdentityWebhookController wires the controller with its services.
// Must run before the routes are installed.
func InitializeIdentityWebhookController(userService *users.Service, codeService *otp.Service, queue welcomeMailQueue) {
	identityWebhookController = &IdentityWebhookController{
		users:  userService,
		codes:  codeService,
		queue:  queue,
		secret: env.MustGetEnv("IDENTITY_WEBHOOK_SECRET"),
	}
}

// HandleIdentityWebhook processes POST /webhooks/identity.
func HandleIdentityWebhook(c *fiber.Ctx) error {
	return identityWebhookController.handle(c)
}

func (ic *IdentityWebhookController) handle(c *fiber.Ctx) error {
	// The exact wire bytes are what the sender signed. Parsing happens only
	// after verification succeeds.
	rawBody := c.BodyRaw()

	err := identity.VerifySignature(identity.SignatureContext{
		ID:              c.Get("event-id"),
		Timestamp:       c.Get("event-timestamp"),
		SignatureHeader: c.Get("event-signature"),
		RawBody:         rawBody,
		Secret:          ic.secret,
	})
	if err != nil {
		log.Warnf("[IdentityWebhook] Rejected delivery %s: %v", c.Get("event-id"), err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	envelope, err := identity.ParseEnvelope(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctx := c.UserContext()

	switch envelope.Type {
	case identity.EventUserCreated:
		data, err := identity.ParseUserEventData(envelope.Data)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		user, err := ic.users.HandleUserCreated(ctx, data)
		if err != nil {
			log.Errorf("[IdentityWebhook] user.created for %s failed: %v", data.ID, err)
			return c.Status(userEventStatus(err)).JSON(fiber.Map{"error": err.Error()})
		}
		// The welcome mail is best effort; a queue hiccup must not make the
		// provider redeliver an event that already provisioned the user.
		if ic.queue != nil {
			if _, err := ic.queue.AddWelcomeEmail(user.Email, data.FirstName); err != nil {
				log.Errorf("[IdentityWebhook] Failed to queue welcome email for %s: %v", data.ID, err)
			}
		}

	case identity.EventUserUpdated:
		data, err := identity.ParseUserEventData(envelope.Data)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if _, err := ic.users.HandleUserUpdated(ctx, data); err != nil {
			log.Errorf("[IdentityWebhook] user.updated for %s failed: %v", data.ID, err)
			return c.Status(userEventStatus(err)).JSON(fiber.Map{"error": err.Error()})
		}

	case identity.EventUserDeleted:
		data, err := identity.ParseUserEventData(envelope.Data)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := ic.users.HandleUserDeleted(ctx, data.ID); err != nil {
			log.Errorf("[IdentityWebhook] user.deleted for %s failed: %v", data.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}

	case identity.EventEmailCreated:
		data, err := identity.ParseEmailEventData(envelope.Data)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if data.Data.OTPCode != "" {
			if err := ic.codes.Save(data.ID, data.Data.OTPCode); err != nil {
				log.Errorf("[IdentityWebhook] Failed to store one-time code for %s: %v", data.ID, err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
			}
		}

	default:
		log.Infof("[IdentityWebhook] Ignoring unhandled event type %s", envelope.Type)
		return c.JSON(fiber.Map{"status": "ignored", "type": envelope.Type})
	}

	return c.JSON(fiber.Map{"received": true})
}

// userEventStatus separates payloads that can never succeed from transient
// failures. A 400 tells the provider not to redeliver an envelope without a
// resolvable primary email; everything else stays a 500 so retries continue.
func userEventStatus(err error) int {
	if errors.Is(err, users.ErrMissingPrimaryEmail) {
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}
