package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/algomatic/backend/internal/pkg/payments"
)

// PaymentsController exposes the synchronous payment and subscription
// operations under /api/v1.
type PaymentsController struct {
	payments *payments.Service
	validate *validator.Validate
}

var paymentsController *PaymentsController

func InitializePaymentsController(paymentService *payments.Service) {
	paymentsController = &PaymentsController{
		payments: paymentService,
		validate: validator.New(),
	}
}

func (pc *PaymentsController) parseAndValidate(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return errors.New("invalid request body")
	}
	if err := pc.validate.Struct(out); err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) && len(verr) > 0 {
			return errors.New("invalid input: " + verr[0].Field())
		}
		return errors.New("invalid input")
	}
	return nil
}

// HandleCreatePayment processes POST /api/v1/payments.
func HandleCreatePayment(c *fiber.Ctx) error {
	pc := paymentsController

	var in payments.CreatePaymentInput
	if err := pc.parseAndValidate(c, &in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	intent, err := pc.payments.CreatePayment(c.UserContext(), in)
	if err != nil {
		log.Errorf("[Payments] Create payment failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"id":            intent.ID,
		"status":        string(intent.Status),
		"client_secret": intent.ClientSecret,
	})
}

// HandleRefundPayment processes POST /api/v1/payments/refund.
func HandleRefundPayment(c *fiber.Ctx) error {
	pc := paymentsController

	var in struct {
		PaymentIntentID string `json:"paymentIntentId" validate:"required"`
	}
	if err := pc.parseAndValidate(c, &in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	refund, err := pc.payments.RefundPayment(c.UserContext(), in.PaymentIntentID)
	if err != nil {
		log.Errorf("[Payments] Refund failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"id": refund.ID, "status": string(refund.Status)})
}

// HandleCreateCheckoutSession processes POST /api/v1/payments/checkout.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	pc := paymentsController

	var in payments.CheckoutInput
	if err := pc.parseAndValidate(c, &in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	session, err := pc.payments.CreateCheckoutSession(c.UserContext(), in)
	if err != nil {
		log.Errorf("[Payments] Checkout session failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"id": session.ID, "url": session.URL})
}

// HandleCreateSubscription processes POST /api/v1/subscriptions.
func HandleCreateSubscription(c *fiber.Ctx) error {
	pc := paymentsController

	var in payments.CreateSubscriptionInput
	if err := pc.parseAndValidate(c, &in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sub, err := pc.payments.CreateSubscription(c.UserContext(), in)
	if err != nil {
		log.Errorf("[Payments] Create subscription failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"id": sub.ID, "status": string(sub.Status)})
}

// HandleCancelSubscription processes DELETE /api/v1/subscriptions/:id.
func HandleCancelSubscription(c *fiber.Ctx) error {
	pc := paymentsController

	subscriptionID := c.Params("id")
	if subscriptionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "subscription id is required"})
	}

	if err := pc.payments.CancelSubscription(c.UserContext(), subscriptionID); err != nil {
		log.Errorf("[Payments] Cancel subscription %s failed: %v", subscriptionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"canceled": true})
}

// HandlePauseSubscription processes POST /api/v1/subscriptions/:id/pause.
func HandlePauseSubscription(c *fiber.Ctx) error {
	pc := paymentsController

	subscriptionID := c.Params("id")
	if subscriptionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "subscription id is required"})
	}

	sub, err := pc.payments.PauseSubscription(c.UserContext(), subscriptionID)
	if err != nil {
		log.Errorf("[Payments] Pause subscription %s failed: %v", subscriptionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"id": sub.ID, "status": string(sub.Status)})
}

// HandleResumeSubscription processes POST /api/v1/subscriptions/:id/resume.
func HandleResumeSubscription(c *fiber.Ctx) error {
	pc := paymentsController

	subscriptionID := c.Params("id")
	if subscriptionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "subscription id is required"})
	}

	sub, err := pc.payments.ResumeSubscription(c.UserContext(), subscriptionID)
	if err != nil {
		log.Errorf("[Payments] Resume subscription %s failed: %v", subscriptionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"id": sub.ID, "status": string(sub.Status)})
}
