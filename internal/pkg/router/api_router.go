package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/algomatic/backend/app/controllers"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Post("/payments", controllers.HandleCreatePayment)
	v1.Post("/payments/refund", controllers.HandleRefundPayment)
	v1.Post("/payments/checkout", controllers.HandleCreateCheckoutSession)
	v1.Post("/subscriptions", controllers.HandleCreateSubscription)
	v1.Delete("/subscriptions/:id", controllers.HandleCancelSubscription)
	v1.Post("/subscriptions/:id/pause", controllers.HandlePauseSubscription)
	v1.Post("/subscriptions/:id/resume", controllers.HandleResumeSubscription)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
