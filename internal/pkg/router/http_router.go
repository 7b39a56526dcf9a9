package router

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/algomatic/backend/app/controllers"
	"github.com/algomatic/backend/internal/pkg/constants"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Inbound webhooks. Raw bodies stay untouched until signature checks.
	app.Post(constants.IdentityWebhookRoute, controllers.HandleIdentityWebhook)
	app.Post(constants.PaymentsWebhookRoute, controllers.HandlePaymentsWebhook)
	app.Post(constants.DatalayerEventsRoute, controllers.HandleDatalayerEvent)

	// Data-layer custom actions
	app.Post(constants.CreateUserActionRoute, controllers.HandleCreateUserAction)

	// Queue observability
	app.Get(constants.QueueMetricsRoute, controllers.HandleQueueMetrics)
	app.Use(constants.QueueDashboardWSRoute, controllers.UpgradeQueueDashboard)
	app.Get(constants.QueueDashboardWSRoute, websocket.New(controllers.HandleQueueDashboardWS))
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
