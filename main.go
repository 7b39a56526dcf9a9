package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/algomatic/backend/app/controllers"
	"github.com/algomatic/backend/internal/pkg/billing"
	"github.com/algomatic/backend/internal/pkg/cache"
	"github.com/algomatic/backend/internal/pkg/datalayer"
	"github.com/algomatic/backend/internal/pkg/env"
	"github.com/algomatic/backend/internal/pkg/jobqueue"
	"github.com/algomatic/backend/internal/pkg/mail"
	"github.com/algomatic/backend/internal/pkg/otp"
	"github.com/algomatic/backend/internal/pkg/payments"
	"github.com/algomatic/backend/internal/pkg/router"
	"github.com/algomatic/backend/internal/pkg/users"
)

func main() {
	app := NewApplication()

	manager := jobqueue.GetManager()
	manager.Start()

	// Stop queue workers cleanly on SIGINT/SIGTERM.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		manager.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	cache.SetupCache()

	// External clients
	dataClient := datalayer.NewClientFromEnv()
	billingClient := billing.NewClientFromEnv()
	mailer := mail.NewMailer()

	// Services
	userService := users.NewService(dataClient, billingClient)
	paymentService := payments.NewService(billingClient, dataClient)
	codeService := otp.NewServiceFromCache()

	// Job queues
	manager := jobqueue.GetManager()
	manager.RegisterProcessors(jobqueue.ProcessorDeps{
		Mailer:   mailer,
		Payments: billingClient,
		Exec:     dataClient,
	})

	// Controllers
	controllers.InitializeIdentityWebhookController(userService, codeService, manager)
	controllers.InitializePaymentsWebhookController(billingClient, payments.NewReconciler(dataClient), manager)
	controllers.InitializeActionsController(userService)
	controllers.InitializePaymentsController(paymentService)
	controllers.InitializeDashboardHub(manager)

	app := fiber.New(fiber.Config{
		BodyLimit: 4 * 1024 * 1024,
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
