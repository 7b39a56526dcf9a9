package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/algomatic/backend/internal/pkg/jobqueue"
)

// HandleQueueMetrics serves GET /queue-monitor/metrics with an on-demand
// snapshot of every queue's counters.
func HandleQueueMetrics(c *fiber.Ctx) error {
	manager := jobqueue.GetManager()

	metrics, err := manager.GetQueueMetrics(c.UserContext())
	if err != nil {
		log.Errorf("[QueueMonitor] Metrics snapshot failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"queues":    metrics,
		"running":   manager.IsRunning(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
