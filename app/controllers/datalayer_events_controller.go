package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/algomatic/backend/internal/pkg/jobqueue"
)

// datalayerEventRequest mirrors the data-layer event trigger payload shape:
// the trigger name plus the affected row before and after the operation.
type datalayerEventRequest struct {
	Table struct {
		Name   string `json:"name"`
		Schema string `json:"schema"`
	} `json:"table"`
	Event struct {
		Op   string `json:"op"`
		Data struct {
			Old map[string]interface{} `json:"old"`
			New map[string]interface{} `json:"new"`
		} `json:"data"`
	} `json:"event"`
	Trigger struct {
		Name string `json:"name"`
	} `json:"trigger"`
}

// HandleDatalayerEvent processes POST /webhooks/datalayer/events. The event
// is acknowledged once it is durably queued; processing happens async.
func HandleDatalayerEvent(c *fiber.Ctx) error {
	var req datalayerEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid event payload"})
	}
	if req.Table.Name == "" || req.Event.Op == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "event is missing table or op"})
	}

	row := req.Event.Data.New
	if row == nil {
		// DELETE triggers only carry the old row.
		row = req.Event.Data.Old
	}

	job, err := jobqueue.GetManager().AddProcessEvent(req.Table.Name, req.Event.Op, row)
	if err != nil {
		log.Errorf("[DatalayerEvents] Failed to queue %s on %s: %v", req.Event.Op, req.Table.Name, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"queued": true, "jobId": job.ID})
}
