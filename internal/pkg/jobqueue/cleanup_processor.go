package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/algomatic/backend/internal/pkg/datalayer"
)

// cleanupProcessor batch-deletes rows older than the configured horizon.
func cleanupProcessor(exec datalayer.Executor) ProcessorFunc {
	return func(ctx context.Context, job *JobContext) error {
		payload, err := CleanupPayloadFromMap(job.Payload())
		if err != nil {
			return err
		}
		if !validTableName(payload.Table) {
			return fmt.Errorf("cleanup-old-data job has invalid table name %q", payload.Table)
		}
		if payload.OlderThanDays <= 0 {
			return fmt.Errorf("cleanup-old-data job has invalid horizon %d", payload.OlderThanDays)
		}

		cutoff := time.Now().AddDate(0, 0, -payload.OlderThanDays).UTC().Format(time.RFC3339)
		mutation := fmt.Sprintf(`
mutation CleanupOldData($cutoff: timestamptz!) {
  delete_%s(where: {created_at: {_lt: $cutoff}}) {
    affected_rows
  }
}`, payload.Table)

		job.Progress(50)
		data, err := exec.ExecuteQuery(ctx, mutation, map[string]interface{}{"cutoff": cutoff})
		if err != nil {
			return err
		}
		rows, err := datalayer.AffectedRows(data, "delete_"+payload.Table)
		if err != nil {
			return err
		}
		log.Infof("[JobQueue:cleanup] Removed %d rows from %s older than %s", rows, payload.Table, cutoff)
		job.Progress(100)
		return nil
	}
}
