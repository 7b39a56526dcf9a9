package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/gofiber/fiber/v2/log"

	"github.com/algomatic/backend/internal/pkg/datalayer"
)

// tableNamePattern guards table names interpolated into GraphQL documents.
// Variables cannot carry field names, so interpolation is unavoidable here.
var tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func validTableName(table string) bool {
	return tableNamePattern.MatchString(table)
}

// dataSyncProcessor batch-inserts rows into one data-layer table.
func dataSyncProcessor(exec datalayer.Executor) ProcessorFunc {
	return func(ctx context.Context, job *JobContext) error {
		payload, err := DataSyncPayloadFromMap(job.Payload())
		if err != nil {
			return err
		}
		if !validTableName(payload.Table) {
			return fmt.Errorf("sync-data job has invalid table name %q", payload.Table)
		}
		if len(payload.Objects) == 0 {
			return errors.New("sync-data job has no objects")
		}

		job.Progress(25)

		mutation := fmt.Sprintf(`
mutation SyncData($objects: [%s_insert_input!]!) {
  insert_%s(objects: $objects) {
    affected_rows
  }
}`, payload.Table, payload.Table)

		objects := make([]interface{}, 0, len(payload.Objects))
		for _, o := range payload.Objects {
			objects = append(objects, o)
		}
		data, err := exec.ExecuteQuery(ctx, mutation, map[string]interface{}{"objects": objects})
		if err != nil {
			return err
		}
		rows, err := datalayer.AffectedRows(data, "insert_"+payload.Table)
		if err != nil {
			return err
		}
		log.Infof("[JobQueue:datalayer] Synced %d rows into %s", rows, payload.Table)
		job.Progress(100)
		return nil
	}
}

const recordEventMutation = `
mutation RecordEvent($object: events_insert_input!) {
  insert_events_one(object: $object) {
    id
  }
}`

// processEventProcessor writes one audit row per data-layer event trigger.
func processEventProcessor(exec datalayer.Executor) ProcessorFunc {
	return func(ctx context.Context, job *JobContext) error {
		payload, err := ProcessEventPayloadFromMap(job.Payload())
		if err != nil {
			return err
		}
		if payload.Table == "" || payload.Op == "" {
			return errors.New("process-event job missing table or op")
		}

		object := map[string]interface{}{
			"table_name": payload.Table,
			"operation":  payload.Op,
			"payload":    payload.Row,
		}
		if _, err := exec.ExecuteQuery(ctx, recordEventMutation, map[string]interface{}{"object": object}); err != nil {
			return err
		}
		job.Progress(100)
		return nil
	}
}
