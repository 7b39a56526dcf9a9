package jobqueue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2/log"

	"github.com/algomatic/backend/internal/pkg/datalayer"
)

const trackEventMutation = `
mutation TrackEvent($object: analytics_events_insert_input!) {
  insert_analytics_events_one(object: $object) {
    id
  }
}`

func trackEventProcessor(exec datalayer.Executor) ProcessorFunc {
	return func(ctx context.Context, job *JobContext) error {
		payload, err := TrackEventPayloadFromMap(job.Payload())
		if err != nil {
			return err
		}
		if payload.Event == "" {
			return errors.New("track-event job missing event name")
		}

		object := map[string]interface{}{
			"user_id":    payload.UserID,
			"event":      payload.Event,
			"properties": payload.Properties,
		}
		_, err = exec.ExecuteQuery(ctx, trackEventMutation, map[string]interface{}{"object": object})
		return err
	}
}

const reportWindowQuery = `
query ReportWindow($from: timestamptz!, $to: timestamptz!) {
  analytics_events_aggregate(where: {created_at: {_gte: $from, _lte: $to}}) {
    aggregate {
      count
    }
  }
}`

const insertReportMutation = `
mutation InsertReport($object: reports_insert_input!) {
  insert_reports_one(object: $object) {
    id
  }
}`

// generateReportProcessor aggregates an event window and stores the report.
// The two data-layer round trips make this the slowest job kind, hence its
// dedicated timeout; ctx is checked between stages so an abort lands fast.
func generateReportProcessor(exec datalayer.Executor) ProcessorFunc {
	return func(ctx context.Context, job *JobContext) error {
		payload, err := GenerateReportPayloadFromMap(job.Payload())
		if err != nil {
			return err
		}
		if payload.From == "" || payload.To == "" {
			return errors.New("generate-report job missing time window")
		}

		job.Progress(25)
		data, err := exec.ExecuteQuery(ctx, reportWindowQuery, map[string]interface{}{
			"from": payload.From,
			"to":   payload.To,
		})
		if err != nil {
			return err
		}

		var window struct {
			AnalyticsEventsAggregate struct {
				Aggregate struct {
					Count int64 `json:"count"`
				} `json:"aggregate"`
			} `json:"analytics_events_aggregate"`
		}
		if err := json.Unmarshal(data, &window); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		job.Progress(75)

		object := map[string]interface{}{
			"report_type":  payload.ReportType,
			"window_from":  payload.From,
			"window_to":    payload.To,
			"total_events": window.AnalyticsEventsAggregate.Aggregate.Count,
		}
		if _, err := exec.ExecuteQuery(ctx, insertReportMutation, map[string]interface{}{"object": object}); err != nil {
			return err
		}

		log.Infof("[JobQueue:analytics] Report %s covers %d events", payload.ReportType, window.AnalyticsEventsAggregate.Aggregate.Count)
		job.Progress(100)
		return nil
	}
}
