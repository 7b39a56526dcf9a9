package jobqueue

import (
	"encoding/json"
	"time"
)

// Queue names. Each queue gets its own Redis structures and worker pool.
const (
	QueueEmail      = "email"
	QueueStripe     = "stripe"
	QueueDataSync   = "datalayer"
	QueueDataEvents = "datalayer-events"
	QueueAnalytics  = "analytics"
	QueueCleanup    = "cleanup"
)

// Job kinds. A processor is bound to a (queue, kind) pair.
const (
	KindWelcomeEmail       = "welcome-email"
	KindSubscriptionExpiry = "subscription-expiry"
	KindPaymentRetry       = "retry-payment"
	KindDataSync           = "sync-data"
	KindProcessEvent       = "process-event"
	KindTrackEvent         = "track-event"
	KindGenerateReport     = "generate-report"
	KindCleanupOldData     = "cleanup-old-data"
)

// State is the job lifecycle state. waiting -> active -> completed, or back
// to waiting for a retry, or failed once attempts are exhausted.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// BackoffType selects how the retry delay grows between attempts.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

type Backoff struct {
	Type        BackoffType `json:"type"`
	BaseDelayMs int64       `json:"base_delay_ms"`
}

// Options configures a job at enqueue time.
type Options struct {
	Attempts int
	Backoff  Backoff
	Delay    time.Duration
	Timeout  time.Duration
}

// Job represents one unit of background work. The queue owns all of this
// state; processors only see a JobContext handle.
type Job struct {
	ID              string                 `json:"id"`
	Queue           string                 `json:"queue"`
	Kind            string                 `json:"kind"`
	State           State                  `json:"state"`
	Payload         map[string]interface{} `json:"payload"`
	AttemptsMade    int                    `json:"attempts_made"`
	AttemptsAllowed int                    `json:"attempts_allowed"`
	Backoff         Backoff                `json:"backoff"`
	DelayMs         int64                  `json:"delay_ms,omitempty"`
	TimeoutMs       int64                  `json:"timeout_ms,omitempty"`
	Progress        float64                `json:"progress"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	FinishedAt      *time.Time             `json:"finished_at,omitempty"`
	ErrorMsg        string                 `json:"error_msg,omitempty"`
}

// MarkActive transitions the job into active and counts the attempt.
func (j *Job) MarkActive() {
	now := time.Now()
	j.State = StateActive
	j.AttemptsMade++
	j.UpdatedAt = now
	j.StartedAt = &now
}

// MarkCompleted transitions the job into its successful terminal state.
func (j *Job) MarkCompleted() {
	now := time.Now()
	j.State = StateCompleted
	j.Progress = 100
	j.UpdatedAt = now
	j.FinishedAt = &now
	j.ErrorMsg = ""
}

// MarkFailed records the attempt's error. Whether this is terminal depends
// on Retryable.
func (j *Job) MarkFailed(errorMsg string) {
	now := time.Now()
	j.State = StateFailed
	j.UpdatedAt = now
	j.FinishedAt = &now
	j.ErrorMsg = errorMsg
}

// MarkWaiting puts the job back in line for another attempt.
func (j *Job) MarkWaiting() {
	j.State = StateWaiting
	j.UpdatedAt = time.Now()
	j.FinishedAt = nil
}

// Retryable reports whether another attempt is allowed.
func (j *Job) Retryable() bool {
	return j.AttemptsMade < j.AttemptsAllowed
}

// NextDelay computes the backoff delay before the next attempt, based on how
// many attempts have already run. For exponential backoff with base 1000ms
// the delays are 1000ms before the 2nd attempt and 2000ms before the 3rd.
func (j *Job) NextDelay() time.Duration {
	base := time.Duration(j.Backoff.BaseDelayMs) * time.Millisecond
	if base <= 0 {
		return 0
	}
	if j.Backoff.Type != BackoffExponential {
		return base
	}
	exponent := j.AttemptsMade - 1
	if exponent < 0 {
		exponent = 0
	}
	return base * time.Duration(int64(1)<<uint(exponent))
}

// WelcomeEmailPayload is carried by welcome-email jobs.
type WelcomeEmailPayload struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

func (p WelcomeEmailPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"email":      p.Email,
		"first_name": p.FirstName,
	}
}

func WelcomeEmailPayloadFromMap(data map[string]interface{}) (*WelcomeEmailPayload, error) {
	return payloadFromMap[WelcomeEmailPayload](data)
}

// SubscriptionExpiryPayload is carried by subscription-expiry jobs, usually
// enqueued with a 24 hour delay ahead of the expiry date.
type SubscriptionExpiryPayload struct {
	Email      string `json:"email"`
	ExpiryDate string `json:"expiry_date"`
}

func (p SubscriptionExpiryPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"email":       p.Email,
		"expiry_date": p.ExpiryDate,
	}
}

func SubscriptionExpiryPayloadFromMap(data map[string]interface{}) (*SubscriptionExpiryPayload, error) {
	return payloadFromMap[SubscriptionExpiryPayload](data)
}

// PaymentRetryPayload is carried by retry-payment jobs.
type PaymentRetryPayload struct {
	PaymentIntentID string `json:"payment_intent_id"`
	UserID          string `json:"user_id"`
}

func (p PaymentRetryPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"payment_intent_id": p.PaymentIntentID,
		"user_id":           p.UserID,
	}
}

func PaymentRetryPayloadFromMap(data map[string]interface{}) (*PaymentRetryPayload, error) {
	return payloadFromMap[PaymentRetryPayload](data)
}

// DataSyncPayload is carried by sync-data jobs: a batch of rows to insert
// into one data-layer table.
type DataSyncPayload struct {
	Table   string                   `json:"table"`
	Objects []map[string]interface{} `json:"objects"`
}

func (p DataSyncPayload) ToMap() map[string]interface{} {
	objects := make([]interface{}, 0, len(p.Objects))
	for _, o := range p.Objects {
		objects = append(objects, o)
	}
	return map[string]interface{}{
		"table":   p.Table,
		"objects": objects,
	}
}

func DataSyncPayloadFromMap(data map[string]interface{}) (*DataSyncPayload, error) {
	return payloadFromMap[DataSyncPayload](data)
}

// ProcessEventPayload is carried by process-event jobs enqueued from
// data-layer event triggers.
type ProcessEventPayload struct {
	Table string                 `json:"table"`
	Op    string                 `json:"op"`
	Row   map[string]interface{} `json:"row"`
}

func (p ProcessEventPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"table": p.Table,
		"op":    p.Op,
		"row":   p.Row,
	}
}

func ProcessEventPayloadFromMap(data map[string]interface{}) (*ProcessEventPayload, error) {
	return payloadFromMap[ProcessEventPayload](data)
}

// TrackEventPayload is carried by track-event jobs.
type TrackEventPayload struct {
	UserID     string                 `json:"user_id"`
	Event      string                 `json:"event"`
	Properties map[string]interface{} `json:"properties"`
}

func (p TrackEventPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    p.UserID,
		"event":      p.Event,
		"properties": p.Properties,
	}
}

func TrackEventPayloadFromMap(data map[string]interface{}) (*TrackEventPayload, error) {
	return payloadFromMap[TrackEventPayload](data)
}

// GenerateReportPayload is carried by generate-report jobs.
type GenerateReportPayload struct {
	ReportType string `json:"report_type"`
	From       string `json:"from"`
	To         string `json:"to"`
}

func (p GenerateReportPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"report_type": p.ReportType,
		"from":        p.From,
		"to":          p.To,
	}
}

func GenerateReportPayloadFromMap(data map[string]interface{}) (*GenerateReportPayload, error) {
	return payloadFromMap[GenerateReportPayload](data)
}

// CleanupPayload is carried by cleanup-old-data jobs.
type CleanupPayload struct {
	Table         string `json:"table"`
	OlderThanDays int    `json:"older_than_days"`
}

func (p CleanupPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"table":           p.Table,
		"older_than_days": p.OlderThanDays,
	}
}

func CleanupPayloadFromMap(data map[string]interface{}) (*CleanupPayload, error) {
	return payloadFromMap[CleanupPayload](data)
}

// payloadFromMap round-trips a generic payload map into its typed form.
func payloadFromMap[T any](data map[string]interface{}) (*T, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload T
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}
