package jobqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/algomatic/backend/internal/pkg/env"
)

// queueNames fixes the iteration order for metrics snapshots.
var queueNames = []string{
	QueueEmail,
	QueueStripe,
	QueueDataSync,
	QueueDataEvents,
	QueueAnalytics,
	QueueCleanup,
}

// producerPolicies pins the retry policy per job kind. Values mirror what
// each workload tolerates: payment retries back off a full minute, cleanup
// sweeps get long timeouts.
var producerPolicies = map[string]Options{
	KindWelcomeEmail:       {Attempts: 3, Backoff: Backoff{Type: BackoffExponential, BaseDelayMs: 1000}},
	KindSubscriptionExpiry: {Attempts: 3, Backoff: Backoff{Type: BackoffExponential, BaseDelayMs: 1000}},
	KindPaymentRetry:       {Attempts: 5, Backoff: Backoff{Type: BackoffExponential, BaseDelayMs: 60000}},
	KindDataSync:           {Attempts: 3, Backoff: Backoff{Type: BackoffExponential, BaseDelayMs: 1000}},
	KindProcessEvent:       {Attempts: 3, Backoff: Backoff{Type: BackoffExponential, BaseDelayMs: 1000}},
	KindTrackEvent:         {Attempts: 2, Backoff: Backoff{Type: BackoffExponential, BaseDelayMs: 1000}},
	KindGenerateReport:     {Attempts: 3, Backoff: Backoff{Type: BackoffExponential, BaseDelayMs: 5000}, Timeout: 5 * time.Minute},
	KindCleanupOldData:     {Attempts: 5, Backoff: Backoff{Type: BackoffExponential, BaseDelayMs: 10000}, Timeout: 10 * time.Minute},
}

// Manager owns the named queues, their shared event bus and the producer
// API the rest of the service enqueues through.
type Manager struct {
	queues map[string]*Queue
	bus    *EventBus

	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(workerCountFromEnv())
	})
	return globalManager
}

func NewManager(workers int) *Manager {
	bus := NewEventBus()
	queues := make(map[string]*Queue, len(queueNames))
	for _, name := range queueNames {
		queues[name] = NewQueue(name, workers, bus)
	}
	return &Manager{queues: queues, bus: bus}
}

func workerCountFromEnv() int {
	raw := env.GetEnv("JOB_QUEUE_WORKERS", "3")
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 3
	}
	return n
}

// Bus returns the shared queue event bus.
func (m *Manager) Bus() *EventBus {
	return m.bus
}

// GetQueue returns a managed queue by name, or nil for unknown names.
func (m *Manager) GetQueue(name string) *Queue {
	return m.queues[name]
}

// Start starts all queues.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	log.Info("[JobQueue Manager] Starting queues")
	for _, name := range queueNames {
		m.queues[name].Start()
	}
	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops all queues and waits for in-flight jobs.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	log.Info("[JobQueue Manager] Stopping queues...")
	for _, name := range queueNames {
		m.queues[name].Stop()
	}
	m.running = false
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetQueueMetrics snapshots every queue's counters on demand.
func (m *Manager) GetQueueMetrics(ctx context.Context) ([]Metrics, error) {
	out := make([]Metrics, 0, len(queueNames))
	for _, name := range queueNames {
		metrics, err := m.queues[name].GetMetrics(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, metrics)
	}
	return out, nil
}

func (m *Manager) enqueue(queueName, kind string, payload map[string]interface{}, delay time.Duration) (*Job, error) {
	opts := producerPolicies[kind]
	if delay > 0 {
		opts.Delay = delay
	}
	return m.queues[queueName].Enqueue(kind, payload, opts)
}

// AddWelcomeEmail queues the post-signup welcome email.
func (m *Manager) AddWelcomeEmail(email, firstName string) (*Job, error) {
	return m.enqueue(QueueEmail, KindWelcomeEmail, WelcomeEmailPayload{Email: email, FirstName: firstName}.ToMap(), 0)
}

// AddSubscriptionExpiryNotification queues the expiry notice a day ahead.
func (m *Manager) AddSubscriptionExpiryNotification(email, expiryDate string) (*Job, error) {
	payload := SubscriptionExpiryPayload{Email: email, ExpiryDate: expiryDate}.ToMap()
	return m.enqueue(QueueEmail, KindSubscriptionExpiry, payload, 24*time.Hour)
}

// AddPaymentRetry queues a re-confirmation of a failed payment intent.
func (m *Manager) AddPaymentRetry(paymentIntentID, userID string) (*Job, error) {
	payload := PaymentRetryPayload{PaymentIntentID: paymentIntentID, UserID: userID}.ToMap()
	return m.enqueue(QueueStripe, KindPaymentRetry, payload, 0)
}

// AddDataSync queues a batch insert into a data-layer table.
func (m *Manager) AddDataSync(table string, objects []map[string]interface{}) (*Job, error) {
	payload := DataSyncPayload{Table: table, Objects: objects}.ToMap()
	return m.enqueue(QueueDataSync, KindDataSync, payload, 0)
}

// AddProcessEvent queues a data-layer event trigger for processing.
func (m *Manager) AddProcessEvent(table, op string, row map[string]interface{}) (*Job, error) {
	payload := ProcessEventPayload{Table: table, Op: op, Row: row}.ToMap()
	return m.enqueue(QueueDataEvents, KindProcessEvent, payload, 0)
}

// TrackAnalyticsEvent queues an analytics event write.
func (m *Manager) TrackAnalyticsEvent(userID, event string, properties map[string]interface{}) (*Job, error) {
	payload := TrackEventPayload{UserID: userID, Event: event, Properties: properties}.ToMap()
	return m.enqueue(QueueAnalytics, KindTrackEvent, payload, 0)
}

// GenerateAnalyticsReport queues an aggregate report build.
func (m *Manager) GenerateAnalyticsReport(reportType, from, to string) (*Job, error) {
	payload := GenerateReportPayload{ReportType: reportType, From: from, To: to}.ToMap()
	return m.enqueue(QueueAnalytics, KindGenerateReport, payload, 0)
}

// ScheduleDataCleanup queues a batch delete of old rows.
func (m *Manager) ScheduleDataCleanup(table string, olderThanDays int) (*Job, error) {
	payload := CleanupPayload{Table: table, OlderThanDays: olderThanDays}.ToMap()
	return m.enqueue(QueueCleanup, KindCleanupOldData, payload, 0)
}
