package jobqueue

import (
	"github.com/algomatic/backend/internal/pkg/datalayer"
)

// ProcessorDeps bundles the external capabilities the processors need.
type ProcessorDeps struct {
	Mailer   Mailer
	Payments PaymentRetrier
	Exec     datalayer.Executor
}

// RegisterProcessors binds every job kind to its processor. Call once before
// Start; kinds left unbound fail their jobs permanently.
func (m *Manager) RegisterProcessors(deps ProcessorDeps) {
	m.queues[QueueEmail].Register(KindWelcomeEmail, welcomeEmailProcessor(deps.Mailer))
	m.queues[QueueEmail].Register(KindSubscriptionExpiry, subscriptionExpiryProcessor(deps.Mailer))
	m.queues[QueueStripe].Register(KindPaymentRetry, paymentRetryProcessor(deps.Payments))
	m.queues[QueueDataSync].Register(KindDataSync, dataSyncProcessor(deps.Exec))
	m.queues[QueueDataEvents].Register(KindProcessEvent, processEventProcessor(deps.Exec))
	m.queues[QueueAnalytics].Register(KindTrackEvent, trackEventProcessor(deps.Exec))
	m.queues[QueueAnalytics].Register(KindGenerateReport, generateReportProcessor(deps.Exec))
	m.queues[QueueCleanup].Register(KindCleanupOldData, cleanupProcessor(deps.Exec))
}
