package constants

// Static route constants
const (
	IdentityWebhookRoute  = "/webhooks/identity"
	PaymentsWebhookRoute  = "/webhooks/payments"
	DatalayerEventsRoute  = "/webhooks/datalayer/events"
	CreateUserActionRoute = "/actions/create-user"
	QueueMetricsRoute     = "/queue-monitor/metrics"
	QueueDashboardWSRoute = "/queue-dashboard/ws"
)
