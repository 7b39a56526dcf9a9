package controllers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/algomatic/backend/internal/pkg/jobqueue"
)

const dashboardMetricsInterval = 5 * time.Second

// dashboardSink is one connected dashboard client. The websocket handler
// provides the real implementation; tests plug in an in-memory one.
type dashboardSink interface {
	Send(message []byte) error
}

// queueFeed is the slice of the queue manager the dashboard needs.
type queueFeed interface {
	Bus() *jobqueue.EventBus
	GetQueueMetrics(ctx context.Context) ([]jobqueue.Metrics, error)
}

// DashboardHub fans queue metrics and queue events out to the connected
// dashboard clients. The metrics ticker and the bus subscription only run
// while at least one client is attached; the first Attach starts them and
// the last Detach stops them.
type DashboardHub struct {
	manager  queueFeed
	interval time.Duration

	mu     sync.Mutex
	sinks  map[dashboardSink]struct{}
	stopCh chan struct{}
}

var dashboardHub *DashboardHub

func InitializeDashboardHub(manager *jobqueue.Manager) {
	dashboardHub = NewDashboardHub(manager)
}

func NewDashboardHub(manager queueFeed) *DashboardHub {
	return &DashboardHub{
		manager:  manager,
		interval: dashboardMetricsInterval,
		sinks:    make(map[dashboardSink]struct{}),
	}
}

// Attach registers a client. The first client starts the feed.
func (h *DashboardHub) Attach(sink dashboardSink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sinks[sink] = struct{}{}
	if len(h.sinks) == 1 {
		h.stopCh = make(chan struct{})
		sub := h.manager.Bus().Subscribe()
		go h.feed(h.stopCh, sub)
		log.Info("[Dashboard] First client connected, feed started")
	}
}

// Detach removes a client. The last client stops the feed.
func (h *DashboardHub) Detach(sink dashboardSink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sinks[sink]; !ok {
		return
	}
	delete(h.sinks, sink)
	if len(h.sinks) == 0 && h.stopCh != nil {
		close(h.stopCh)
		h.stopCh = nil
		log.Info("[Dashboard] Last client disconnected, feed stopped")
	}
}

func (h *DashboardHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sinks)
}

func (h *DashboardHub) feed(stopCh chan struct{}, sub *jobqueue.Subscription) {
	defer sub.Unsubscribe()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// Push one snapshot immediately so a fresh dashboard is not empty for
	// a full tick.
	h.broadcastMetrics()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			h.broadcastMetrics()
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			h.broadcast("event", evt)
		}
	}
}

func (h *DashboardHub) broadcastMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	metrics, err := h.manager.GetQueueMetrics(ctx)
	if err != nil {
		log.Errorf("[Dashboard] Metrics snapshot failed: %v", err)
		return
	}
	h.broadcast("metrics", metrics)
}

func (h *DashboardHub) broadcast(messageType string, data interface{}) {
	message, err := json.Marshal(fiber.Map{"type": messageType, "data": data})
	if err != nil {
		log.Errorf("[Dashboard] Failed to marshal %s message: %v", messageType, err)
		return
	}

	// Snapshot the sinks so one slow websocket write cannot hold the hub
	// lock and stall Attach/Detach or the other clients.
	h.mu.Lock()
	sinks := make([]dashboardSink, 0, len(h.sinks))
	for sink := range h.sinks {
		sinks = append(sinks, sink)
	}
	h.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Send(message); err != nil {
			// The read loop of the broken client detaches it.
			log.Warnf("[Dashboard] Dropping message to client: %v", err)
		}
	}
}

// wsSink adapts a websocket connection to the hub. Writes are serialized
// because the feed goroutine and control frames share the connection.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, message)
}

// HandleQueueDashboardWS serves GET /queue-dashboard/ws.
func HandleQueueDashboardWS(c *websocket.Conn) {
	sink := &wsSink{conn: c}
	dashboardHub.Attach(sink)
	defer dashboardHub.Detach(sink)

	// Inbound frames are ignored; the loop only detects disconnects.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}

// UpgradeQueueDashboard gates the websocket route to real upgrade requests.
func UpgradeQueueDashboard(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
