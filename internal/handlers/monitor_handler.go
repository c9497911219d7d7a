package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// writeWait bounds a single websocket write. A client that cannot keep up
// within this window is disconnected instead of wedging its monitors.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// clientMessage is what a connected UI sends to (re)target its monitors.
// action "monitor" targets a dataset or collection, "monitor_step" targets
// a workflow invocation step. Each message supersedes the previous target
// of the same action.
type clientMessage struct {
	Action      string             `json:"action"`
	ID          string             `json:"id"`
	ContentType models.ContentType `json:"content_type,omitempty"`
}

// serverMessage is one monitor emission pushed to the client.
type serverMessage struct {
	Type        string                 `json:"type"` // "record", "step" or "error"
	ID          string                 `json:"id"`
	ContentType models.ContentType     `json:"content_type,omitempty"`
	Record      *models.CacheRecord    `json:"record,omitempty"`
	Step        *models.InvocationStep `json:"step,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// MonitorHandler upgrades /ws/monitor connections. Each connection owns
// one content monitor selector and one step monitor selector; the client's
// identifier messages form their input streams.
type MonitorHandler struct {
	monitor interfaces.MonitorService
	logger  arbor.ILogger
}

// NewMonitorHandler creates a new websocket monitor handler
func NewMonitorHandler(monitor interfaces.MonitorService, logger arbor.ILogger) *MonitorHandler {
	return &MonitorHandler{
		monitor: monitor,
		logger:  logger,
	}
}

// HandleWebSocket upgrades the connection and bridges client messages to
// the monitor selectors until the client disconnects.
func (h *MonitorHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	connID := uuid.New().String()
	h.logger.Info().Str("conn_id", connID).Str("remote", r.RemoteAddr).Msg("Monitor client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer conn.Close()

	requests := make(chan interfaces.MonitorRequest)
	stepIDs := make(chan string)

	contentEvents := h.monitor.ContentMonitor(ctx, requests)
	stepEvents := h.monitor.InvocationStepMonitor(ctx, stepIDs)

	// Serialize writes: gorilla connections allow one concurrent writer.
	var writeMu sync.Mutex
	send := func(msg serverMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug().Err(err).Str("conn_id", connID).Msg("WebSocket write failed")
			cancel()
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)

	common.SafeGo(h.logger, "monitor-ws-content", func() {
		defer wg.Done()
		for event := range contentEvents {
			send(contentMessage(event))
		}
	})

	common.SafeGo(h.logger, "monitor-ws-step", func() {
		defer wg.Done()
		for event := range stepEvents {
			send(stepMessage(event))
		}
	})

	// Read loop: each message re-targets a selector.
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("conn_id", connID).Msg("WebSocket read failed")
			}
			break
		}

		switch msg.Action {
		case "monitor":
			select {
			case <-ctx.Done():
			case requests <- interfaces.MonitorRequest{ID: msg.ID, ContentType: msg.ContentType}:
			}
		case "monitor_step":
			select {
			case <-ctx.Done():
			case stepIDs <- msg.ID:
			}
		default:
			send(serverMessage{Type: "error", ID: msg.ID, Error: "unknown action: " + msg.Action})
		}
	}

	cancel()
	close(requests)
	close(stepIDs)
	wg.Wait()

	h.logger.Info().Str("conn_id", connID).Msg("Monitor client disconnected")
}

func contentMessage(event interfaces.ContentEvent) serverMessage {
	msg := serverMessage{
		Type:        "record",
		ID:          event.Request.ID,
		ContentType: event.Request.ContentType,
		Record:      event.Record,
	}
	if event.Err != nil {
		msg.Type = "error"
		msg.Error = event.Err.Error()
	}
	return msg
}

func stepMessage(event interfaces.StepEvent) serverMessage {
	msg := serverMessage{
		Type: "step",
		ID:   event.ID,
		Step: event.Step,
	}
	if event.Err != nil {
		msg.Type = "error"
		msg.Error = event.Err.Error()
	}
	return msg
}
