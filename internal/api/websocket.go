package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"dnac-sync/internal/metrics"
)

// WebSocketMessage is a message sent over a websocket connection
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	EventID   string      `json:"eventId,omitempty"`
}

// WebSocketFilters narrows the events a connection receives
type WebSocketFilters struct {
	EventTypes []string `json:"eventTypes,omitempty"`
	TenantID   int64    `json:"tenantId,omitempty"`
}

// WebSocketConnection represents a single websocket client
type WebSocketConnection struct {
	ID         string
	Conn       *websocket.Conn
	Send       chan WebSocketMessage
	RemoteAddr string
	UserAgent  string
	AuthInfo   *AuthenticationInfo

	mu       sync.Mutex
	filters  WebSocketFilters
	lastPong time.Time
}

// Filters returns a copy of the connection filters
func (c *WebSocketConnection) Filters() WebSocketFilters {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.filters
	f.EventTypes = append([]string(nil), c.filters.EventTypes...)
	return f
}

func (c *WebSocketConnection) setFilters(f WebSocketFilters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = f
}

func (c *WebSocketConnection) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

func (c *WebSocketConnection) sinceLastPong() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastPong)
}

// WebSocketManager fans sync events out to connected clients
type WebSocketManager struct {
	connections map[string]*WebSocketConnection
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *logrus.Logger
	broadcast   chan WebSocketMessage
	register    chan *WebSocketConnection
	unregister  chan *WebSocketConnection
	done        chan struct{}
	stopOnce    sync.Once

	pingInterval   time.Duration
	pongTimeout    time.Duration
	writeTimeout   time.Duration
	maxMessageSize int64
	maxConnections int
}

// NewWebSocketManager creates a new websocket manager
func NewWebSocketManager(logger *logrus.Logger) *WebSocketManager {
	return &WebSocketManager{
		connections: make(map[string]*WebSocketConnection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Requests are authenticated before the upgrade
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:         logger,
		broadcast:      make(chan WebSocketMessage, 256),
		register:       make(chan *WebSocketConnection),
		unregister:     make(chan *WebSocketConnection),
		done:           make(chan struct{}),
		pingInterval:   30 * time.Second,
		pongTimeout:    60 * time.Second,
		writeTimeout:   10 * time.Second,
		maxMessageSize: 4096,
		maxConnections: 100,
	}
}

// Start starts the manager loop
func (wsm *WebSocketManager) Start(ctx context.Context) {
	wsm.logger.Info("Starting WebSocket manager")
	go wsm.run(ctx)
}

// Stop stops the manager loop and closes every connection
func (wsm *WebSocketManager) Stop() {
	wsm.stopOnce.Do(func() {
		wsm.logger.Info("Stopping WebSocket manager")
		close(wsm.done)
	})
}

func (wsm *WebSocketManager) run(ctx context.Context) {
	ticker := time.NewTicker(wsm.pingInterval)
	defer ticker.Stop()
	defer wsm.closeAll()
	defer wsm.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wsm.done:
			return
		case conn := <-wsm.register:
			wsm.registerConnection(conn)
		case conn := <-wsm.unregister:
			wsm.unregisterConnection(conn)
		case message := <-wsm.broadcast:
			wsm.broadcastMessage(message)
		case <-ticker.C:
			wsm.pingConnections()
		}
	}
}

func (wsm *WebSocketManager) registerConnection(conn *WebSocketConnection) {
	wsm.mutex.Lock()
	defer wsm.mutex.Unlock()

	if len(wsm.connections) >= wsm.maxConnections {
		wsm.logger.WithField("connectionId", conn.ID).Warn("Maximum WebSocket connections reached")
		close(conn.Send)
		return
	}

	wsm.connections[conn.ID] = conn
	metrics.WebSocketClients.Set(float64(len(wsm.connections)))

	wsm.logger.WithFields(logrus.Fields{
		"connectionId": conn.ID,
		"remoteAddr":   conn.RemoteAddr,
		"totalConns":   len(wsm.connections),
	}).Info("WebSocket connection registered")

	wsm.trySend(conn, WebSocketMessage{
		Type:      "welcome",
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"connectionId": conn.ID,
			"serverTime":   time.Now().UTC(),
		},
	})
}

func (wsm *WebSocketManager) unregisterConnection(conn *WebSocketConnection) {
	wsm.mutex.Lock()
	defer wsm.mutex.Unlock()

	if _, exists := wsm.connections[conn.ID]; exists {
		delete(wsm.connections, conn.ID)
		close(conn.Send)
		metrics.WebSocketClients.Set(float64(len(wsm.connections)))

		wsm.logger.WithFields(logrus.Fields{
			"connectionId": conn.ID,
			"totalConns":   len(wsm.connections),
		}).Info("WebSocket connection unregistered")
	}
}

func (wsm *WebSocketManager) closeAll() {
	wsm.mutex.Lock()
	defer wsm.mutex.Unlock()

	for id, conn := range wsm.connections {
		delete(wsm.connections, id)
		close(conn.Send)
	}
	metrics.WebSocketClients.Set(0)
}

// broadcastMessage sends to every matching connection; slow clients are dropped
func (wsm *WebSocketManager) broadcastMessage(message WebSocketMessage) {
	wsm.mutex.RLock()
	var slow []*WebSocketConnection
	sent := 0
	for _, conn := range wsm.connections {
		if !shouldSendMessage(conn.Filters(), message) {
			continue
		}
		select {
		case conn.Send <- message:
			sent++
		default:
			slow = append(slow, conn)
		}
	}
	wsm.mutex.RUnlock()

	for _, conn := range slow {
		wsm.logger.WithField("connectionId", conn.ID).Warn("Dropping WebSocket connection, send buffer full")
		wsm.unregisterConnection(conn)
	}

	if sent > 0 {
		wsm.logger.WithFields(logrus.Fields{
			"messageType": message.Type,
			"sentCount":   sent,
		}).Debug("Message broadcasted to WebSocket connections")
	}
}

// shouldSendMessage applies connection filters to a message
func shouldSendMessage(filters WebSocketFilters, message WebSocketMessage) bool {
	if len(filters.EventTypes) > 0 {
		found := false
		for _, eventType := range filters.EventTypes {
			if eventType == message.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filters.TenantID != 0 {
		if data, ok := message.Data.(map[string]interface{}); ok {
			if tenantID, exists := data["tenant_id"].(int64); exists && tenantID != filters.TenantID {
				return false
			}
		}
	}

	return true
}

func (wsm *WebSocketManager) pingConnections() {
	wsm.mutex.RLock()
	connections := make([]*WebSocketConnection, 0, len(wsm.connections))
	for _, conn := range wsm.connections {
		connections = append(connections, conn)
	}
	wsm.mutex.RUnlock()

	for _, conn := range connections {
		if conn.sinceLastPong() > wsm.pongTimeout {
			wsm.logger.WithField("connectionId", conn.ID).Warn("WebSocket connection timed out")
			wsm.unregisterConnection(conn)
			continue
		}

		// WriteControl may be called concurrently with the write pump
		deadline := time.Now().Add(wsm.writeTimeout)
		if err := conn.Conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			wsm.logger.WithError(err).WithField("connectionId", conn.ID).Warn("Failed to send ping")
			wsm.unregisterConnection(conn)
		}
	}
}

// BroadcastEvent queues an event for every connected client
func (wsm *WebSocketManager) BroadcastEvent(eventType string, data interface{}) {
	message := WebSocketMessage{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		EventID:   uuid.NewString(),
	}

	select {
	case wsm.broadcast <- message:
	default:
		wsm.logger.WithField("eventType", eventType).Warn("Broadcast channel full, dropping message")
	}
}

// GetConnectionCount returns the number of connected clients
func (wsm *WebSocketManager) GetConnectionCount() int {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()
	return len(wsm.connections)
}

// HandleWebSocketConnection upgrades the request and starts the client pumps
func (wsm *WebSocketManager) HandleWebSocketConnection(w http.ResponseWriter, r *http.Request, authInfo *AuthenticationInfo) error {
	conn, err := wsm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsm.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return err
	}

	wsConn := &WebSocketConnection{
		ID:         uuid.NewString(),
		Conn:       conn,
		Send:       make(chan WebSocketMessage, 256),
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		AuthInfo:   authInfo,
		lastPong:   time.Now(),
	}

	conn.SetReadLimit(wsm.maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsm.pongTimeout))
	conn.SetPongHandler(func(string) error {
		wsConn.touch()
		return conn.SetReadDeadline(time.Now().Add(wsm.pongTimeout))
	})

	select {
	case wsm.register <- wsConn:
	case <-wsm.done:
		conn.Close()
		return nil
	}

	go wsm.writePump(wsConn)
	go wsm.readPump(wsConn)

	return nil
}

func (wsm *WebSocketManager) writePump(conn *WebSocketConnection) {
	defer conn.Conn.Close()

	for message := range conn.Send {
		conn.Conn.SetWriteDeadline(time.Now().Add(wsm.writeTimeout))
		if err := conn.Conn.WriteJSON(message); err != nil {
			wsm.logger.WithError(err).WithField("connectionId", conn.ID).Warn("Failed to write WebSocket message")
			return
		}
	}

	conn.Conn.SetWriteDeadline(time.Now().Add(wsm.writeTimeout))
	conn.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (wsm *WebSocketManager) readPump(conn *WebSocketConnection) {
	defer func() {
		select {
		case wsm.unregister <- conn:
		case <-wsm.done:
		}
		conn.Conn.Close()
	}()

	for {
		messageType, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsm.logger.WithError(err).WithField("connectionId", conn.ID).Warn("WebSocket connection error")
			}
			return
		}

		if messageType == websocket.TextMessage {
			wsm.handleTextMessage(conn, data)
		}
		conn.Conn.SetReadDeadline(time.Now().Add(wsm.pongTimeout))
	}
}

type clientMessage struct {
	Type       string            `json:"type"`
	Filters    *WebSocketFilters `json:"filters,omitempty"`
	EventTypes []string          `json:"eventTypes,omitempty"`
}

func (wsm *WebSocketManager) handleTextMessage(conn *WebSocketConnection, data []byte) {
	var message clientMessage
	if err := json.Unmarshal(data, &message); err != nil {
		wsm.sendError(conn, "Invalid message format")
		return
	}

	switch message.Type {
	case "set_filters":
		if message.Filters == nil {
			wsm.sendError(conn, "Missing filters in set_filters message")
			return
		}
		conn.setFilters(*message.Filters)
		wsm.reply(conn, "filters_updated", map[string]interface{}{"filters": conn.Filters()})
	case "subscribe":
		filters := conn.Filters()
		existing := make(map[string]bool, len(filters.EventTypes))
		for _, et := range filters.EventTypes {
			existing[et] = true
		}
		for _, et := range message.EventTypes {
			if !existing[et] {
				filters.EventTypes = append(filters.EventTypes, et)
				existing[et] = true
			}
		}
		conn.setFilters(filters)
		wsm.reply(conn, "subscribed", map[string]interface{}{"filters": filters})
	case "unsubscribe":
		filters := conn.Filters()
		remove := make(map[string]bool, len(message.EventTypes))
		for _, et := range message.EventTypes {
			remove[et] = true
		}
		kept := filters.EventTypes[:0]
		for _, et := range filters.EventTypes {
			if !remove[et] {
				kept = append(kept, et)
			}
		}
		filters.EventTypes = kept
		conn.setFilters(filters)
		wsm.reply(conn, "unsubscribed", map[string]interface{}{"filters": filters})
	case "ping":
		wsm.reply(conn, "pong", map[string]interface{}{"serverTime": time.Now().UTC()})
	default:
		wsm.sendError(conn, "Unknown message type")
	}
}

func (wsm *WebSocketManager) reply(conn *WebSocketConnection, messageType string, data interface{}) {
	wsm.send(conn, WebSocketMessage{
		Type:      messageType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

func (wsm *WebSocketManager) sendError(conn *WebSocketConnection, errorMsg string) {
	wsm.reply(conn, "error", map[string]interface{}{"error": errorMsg})
}

// send queues a reply for a connection that may already be unregistered
func (wsm *WebSocketManager) send(conn *WebSocketConnection, message WebSocketMessage) {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()

	if _, ok := wsm.connections[conn.ID]; ok {
		wsm.trySend(conn, message)
	}
}

// trySend never blocks. Callers hold wsm.mutex so Send cannot be closed underneath.
func (wsm *WebSocketManager) trySend(conn *WebSocketConnection, message WebSocketMessage) {
	select {
	case conn.Send <- message:
	default:
		wsm.logger.WithField("connectionId", conn.ID).Warn("Failed to queue WebSocket message")
	}
}
