package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"blue-carbon-registry/portal-backend/internal/notifications"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Manager pushes report change events to connected viewers so the pending
// list converges everywhere after every decision.
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// Connection represents one live viewer
type Connection struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan notifications.ReportChangeEvent
}

// Hub manages the broadcast of events to connections
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan notifications.ReportChangeEvent
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
}

// NewManager creates a new WebSocket manager
func NewManager(logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan notifications.ReportChangeEvent, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
	}

	go hub.run()

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// In production, implement proper origin checking
				return true
			},
		},
	}
}

// Run pumps publisher events into the hub until the context ends. The
// subscription handle is closed on the way out.
func (m *Manager) Run(ctx context.Context, publisher notifications.Publisher) error {
	sub, err := publisher.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			m.hub.broadcast <- event
		}
	}
}

// HandleConnection upgrades an HTTP request into a live viewer connection
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, userID string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	connection := &Connection{
		ID:     uuid.New().String(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan notifications.ReportChangeEvent, 256),
	}

	m.hub.register <- connection

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)

	m.logger.Debug("Viewer connected",
		zap.String("connection_id", connection.ID),
		zap.String("user_id", userID))

	return connection, nil
}

// ConnectionCount returns the number of live viewer connections
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Shutdown stops the hub and closes every connection
func (m *Manager) Shutdown() {
	close(m.hub.stop)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, conn := range m.connections {
		conn.Conn.Close()
		delete(m.connections, id)
	}
}

// dropConnection hands the connection back to the hub and forgets it.
// The stop case keeps disconnecting readers from blocking forever once
// the hub has shut down and nothing drains the unregister channel.
func (m *Manager) dropConnection(conn *Connection) {
	select {
	case m.hub.unregister <- conn:
	case <-m.hub.stop:
	}

	m.mu.Lock()
	delete(m.connections, conn.ID)
	m.mu.Unlock()
}

// readPump drains client frames; viewers only listen, so anything read is
// discarded and the pump exists to detect disconnects
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.dropConnection(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(maxMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pushes events and keepalive pings to the client
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// run routes registrations and broadcasts for the hub
func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
			}
		case event := <-h.broadcast:
			for conn := range h.connections {
				select {
				case conn.Send <- event:
				default:
					// Slow viewer: drop it rather than block the hub
					delete(h.connections, conn)
					close(conn.Send)
				}
			}
		case <-h.stop:
			return
		}
	}
}
