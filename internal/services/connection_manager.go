package services

import (
	"log"
	"sync"
	"time"
)

// ProjectionMessage is pushed to every live client when the projection changes
type ProjectionMessage struct {
	Type       string      `json:"type"`
	Projection *Projection `json:"projection,omitempty"`
	Content    string      `json:"content,omitempty"`
}

// ClientConnection is one live projection stream
type ClientConnection struct {
	ConnID    string
	CreatedAt time.Time
	WriteChan chan ProjectionMessage
}

// ConnectionManager manages all active WebSocket connections
type ConnectionManager struct {
	connections map[string]*ClientConnection
	mutex       sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*ClientConnection),
	}
}

// Add registers a connection with a buffered write channel
func (cm *ConnectionManager) Add(connID string, buffer int) *ClientConnection {
	conn := &ClientConnection{
		ConnID:    connID,
		CreatedAt: time.Now(),
		WriteChan: make(chan ProjectionMessage, buffer),
	}

	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.connections[connID] = conn
	log.Printf("✅ Connection added: %s (Total: %d)", connID, len(cm.connections))
	return conn
}

// Remove removes a connection and closes its write channel
func (cm *ConnectionManager) Remove(connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if conn, exists := cm.connections[connID]; exists {
		close(conn.WriteChan)
		delete(cm.connections, connID)
		log.Printf("❌ Connection removed: %s (Total: %d)", connID, len(cm.connections))
	}
}

// Count returns the number of active connections
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// Broadcast queues msg on every connection. A client whose buffer is full misses
// the message; the next one carries the whole projection anyway.
func (cm *ConnectionManager) Broadcast(msg ProjectionMessage) int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	sent := 0
	for id, conn := range cm.connections {
		select {
		case conn.WriteChan <- msg:
			sent++
		default:
			log.Printf("⚠️  [WS] Dropped projection update for slow client %s", id)
		}
	}
	return sent
}

// BroadcastProjection is an OnChange listener
func (cm *ConnectionManager) BroadcastProjection(p Projection) {
	cm.Broadcast(ProjectionMessage{Type: "projection", Projection: &p})
}
