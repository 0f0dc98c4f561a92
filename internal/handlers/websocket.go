package handlers

import (
	"log"
	"sync"
	"time"

	"callsheet/internal/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// ProjectionSocket streams the projection to clients. Each message carries the
// whole projection, so a client that missed one only needs the next.
type ProjectionSocket struct {
	manager     *services.ProjectionManager
	connManager *services.ConnectionManager
}

// NewProjectionSocket creates a new projection stream handler
func NewProjectionSocket(manager *services.ProjectionManager, connManager *services.ConnectionManager) *ProjectionSocket {
	return &ProjectionSocket{
		manager:     manager,
		connManager: connManager,
	}
}

// Handle handles a new WebSocket connection
// GET /ws/projection
func (h *ProjectionSocket) Handle(c *websocket.Conn) {
	connID := uuid.New().String()
	conn := h.connManager.Add(connID, 16)

	done := make(chan struct{})
	var writeMu sync.Mutex
	defer func() {
		close(done)
		h.connManager.Remove(connID)
	}()

	c.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.SetPongHandler(func(appData string) error {
		c.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	go h.pingLoop(c, &writeMu, done)
	go h.writeLoop(c, &writeMu, conn)

	current := h.manager.Snapshot()
	conn.WriteChan <- services.ProjectionMessage{Type: "projection", Projection: &current}

	// Clients don't send anything; reading only serves pongs and close frames
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
		c.SetReadDeadline(time.Now().Add(90 * time.Second))
	}
}

func (h *ProjectionSocket) pingLoop(c *websocket.Conn, writeMu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := c.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			writeMu.Unlock()
			if err != nil {
				log.Printf("⚠️  [WS] Ping failed: %v", err)
				return
			}
		}
	}
}

func (h *ProjectionSocket) writeLoop(c *websocket.Conn, writeMu *sync.Mutex, conn *services.ClientConnection) {
	for msg := range conn.WriteChan {
		writeMu.Lock()
		err := c.WriteJSON(msg)
		writeMu.Unlock()
		if err != nil {
			log.Printf("❌ [WS] Write error for %s: %v", conn.ConnID, err)
			return
		}
	}
}
