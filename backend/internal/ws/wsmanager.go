package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"richdocServer/backend/internal/collab"
)

// Accept same-host dev origins; browsers omit Origin for non-browser
// clients and some send the literal "null".
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	h   *Hub
	svc collab.Service
	sem *collab.SemaphoreControl
}

func NewManager(h *Hub, svc collab.Service, sem *collab.SemaphoreControl) *Manager {
	return &Manager{h: h, svc: svc, sem: sem}
}

// WebSocketConnect upgrades an authenticated HTTP request and runs the
// connection until the client goes away. The auth middleware has already
// put userId/username into the gin context.
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.h, "", userID, username, m.svc, m.sem)

	// Write loop first, so the welcome and everything after it drains.
	go wsConn.writeLoop()
	wsConn.Enqueue(ServerMessage{Type: "welcome", Content: "connected; join a document to start editing"})

	// Blocks until the connection closes.
	wsConn.readLoop(c.Request.Context())
}
