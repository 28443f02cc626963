package ws

import (
	"sync"

	"richdocServer/backend/internal/cache"
	"richdocServer/backend/internal/collab"
)

// Hub tracks which connections have which document open. Rooms hold
// connections rather than user ids: one user can have several tabs, and
// a broadcast must reach each of them.
type Hub struct {
	presence cache.PresenceCache

	mu sync.RWMutex
	// docID -> set of connections
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// RoomSize reports how many connections have the document open.
func (h *Hub) RoomSize(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}

// BroadcastAppliedTx pushes an applied transaction to every connection
// in the room except the submitting one, which gets its ack instead.
func (h *Hub) BroadcastAppliedTx(docID string, origin *Conn, applied collab.AppliedTx, clientID string, clientSeq uint64) {
	msg := TxBroadcastMessage{
		Type:      "tx_broadcast",
		DocID:     docID,
		Revision:  applied.Revision,
		AuthorID:  applied.AuthorID,
		ClientID:  clientID,
		ClientSeq: clientSeq,
		Tx:        applied.Tx,
		AppliedAt: applied.AppliedAt,
	}

	// Enqueue under the read lock: Leave takes the write lock, so a
	// connection cannot leave (and close its send channel) while a
	// broadcast is delivering to it. Enqueue never blocks, so holding
	// the lock across the loop is cheap.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[docID] {
		if c == origin {
			continue
		}
		c.Enqueue(msg)
	}
}

func (h *Hub) BroadcastPresence(docID string, members []PresenceMember) {
	msg := ServerMessage{Type: "presence", DocID: docID, Members: members}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[docID] {
		c.Enqueue(msg)
	}
}

func toWireMembers(members []cache.PresenceMember) []PresenceMember {
	out := make([]PresenceMember, 0, len(members))
	for _, m := range members {
		out = append(out, PresenceMember{UserID: m.UserID, Username: m.Username})
	}
	return out
}

func (h *Hub) BroadcastCursor(docID string, userID uint64, cursor []byte) {
	msg := ServerMessage{Type: "cursor", DocID: docID, UserID: userID, Cursor: cursor}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[docID] {
		c.Enqueue(msg)
	}
}
