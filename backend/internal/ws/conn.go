package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"richdocServer/backend/internal/collab"
	"richdocServer/backend/internal/ot/richtext"
)

const (
	presenceTTL   = 600 * time.Second
	submitTimeout = 200 * time.Millisecond
)

// Conn is one WebSocket connection of one authenticated user. The read
// loop owns all inbound handling; the write loop drains the buffered
// send channel.
type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	docID    string
	userID   uint64
	username string

	send chan OutboundMessage

	svc collab.Service
	sem *collab.SemaphoreControl
}

func NewConn(ws *websocket.Conn, hub *Hub, docID string, userID uint64, username string, svc collab.Service, sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		docID:    docID,
		userID:   userID,
		username: username,
		send:     make(chan OutboundMessage, 32),
		svc:      svc,
		sem:      sem,
	}
}

// Enqueue queues a message without blocking; a slow consumer loses
// messages rather than stalling the room.
func (c *Conn) Enqueue(msg OutboundMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Conn) errorMsg(code, content string) {
	c.Enqueue(ServerMessage{Type: "error", Code: code, Content: content})
}

func (c *Conn) handleTxSubmit(ctx context.Context, msg ClientMessage) {
	var tx richtext.Transaction
	if err := json.Unmarshal(msg.Tx, &tx); err != nil {
		c.errorMsg("DECODE_ERROR", err.Error())
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	if err := c.sem.Acquire(submitCtx); err != nil {
		c.errorMsg("BUSY", err.Error())
		return
	}
	defer c.sem.Release()

	applied, err := c.svc.Submit(submitCtx, msg.DocID, c.userID,
		msg.BaseRevision, msg.ClientID, msg.ClientSeq, tx)
	if err != nil {
		switch {
		case errors.Is(err, collab.ErrRevisionConflict):
			c.errorMsg("REVISION_CONFLICT", "transaction based on stale revision; resync required")
		case errors.Is(err, collab.ErrDuplicateOrOutOfOrder):
			c.errorMsg("DUPLICATE_OR_OUT_OF_ORDER", "clientSeq already processed")
		case errors.Is(err, richtext.ErrOverRetain),
			errors.Is(err, richtext.ErrDeleteMismatch),
			errors.Is(err, richtext.ErrIncompleteApplication):
			c.errorMsg("TX_REJECTED", "transaction does not apply to current document state")
		default:
			c.errorMsg("SUBMIT_FAILED", err.Error())
		}
		return
	}

	c.Enqueue(TxAppliedMessage{
		Type:            "tx_applied",
		DocID:           msg.DocID,
		BaseRevision:    msg.BaseRevision,
		CurrentRevision: applied.Revision,
		ClientID:        msg.ClientID,
		ClientSeq:       msg.ClientSeq,
	})
	c.hub.BroadcastAppliedTx(msg.DocID, c, applied, msg.ClientID, msg.ClientSeq)
}

func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.send)
	defer func() {
		if c.docID != "" {
			c.hub.Leave(c.docID, c)
		}
	}()

	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("read json error (user=%d, doc=%s): %v", c.userID, c.docID, err)
			return
		}

		switch msg.Type {
		case "heartbeat":
			if c.docID == "" {
				c.Enqueue(ServerMessage{Type: "feedback", Content: "heartbeat received"})
				continue
			}
			if err := c.hub.presence.AddMember(ctx, c.docID, c.userID, c.username, presenceTTL); err != nil {
				log.Printf("add member error: %v", err)
			}
			members, err := c.hub.presence.GetAliveMembers(ctx, c.docID)
			if err != nil {
				log.Printf("get members error: %v", err)
			}
			c.hub.BroadcastPresence(c.docID, toWireMembers(members))
			c.Enqueue(ServerMessage{Type: "feedback", Content: "heartbeat received"})

		case "createDocument":
			if err := c.svc.CreateDocument(ctx, c.userID, msg.DocTitle); err != nil {
				log.Printf("create document error: %v", err)
				c.errorMsg("CREATE_DOC_FAILED", err.Error())
				continue
			}
			docID, err := c.svc.GetDocumentID(ctx, msg.DocTitle)
			if err != nil {
				log.Printf("get document id error: %v", err)
				c.errorMsg("GET_DOCID_FAILED", err.Error())
				continue
			}
			_ = c.hub.presence.AddMember(ctx, docID, c.userID, c.username, presenceTTL)
			c.Enqueue(ServerMessage{Type: "createDocument", DocID: docID})

		case "joinDocument":
			docID := msg.DocID
			if msg.DocTitle != "" {
				id, err := c.svc.GetDocumentID(ctx, msg.DocTitle)
				if err != nil {
					log.Printf("get document id error: %v", err)
					c.errorMsg("GET_DOCID_FAILED", err.Error())
					continue
				}
				docID = id
			}
			if docID == "" {
				c.errorMsg("MISSING_DOC", "joinDocument needs docId or docTitle")
				continue
			}
			// switching rooms: leave the old one first
			if c.docID != "" && c.docID != docID {
				c.hub.Leave(c.docID, c)
			}
			c.docID = docID
			c.hub.Join(c.docID, c)
			_ = c.hub.presence.AddMember(ctx, c.docID, c.userID, c.username, presenceTTL)
			rev, _ := c.svc.CurrentRevision(ctx, c.docID)
			c.Enqueue(ServerMessage{Type: "joinDocument", DocID: c.docID, Revision: rev})
			c.replayCursors(ctx)

		case "tx_submit":
			c.handleTxSubmit(ctx, msg)

		case "tx_since":
			txs, err := c.svc.TxSince(ctx, msg.DocID, msg.FromRevision, 0)
			if err != nil {
				c.errorMsg("TX_SINCE_FAILED", err.Error())
				continue
			}
			for _, applied := range txs {
				c.Enqueue(TxBroadcastMessage{
					Type:      "tx_broadcast",
					DocID:     msg.DocID,
					Revision:  applied.Revision,
					AuthorID:  applied.AuthorID,
					Tx:        applied.Tx,
					AppliedAt: applied.AppliedAt,
				})
			}
			rev, _ := c.svc.CurrentRevision(ctx, msg.DocID)
			c.Enqueue(ServerMessage{Type: "tx_since", DocID: msg.DocID, Revision: rev})

		case "cursor":
			if c.docID == "" || len(msg.Cursor) == 0 {
				continue
			}
			if err := c.hub.presence.SetCursor(ctx, c.docID, c.userID, msg.Cursor, presenceTTL); err != nil {
				log.Printf("set cursor error: %v", err)
			}
			c.hub.BroadcastCursor(c.docID, c.userID, msg.Cursor)

		case "saveDocument":
			if err := c.svc.SaveSnapshot(ctx, msg.DocID); err != nil {
				log.Printf("save document error: %v", err)
				c.errorMsg("SAVE_FAILED", err.Error())
				continue
			}
			c.Enqueue(ServerMessage{Type: "saveDocument", DocID: msg.DocID})

		case "loadDocument":
			content, revision, err := c.svc.LoadDocument(ctx, msg.DocID)
			if err != nil {
				log.Printf("load document error: %v", err)
				c.errorMsg("LOAD_FAILED", err.Error())
				continue
			}
			c.Enqueue(ServerMessage{Type: "loadDocument", DocID: msg.DocID, Content: content, Revision: revision})

		case "show_alive_members":
			members, err := c.hub.presence.GetAliveMembers(ctx, c.docID)
			if err != nil {
				log.Printf("get alive members error: %v", err)
				continue
			}
			c.Enqueue(ServerMessage{Type: "show_alive_members", DocID: c.docID, Members: toWireMembers(members)})

		default:
			c.Enqueue(ServerMessage{Type: "ignored", Content: "unknown message type"})
		}
	}
}

// replayCursors sends the stored caret of every other live member, so a
// joining client renders carets without waiting for them to move.
func (c *Conn) replayCursors(ctx context.Context) {
	members, err := c.hub.presence.GetAliveMembers(ctx, c.docID)
	if err != nil {
		log.Printf("get alive members error: %v", err)
		return
	}
	for _, m := range members {
		if m.UserID == c.userID {
			continue
		}
		cur, err := c.hub.presence.GetCursor(ctx, c.docID, m.UserID)
		if err != nil || len(cur) == 0 {
			continue
		}
		c.Enqueue(ServerMessage{Type: "cursor", DocID: c.docID, UserID: m.UserID, Cursor: cur})
	}
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			log.Printf("write json error (user=%d, doc=%s): %v", c.userID, c.docID, err)
			return
		}
	}
}
