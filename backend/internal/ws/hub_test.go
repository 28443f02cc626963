package ws

import (
	"testing"
	"time"

	"richdocServer/backend/internal/collab"
	"richdocServer/backend/internal/ot/richtext"
)

// connForTest builds a Conn with no underlying socket; only the send
// channel matters for hub routing.
func connForTest(userID uint64) *Conn {
	return NewConn(nil, nil, "", userID, "u", nil, nil)
}

func drain(t *testing.T, c *Conn) []OutboundMessage {
	t.Helper()
	var out []OutboundMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_JoinLeaveRoomSize(t *testing.T) {
	h := NewHub(nil)
	a, b := connForTest(1), connForTest(2)

	h.Join("doc-1", a)
	h.Join("doc-1", b)
	if got := h.RoomSize("doc-1"); got != 2 {
		t.Fatalf("RoomSize = %d, want 2", got)
	}

	h.Leave("doc-1", a)
	if got := h.RoomSize("doc-1"); got != 1 {
		t.Fatalf("RoomSize after leave = %d, want 1", got)
	}

	h.Leave("doc-1", b)
	if got := h.RoomSize("doc-1"); got != 0 {
		t.Fatalf("RoomSize after last leave = %d, want 0", got)
	}
	if _, ok := h.rooms["doc-1"]; ok {
		t.Fatalf("empty room was not deleted")
	}
}

func TestHub_BroadcastAppliedTxSkipsOrigin(t *testing.T) {
	h := NewHub(nil)
	origin, other := connForTest(1), connForTest(2)
	h.Join("doc-1", origin)
	h.Join("doc-1", other)

	applied := collab.AppliedTx{
		OperationID: "t-1",
		Revision:    7,
		AuthorID:    1,
		Tx:          richtext.Transaction{Operations: []richtext.Operation{richtext.Insert(richtext.Char('x'))}},
		AppliedAt:   time.Now(),
	}
	h.BroadcastAppliedTx("doc-1", origin, applied, "cli-1", 3)

	if msgs := drain(t, origin); len(msgs) != 0 {
		t.Fatalf("origin received %d broadcast messages, want 0", len(msgs))
	}
	msgs := drain(t, other)
	if len(msgs) != 1 {
		t.Fatalf("other received %d messages, want 1", len(msgs))
	}
	bc, ok := msgs[0].(TxBroadcastMessage)
	if !ok {
		t.Fatalf("message type = %T, want TxBroadcastMessage", msgs[0])
	}
	if bc.Revision != 7 || bc.ClientID != "cli-1" || bc.ClientSeq != 3 {
		t.Fatalf("broadcast fields = %+v", bc)
	}
}

func TestHub_BroadcastOnlyReachesRoom(t *testing.T) {
	h := NewHub(nil)
	in, out := connForTest(1), connForTest(2)
	h.Join("doc-1", in)
	h.Join("doc-2", out)

	h.BroadcastPresence("doc-1", []PresenceMember{{UserID: 1}})

	if msgs := drain(t, in); len(msgs) != 1 {
		t.Fatalf("in-room conn got %d messages, want 1", len(msgs))
	}
	if msgs := drain(t, out); len(msgs) != 0 {
		t.Fatalf("out-of-room conn got %d messages, want 0", len(msgs))
	}
}

func TestHub_BroadcastAfterDisconnectSequence(t *testing.T) {
	h := NewHub(nil)
	stayer, leaver := connForTest(1), connForTest(2)
	h.Join("doc-1", stayer)
	h.Join("doc-1", leaver)

	// The disconnect path leaves the room before closing the send
	// channel; a broadcast after that must never touch the closed
	// channel.
	h.Leave("doc-1", leaver)
	close(leaver.send)

	h.BroadcastPresence("doc-1", []PresenceMember{{UserID: 1}})
	if msgs := drain(t, stayer); len(msgs) != 1 {
		t.Fatalf("stayer got %d messages, want 1", len(msgs))
	}
}

func TestConn_EnqueueDropsWhenFull(t *testing.T) {
	c := connForTest(1)
	for i := 0; i < cap(c.send)+10; i++ {
		c.Enqueue(ServerMessage{Type: "presence"})
	}
	if got := len(c.send); got != cap(c.send) {
		t.Fatalf("queued = %d, want %d", got, cap(c.send))
	}
}
