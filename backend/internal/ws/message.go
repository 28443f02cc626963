package ws

import (
	"encoding/json"
	"time"

	"richdocServer/backend/internal/ot/richtext"
)

// ClientMessage is every inbound frame. Tx stays raw JSON so a malformed
// transaction produces a decode error on that message instead of killing
// the connection.
type ClientMessage struct {
	Type         string          `json:"type"`
	DocID        string          `json:"docId,omitempty"`
	DocTitle     string          `json:"docTitle,omitempty"`
	BaseRevision uint64          `json:"baseRevision,omitempty"`
	ClientID     string          `json:"clientId,omitempty"`
	ClientSeq    uint64          `json:"clientSeq,omitempty"`
	FromRevision uint64          `json:"fromRevision,omitempty"`
	Tx           json.RawMessage `json:"tx,omitempty"`
	Cursor       json.RawMessage `json:"cursor,omitempty"`
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

// ServerMessage is the generic outbound frame for acks, errors and
// presence updates.
type ServerMessage struct {
	Type     string           `json:"type"`
	Code     string           `json:"code,omitempty"`
	DocID    string           `json:"docId,omitempty"`
	UserID   uint64           `json:"userId,omitempty"`
	Revision uint64           `json:"revision,omitempty"`
	Members  []PresenceMember `json:"members,omitempty"`
	Cursor   json.RawMessage  `json:"cursor,omitempty"`
	Content  string           `json:"content,omitempty"`
}

// TxAppliedMessage acknowledges the submitting client.
type TxAppliedMessage struct {
	Type            string `json:"type"` // fixed "tx_applied"
	DocID           string `json:"docId"`
	BaseRevision    uint64 `json:"baseRevision"`
	CurrentRevision uint64 `json:"currentRevision"`
	ClientID        string `json:"clientId"`
	ClientSeq       uint64 `json:"clientSeq"`
}

// TxBroadcastMessage pushes an applied transaction to the other
// connections in the document room (including the author's other tabs).
type TxBroadcastMessage struct {
	Type      string               `json:"type"` // fixed "tx_broadcast"
	DocID     string               `json:"docId"`
	Revision  uint64               `json:"revision"`
	AuthorID  uint64               `json:"authorId"`
	ClientID  string               `json:"clientId,omitempty"`
	ClientSeq uint64               `json:"clientSeq,omitempty"`
	Tx        richtext.Transaction `json:"tx"`
	AppliedAt time.Time            `json:"appliedAt,omitempty"`
}

// OutboundMessage is anything the write loop can serialize to a client.
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string      { return m.Type }
func (m TxAppliedMessage) MessageType() string   { return m.Type }
func (m TxBroadcastMessage) MessageType() string { return m.Type }
