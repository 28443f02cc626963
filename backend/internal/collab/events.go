package collab

import (
	"time"

	"richdocServer/backend/internal/ot/richtext"
)

// DocTxEvent is published to Kafka after a transaction is applied, keyed
// by docId so one document always lands in one partition.
type DocTxEvent struct {
	EventType    string               `json:"eventType"` // fixed "TX_APPLIED"
	DocID        string               `json:"docId"`
	OperationID  string               `json:"operationId"`
	Revision     uint64               `json:"revision"`
	AuthorID     uint64               `json:"authorId"`
	ClientID     string               `json:"clientId"`
	ClientSeq    uint64               `json:"clientSeq"`
	BaseRevision uint64               `json:"baseRevision"`
	Tx           richtext.Transaction `json:"tx"`
	AppliedAt    time.Time            `json:"appliedAt"`
}
