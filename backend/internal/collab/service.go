package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"richdocServer/backend/internal/ot/richtext"
)

// Service is the collaboration engine: it owns per-document state and
// serializes transaction application per document. It performs no OT
// transform; a transaction built against a stale revision is rejected
// and the client must rebase and resubmit.
type Service interface {
	Submit(ctx context.Context, docID string, authorID uint64,
		baseRevision uint64, clientID string, clientSeq uint64,
		tx richtext.Transaction) (AppliedTx, error)

	CurrentRevision(ctx context.Context, docID string) (uint64, error)

	// LoadDocument returns the wire-encoded document and its revision.
	LoadDocument(ctx context.Context, docID string) (string, uint64, error)

	// TxSince returns applied transactions after fromRevision, for a
	// client catching up on join or after a conflict.
	TxSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]AppliedTx, error)

	SaveSnapshot(ctx context.Context, docID string) error

	GetDocumentID(ctx context.Context, title string) (string, error)
	CreateDocument(ctx context.Context, ownerID uint64, title string) error
}

type SnapshotStore interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content string) error
	LoadLatestSnapshot(ctx context.Context, docID string) (string, uint64, error)
}

type DocumentStore interface {
	GetDocumentID(ctx context.Context, title string) (string, error)
	CreateDocument(ctx context.Context, ownerID uint64, title string) error
}

// AppliedTx records one applied transaction for acks, broadcast and
// catch-up.
type AppliedTx struct {
	OperationID string
	Revision    uint64
	AuthorID    uint64
	Tx          richtext.Transaction
	AppliedAt   time.Time
}

var (
	ErrRevisionConflict      = errors.New("REVISION_CONFLICT")
	ErrDuplicateOrOutOfOrder = errors.New("DUPLICATE_OR_OUT_OF_ORDER")
	ErrDocumentNotFound      = errors.New("DOCUMENT_NOT_FOUND")
)

type docState struct {
	mu       sync.RWMutex
	revision uint64
	txRing   []AppliedTx
	// dedup window: highest clientSeq seen per clientId
	lastSeqByClient map[string]uint64
	buf             Buffer
}

// InMemoryService keeps every open document in memory; snapshots go to
// the SnapshotStore, document metadata to the DocumentStore, and applied
// transactions are fanned out through the dispatcher.
type InMemoryService struct {
	mu      sync.RWMutex
	docs    map[string]*docState
	ringCap int

	snapshots  SnapshotStore
	documents  DocumentStore
	dispatcher *KafkaDispatcher

	// collapses concurrent cold loads of the same document into one
	// snapshot query
	loads singleflight.Group
}

func NewInMemoryService(snapshots SnapshotStore, documents DocumentStore, dispatcher *KafkaDispatcher) *InMemoryService {
	return &InMemoryService{
		docs:       make(map[string]*docState),
		ringCap:    1024,
		snapshots:  snapshots,
		documents:  documents,
		dispatcher: dispatcher,
	}
}

func (s *InMemoryService) getOrCreateDoc(docID string) *docState {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds != nil {
		return ds
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds = s.docs[docID]; ds == nil {
		ds = &docState{
			lastSeqByClient: make(map[string]uint64),
			txRing:          make([]AppliedTx, 0, s.ringCap),
			buf:             NewRichBuffer(nil),
		}
		s.docs[docID] = ds
	}
	return ds
}

func (s *InMemoryService) Submit(ctx context.Context, docID string, authorID uint64,
	baseRevision uint64, clientID string, clientSeq uint64,
	tx richtext.Transaction) (AppliedTx, error) {

	ds := s.getOrCreateDoc(docID)
	ds.mu.Lock()
	defer ds.mu.Unlock()

	// Dedup: only strictly increasing sequence numbers per client.
	if last := ds.lastSeqByClient[clientID]; clientSeq <= last {
		return AppliedTx{}, ErrDuplicateOrOutOfOrder
	}
	if baseRevision != ds.revision {
		return AppliedTx{}, ErrRevisionConflict
	}

	// Apply errors (over-retain, delete mismatch, incomplete coverage)
	// mean the transaction does not fit the current document; the state
	// is untouched and the client is expected to resync.
	if err := ds.buf.Apply(tx); err != nil {
		return AppliedTx{}, fmt.Errorf("apply rev %d: %w", ds.revision, err)
	}

	ds.revision++
	applied := AppliedTx{
		OperationID: fmt.Sprintf("t-%d", time.Now().UnixNano()),
		Revision:    ds.revision,
		AuthorID:    authorID,
		Tx:          tx,
		AppliedAt:   time.Now(),
	}

	// Ring buffer: drop the oldest entry once full.
	if len(ds.txRing) == s.ringCap {
		copy(ds.txRing, ds.txRing[1:])
		ds.txRing = ds.txRing[:len(ds.txRing)-1]
	}
	ds.txRing = append(ds.txRing, applied)
	ds.lastSeqByClient[clientID] = clientSeq

	if s.dispatcher != nil {
		evt := DocTxEvent{
			EventType:    "TX_APPLIED",
			DocID:        docID,
			OperationID:  applied.OperationID,
			Revision:     applied.Revision,
			AuthorID:     applied.AuthorID,
			ClientID:     clientID,
			ClientSeq:    clientSeq,
			BaseRevision: baseRevision,
			Tx:           applied.Tx,
			AppliedAt:    applied.AppliedAt,
		}
		// Best effort: the ring, not Kafka, backs catch-up.
		_ = s.dispatcher.Enqueue(ctx, evt)
	}

	return applied, nil
}

func (s *InMemoryService) CurrentRevision(ctx context.Context, docID string) (uint64, error) {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds == nil {
		return 0, nil
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.revision, nil
}

func (s *InMemoryService) LoadDocument(ctx context.Context, docID string) (string, uint64, error) {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds == nil {
		var err error
		if ds, err = s.hydrate(ctx, docID); err != nil {
			return "", 0, err
		}
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	content, err := ds.buf.Snapshot()
	if err != nil {
		return "", 0, err
	}
	return content, ds.revision, nil
}

// hydrate rebuilds in-memory state for a cold document from its latest
// stored snapshot, so editing can resume where the last save left off.
// Concurrent callers for the same docID share one load.
func (s *InMemoryService) hydrate(ctx context.Context, docID string) (*docState, error) {
	v, err, _ := s.loads.Do(docID, func() (interface{}, error) {
		return s.hydrateOnce(ctx, docID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*docState), nil
}

func (s *InMemoryService) hydrateOnce(ctx context.Context, docID string) (*docState, error) {
	if s.snapshots == nil {
		return nil, ErrDocumentNotFound
	}
	content, rev, err := s.snapshots.LoadLatestSnapshot(ctx, docID)
	if err != nil {
		return nil, ErrDocumentNotFound
	}
	buf, err := NewRichBufferFromSnapshot(content)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot for %s: %w", docID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.docs[docID]; existing != nil {
		return existing, nil
	}
	ds := &docState{
		revision:        rev,
		lastSeqByClient: make(map[string]uint64),
		txRing:          make([]AppliedTx, 0, s.ringCap),
		buf:             buf,
	}
	s.docs[docID] = ds
	return ds, nil
}

func (s *InMemoryService) TxSince(ctx context.Context, docID string, fromRevision uint64, limit int) ([]AppliedTx, error) {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds == nil {
		return nil, nil
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	var out []AppliedTx
	for _, tx := range ds.txRing {
		if tx.Revision > fromRevision {
			out = append(out, tx)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryService) SaveSnapshot(ctx context.Context, docID string) error {
	if s.snapshots == nil {
		return errors.New("snapshot store not initialized")
	}
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds == nil {
		return ErrDocumentNotFound
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	content, err := ds.buf.Snapshot()
	if err != nil {
		return err
	}
	return s.snapshots.SaveDocumentSnapshot(ctx, docID, ds.revision, content)
}

func (s *InMemoryService) GetDocumentID(ctx context.Context, title string) (string, error) {
	if s.documents == nil {
		return "", errors.New("document store not initialized")
	}
	return s.documents.GetDocumentID(ctx, title)
}

func (s *InMemoryService) CreateDocument(ctx context.Context, ownerID uint64, title string) error {
	if s.documents == nil {
		return errors.New("document store not initialized")
	}
	return s.documents.CreateDocument(ctx, ownerID, title)
}
