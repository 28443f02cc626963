package collab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"richdocServer/backend/internal/ot/richtext"
)

type fakeSnapshotStore struct {
	mu      sync.Mutex
	docID   string
	rev     uint64
	content string
	saves   int
	loads   int
	// when set, LoadLatestSnapshot blocks until the channel is closed
	block chan struct{}
}

func (f *fakeSnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docID, f.rev, f.content = docID, rev, content
	f.saves++
	return nil
}

func (f *fakeSnapshotStore) LoadLatestSnapshot(ctx context.Context, docID string) (string, uint64, error) {
	f.mu.Lock()
	f.loads++
	block, match := f.block, docID == f.docID
	content, rev := f.content, f.rev
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if !match {
		return "", 0, errors.New("no snapshot")
	}
	return content, rev, nil
}

func (f *fakeSnapshotStore) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

type fakeDocumentStore struct {
	ids map[string]string
}

func (f *fakeDocumentStore) GetDocumentID(ctx context.Context, title string) (string, error) {
	id, ok := f.ids[title]
	if !ok {
		return "", ErrDocumentNotFound
	}
	return id, nil
}

func (f *fakeDocumentStore) CreateDocument(ctx context.Context, ownerID uint64, title string) error {
	f.ids[title] = "d-" + title
	return nil
}

func insertTx(s string) richtext.Transaction {
	els := make([]richtext.Element, 0, len(s))
	for _, r := range s {
		els = append(els, richtext.Char(r))
	}
	return richtext.Transaction{
		LengthDifference: len(els),
		Operations:       []richtext.Operation{richtext.Insert(els...)},
	}
}

// retainAll pads a transaction so it covers a document of length n.
func withRetain(tx richtext.Transaction, n int) richtext.Transaction {
	tx.Operations = append(tx.Operations, richtext.Retain(n))
	return tx
}

func TestSubmit_AppliesAndBumpsRevision(t *testing.T) {
	svc := NewInMemoryService(&fakeSnapshotStore{}, &fakeDocumentStore{ids: map[string]string{}}, nil)
	ctx := context.Background()

	applied, err := svc.Submit(ctx, "doc1", 7, 0, "c1", 1, insertTx("Hi"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if applied.Revision != 1 {
		t.Fatalf("Revision = %d, want 1", applied.Revision)
	}
	if applied.AuthorID != 7 {
		t.Fatalf("AuthorID = %d, want 7", applied.AuthorID)
	}

	content, rev, err := svc.LoadDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if rev != 1 {
		t.Fatalf("revision = %d, want 1", rev)
	}
	if want := `["H","i"]`; content != want {
		t.Fatalf("content = %s, want %s", content, want)
	}
}

func TestSubmit_RevisionConflict(t *testing.T) {
	svc := NewInMemoryService(nil, nil, nil)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "doc1", 1, 0, "c1", 1, insertTx("a")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	// Built against revision 0, but the document is at revision 1.
	_, err := svc.Submit(ctx, "doc1", 1, 0, "c1", 2, withRetain(insertTx("b"), 1))
	if !errors.Is(err, ErrRevisionConflict) {
		t.Fatalf("Submit() error = %v, want ErrRevisionConflict", err)
	}
}

func TestSubmit_DuplicateSeqRejected(t *testing.T) {
	svc := NewInMemoryService(nil, nil, nil)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "doc1", 1, 0, "c1", 5, insertTx("a")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	_, err := svc.Submit(ctx, "doc1", 1, 1, "c1", 5, withRetain(insertTx("b"), 1))
	if !errors.Is(err, ErrDuplicateOrOutOfOrder) {
		t.Fatalf("Submit() error = %v, want ErrDuplicateOrOutOfOrder", err)
	}
}

func TestSubmit_NonApplyingTransaction(t *testing.T) {
	svc := NewInMemoryService(nil, nil, nil)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "doc1", 1, 0, "c1", 1, insertTx("Hi")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	bad := richtext.Transaction{Operations: []richtext.Operation{
		richtext.Remove(richtext.Char('X')),
		richtext.Retain(1),
	}}
	_, err := svc.Submit(ctx, "doc1", 1, 1, "c1", 2, bad)
	if !errors.Is(err, richtext.ErrDeleteMismatch) {
		t.Fatalf("Submit() error = %v, want ErrDeleteMismatch", err)
	}

	// Failed submits leave revision and content untouched.
	content, rev, err := svc.LoadDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if rev != 1 {
		t.Fatalf("revision = %d, want 1", rev)
	}
	if want := `["H","i"]`; content != want {
		t.Fatalf("content = %s, want %s", content, want)
	}
}

func TestTxSince(t *testing.T) {
	svc := NewInMemoryService(nil, nil, nil)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "doc1", 1, 0, "c1", 1, insertTx("a")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := svc.Submit(ctx, "doc1", 1, 1, "c1", 2, withRetain(insertTx("b"), 1)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := svc.Submit(ctx, "doc1", 1, 2, "c1", 3, withRetain(insertTx("c"), 2)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	txs, err := svc.TxSince(ctx, "doc1", 1, 0)
	if err != nil {
		t.Fatalf("TxSince() error = %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("TxSince() = %d transactions, want 2", len(txs))
	}
	if txs[0].Revision != 2 || txs[1].Revision != 3 {
		t.Fatalf("revisions = %d,%d, want 2,3", txs[0].Revision, txs[1].Revision)
	}

	limited, err := svc.TxSince(ctx, "doc1", 0, 1)
	if err != nil {
		t.Fatalf("TxSince() error = %v", err)
	}
	if len(limited) != 1 || limited[0].Revision != 1 {
		t.Fatalf("TxSince(limit=1) = %v, want single revision 1", limited)
	}
}

func TestSaveSnapshot(t *testing.T) {
	snaps := &fakeSnapshotStore{}
	svc := NewInMemoryService(snaps, nil, nil)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "doc1", 1, 0, "c1", 1, insertTx("Hi")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := svc.SaveSnapshot(ctx, "doc1"); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if snaps.saves != 1 || snaps.docID != "doc1" || snaps.rev != 1 {
		t.Fatalf("snapshot = %+v, want doc1 rev 1", snaps)
	}
	if want := `["H","i"]`; snaps.content != want {
		t.Fatalf("snapshot content = %s, want %s", snaps.content, want)
	}
}

func TestLoadDocument_HydratesFromSnapshot(t *testing.T) {
	snaps := &fakeSnapshotStore{docID: "doc1", rev: 4, content: `["H","i"]`}
	svc := NewInMemoryService(snaps, nil, nil)
	ctx := context.Background()

	content, rev, err := svc.LoadDocument(ctx, "doc1")
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if rev != 4 || content != `["H","i"]` {
		t.Fatalf("LoadDocument() = %s rev %d, want snapshot content at rev 4", content, rev)
	}

	// Editing resumes on top of the hydrated state.
	applied, err := svc.Submit(ctx, "doc1", 1, 4, "c1", 1, withRetain(insertTx("!"), 2))
	if err != nil {
		t.Fatalf("Submit() after hydrate error = %v", err)
	}
	if applied.Revision != 5 {
		t.Fatalf("Revision = %d, want 5", applied.Revision)
	}
}

func TestLoadDocument_ConcurrentHydrateLoadsOnce(t *testing.T) {
	snaps := &fakeSnapshotStore{
		docID:   "doc1",
		rev:     2,
		content: `["H","i"]`,
		block:   make(chan struct{}),
	}
	svc := NewInMemoryService(snaps, nil, nil)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content, rev, err := svc.LoadDocument(ctx, "doc1")
			if err != nil {
				t.Errorf("LoadDocument() error = %v", err)
				return
			}
			if rev != 2 || content != `["H","i"]` {
				t.Errorf("LoadDocument() = %s rev %d, want snapshot at rev 2", content, rev)
			}
		}()
	}

	// Let every caller reach the in-flight load before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(snaps.block)
	wg.Wait()

	if got := snaps.loadCount(); got != 1 {
		t.Fatalf("snapshot loads = %d, want 1", got)
	}
}

func TestLoadDocument_Unknown(t *testing.T) {
	svc := NewInMemoryService(&fakeSnapshotStore{}, nil, nil)
	if _, _, err := svc.LoadDocument(context.Background(), "missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("LoadDocument() error = %v, want ErrDocumentNotFound", err)
	}
}

func TestSaveSnapshot_UnknownDocument(t *testing.T) {
	svc := NewInMemoryService(&fakeSnapshotStore{}, nil, nil)
	if err := svc.SaveSnapshot(context.Background(), "missing"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("SaveSnapshot() error = %v, want ErrDocumentNotFound", err)
	}
}
