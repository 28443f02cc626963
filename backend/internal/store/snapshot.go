package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// SnapshotStore persists wire-encoded document content per revision.
// It uses database/sql directly; snapshots are plain inserts with no
// relations worth an ORM.
type SnapshotStore struct{ db *sql.DB }

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (document_id, revision, content)
		VALUES (?, ?, ?)`,
		docID,
		rev,
		content,
	)
	if err != nil {
		// 1062 = duplicate key: the same revision was already snapshotted,
		// which is fine.
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}

// LoadLatestSnapshot returns the newest stored content and revision, or
// ErrDocumentNotFound when the document was never snapshotted.
func (s *SnapshotStore) LoadLatestSnapshot(ctx context.Context, docID string) (string, uint64, error) {
	var content string
	var rev uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT content, revision FROM document_snapshots
		WHERE document_id = ? ORDER BY revision DESC LIMIT 1`,
		docID,
	).Scan(&content, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, ErrDocumentNotFound
	}
	if err != nil {
		return "", 0, err
	}
	return content, rev, nil
}
