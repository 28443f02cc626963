package collab

import (
	"encoding/json"

	"richdocServer/backend/internal/ot/richtext"
)

// Buffer is the content of one open document as the engine holds it.
type Buffer interface {
	Len() int
	Apply(tx richtext.Transaction) error
	Elements() richtext.Document
	Snapshot() (string, error)
}

// RichBuffer holds a rich-text document and applies transactions in
// submission order. It is not safe for concurrent use; the owning
// docState serializes access.
type RichBuffer struct {
	doc richtext.Document
}

func NewRichBuffer(doc richtext.Document) *RichBuffer {
	return &RichBuffer{doc: doc}
}

// NewRichBufferFromSnapshot restores a buffer from wire-encoded document
// JSON, the format SaveSnapshot writes.
func NewRichBufferFromSnapshot(content string) (*RichBuffer, error) {
	var doc richtext.Document
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, err
	}
	return &RichBuffer{doc: doc}, nil
}

// Len is the number of document elements, characters and structural
// markers alike.
func (b *RichBuffer) Len() int {
	return len(b.doc)
}

// Apply replaces the document with the result of the transaction. On
// error the document is left unchanged.
func (b *RichBuffer) Apply(tx richtext.Transaction) error {
	next, err := richtext.Apply(b.doc, tx)
	if err != nil {
		return err
	}
	b.doc = next
	return nil
}

// Elements returns the current document. Callers must not modify it.
func (b *RichBuffer) Elements() richtext.Document {
	return b.doc
}

// Snapshot returns the document in wire encoding, suitable for storage
// and for sending to a client on load.
func (b *RichBuffer) Snapshot() (string, error) {
	out, err := json.Marshal(b.doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
