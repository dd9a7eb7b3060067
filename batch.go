package sql2hub

import (
	"bytes"

	"github.com/autom8ter/sql2hub/errors"
)

// DefaultMaxBatchSize is the number of documents per batch when none is configured
const DefaultMaxBatchSize = 200

const maxPrealloc = 1024

// Batch is an ordered group of documents published as a single json array payload
type Batch struct {
	Documents []*Document
}

// Len returns the number of documents in the batch
func (b *Batch) Len() int {
	return len(b.Documents)
}

// Bytes returns the batch as a compact json array
func (b *Batch) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, doc := range b.Documents {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(doc.String())
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// String returns the batch as a compact json array string
func (b *Batch) String() string {
	return string(b.Bytes())
}

// MarshalJSON satisfies the json Marshaler interface
func (b *Batch) MarshalJSON() ([]byte, error) {
	return b.Bytes(), nil
}

// Accumulator groups documents into batches of at most size documents.
// Add returns a batch each time one fills up and Flush returns the remainder once the source is exhausted.
type Accumulator struct {
	size    int
	current []*Document
}

// NewAccumulator creates an accumulator emitting batches of the given size
func NewAccumulator(size int) (*Accumulator, error) {
	if size < 1 {
		return nil, errors.New(errors.Configuration, "max batch size must be at least 1: got %v", size)
	}
	return &Accumulator{
		size:    size,
		current: make([]*Document, 0, min(size, maxPrealloc)),
	}, nil
}

// Add appends a document. It returns the completed batch when the document filled it.
func (a *Accumulator) Add(doc *Document) (*Batch, bool) {
	a.current = append(a.current, doc)
	if len(a.current) < a.size {
		return nil, false
	}
	return a.take(), true
}

// Flush returns the in-progress batch if it holds any documents
func (a *Accumulator) Flush() (*Batch, bool) {
	if len(a.current) == 0 {
		return nil, false
	}
	return a.take(), true
}

// Pending returns the number of documents not yet emitted
func (a *Accumulator) Pending() int {
	return len(a.current)
}

// Size returns the maximum number of documents per batch
func (a *Accumulator) Size() int {
	return a.size
}

// take hands the current slice to a batch and starts a fresh one so emitted batches never share storage
func (a *Accumulator) take() *Batch {
	batch := &Batch{Documents: a.current}
	a.current = make([]*Document, 0, min(a.size, maxPrealloc))
	return batch
}
