package database

import (
	"context"
	"errors"
	"time"

	"callsheet/internal/models"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	// ErrNotFound is returned when a document doesn't exist
	ErrNotFound = errors.New("document not found")

	// ErrVersionConflict is returned when a conditional write finds a different version
	ErrVersionConflict = errors.New("version conflict: document was modified concurrently")

	// ErrInvalidDocument is returned when a value can't be stored as a document
	ErrInvalidDocument = errors.New("invalid document")
)

// Document is one stored document as delivered by the store, still undecoded
type Document struct {
	ID  string
	Raw bson.Raw
}

// Snapshot is one complete delivery of a subscribed query's result set
type Snapshot struct {
	Documents  []Document
	ReceivedAt time.Time
}

// Filter matches documents whose Field equals Value.
// On array fields it matches when any element equals Value, like Mongo does.
type Filter struct {
	Field string
	Value interface{}
}

// Query selects documents from the projects collection
type Query struct {
	Filters []Filter
	Limit   int // 0 means unlimited
}

// MembersContain selects every project the user is a member of
func MembersContain(userID string) Query {
	return Query{Filters: []Filter{{Field: models.FieldMembers, Value: userID}}}
}

// CodeEquals selects at most one project with the given join code (case-sensitive)
func CodeEquals(code string) Query {
	return Query{Filters: []Filter{{Field: models.FieldCode, Value: code}}, Limit: 1}
}

// UpdateOp is the kind of partial update applied to a field
type UpdateOp int

const (
	// OpSet replaces the field value
	OpSet UpdateOp = iota
	// OpArrayUnion appends elements not already present
	OpArrayUnion
	// OpArrayRemove removes every element equal to one of the given values
	OpArrayRemove
)

func (op UpdateOp) String() string {
	switch op {
	case OpSet:
		return "set"
	case OpArrayUnion:
		return "arrayUnion"
	case OpArrayRemove:
		return "arrayRemove"
	}
	return "unknown"
}

// FieldUpdate is one partial update of a document field
type FieldUpdate struct {
	Field    string
	Op       UpdateOp
	Value    interface{}   // OpSet
	Elements []interface{} // OpArrayUnion, OpArrayRemove
}

// Set replaces field with value
func Set(field string, value interface{}) FieldUpdate {
	return FieldUpdate{Field: field, Op: OpSet, Value: value}
}

// ArrayUnion adds elements to field, skipping ones already present
func ArrayUnion(field string, elements ...interface{}) FieldUpdate {
	return FieldUpdate{Field: field, Op: OpArrayUnion, Elements: elements}
}

// ArrayRemove removes elements from field
func ArrayRemove(field string, elements ...interface{}) FieldUpdate {
	return FieldUpdate{Field: field, Op: OpArrayRemove, Elements: elements}
}

// Update is a set of field updates applied to one document in a single write.
// When IfVersion is set the write only applies if the stored version matches.
// Every applied update increments the document version.
type Update struct {
	Fields    []FieldUpdate
	IfVersion *int64
}

// SnapshotHandler receives snapshots for a subscription
type SnapshotHandler func(Snapshot)

// Subscription is a live query. Cancel stops further deliveries and never blocks.
type Subscription interface {
	Cancel()
}

// DocumentStore is the remote project store the replica talks to
type DocumentStore interface {
	// Subscribe delivers the query's full result set now and after every change
	Subscribe(ctx context.Context, q Query, fn SnapshotHandler) (Subscription, error)
	// Add inserts a document and returns the identifier assigned by the store
	Add(ctx context.Context, doc interface{}) (string, error)
	// Update applies partial updates to one document
	Update(ctx context.Context, id string, u Update) error
	// Get runs a one-shot query
	Get(ctx context.Context, q Query) ([]Document, error)
	// Delete removes a document
	Delete(ctx context.Context, id string) error
}

// DecodeSnapshot decodes every document of a snapshot, tagging each with its outcome
func DecodeSnapshot(snap Snapshot) []models.DecodeResult {
	results := make([]models.DecodeResult, 0, len(snap.Documents))
	for _, doc := range snap.Documents {
		p, err := models.DecodeProject(doc.ID, doc.Raw)
		results = append(results, models.DecodeResult{ID: doc.ID, Project: p, Err: err})
	}
	return results
}
