package database

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"callsheet/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is an in-process DocumentStore with the same update semantics as MongoStore.
// Snapshots are delivered synchronously from the goroutine that made the change,
// which keeps tests deterministic.
type MemoryStore struct {
	// deliverMu serializes snapshot fan-out so subscribers see changes in write order.
	// Handlers must not write to the store synchronously.
	deliverMu sync.Mutex
	mu        sync.Mutex
	docs     map[string]bson.D
	order    []string
	subs     map[int]*memorySubscription
	nextSub  int
	writeErr error
	newID    func() string

	// Call counters
	adds    int
	updates int
	gets    int
	deletes int
}

type memorySubscription struct {
	store  *MemoryStore
	id     int
	query  Query
	fn     SnapshotHandler
	closed atomic.Bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]bson.D),
		subs:  make(map[int]*memorySubscription),
		newID: func() string { return uuid.New().String() },
	}
}

// SetWriteError makes every following write fail with err until cleared with nil
func (s *MemoryStore) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Insert stores doc under a caller chosen id, bypassing validation.
// Used to seed fixtures, including malformed ones.
func (s *MemoryStore) Insert(id string, doc interface{}) error {
	d, err := toD(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if _, exists := s.docs[id]; !exists {
		s.order = append(s.order, id)
	}
	s.docs[id] = d
	s.mu.Unlock()

	s.broadcast()
	return nil
}

// Subscribe implements DocumentStore
func (s *MemoryStore) Subscribe(ctx context.Context, q Query, fn SnapshotHandler) (Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("snapshot handler is required")
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.nextSub++
	sub := &memorySubscription{store: s, id: s.nextSub, query: q, fn: fn}
	s.subs[sub.id] = sub
	snap := s.snapshotLocked(q)
	s.mu.Unlock()

	sub.deliver(snap)
	return sub, nil
}

// Add implements DocumentStore
func (s *MemoryStore) Add(ctx context.Context, doc interface{}) (string, error) {
	d, err := toD(doc)
	if err != nil {
		return "", err
	}
	d = removeKey(d, "_id")

	s.mu.Lock()
	s.adds++
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return "", err
	}
	id := s.newID()
	s.docs[id] = d
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.broadcast()
	return id, nil
}

// Update implements DocumentStore
func (s *MemoryStore) Update(ctx context.Context, id string, u Update) error {
	s.mu.Lock()
	s.updates++
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return err
	}
	doc, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}

	version := versionOf(doc)
	if u.IfVersion != nil && *u.IfVersion != version {
		s.mu.Unlock()
		return ErrVersionConflict
	}

	updated, err := applyUpdate(doc, u.Fields)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	updated = setKey(updated, models.FieldVersion, version+1)
	updated = setKey(updated, models.FieldUpdatedAt, primitive.NewDateTimeFromTime(time.Now()))
	s.docs[id] = updated
	s.mu.Unlock()

	s.broadcast()
	return nil
}

// Get implements DocumentStore
func (s *MemoryStore) Get(ctx context.Context, q Query) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	return s.snapshotLocked(q).Documents, nil
}

// Delete implements DocumentStore
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	s.deletes++
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return err
	}
	if _, ok := s.docs[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.docs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.broadcast()
	return nil
}

// Raw returns the stored document, for assertions
func (s *MemoryStore) Raw(id string) (bson.Raw, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// Project decodes the stored document, for assertions
func (s *MemoryStore) Project(id string) (models.Project, error) {
	raw, ok := s.Raw(id)
	if !ok {
		return models.Project{}, ErrNotFound
	}
	return models.DecodeProject(id, raw)
}

// Stats returns how many adds, updates, gets and deletes were attempted
func (s *MemoryStore) Stats() (adds, updates, gets, deletes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adds, s.updates, s.gets, s.deletes
}

// SubscriberCount returns the number of live subscriptions
func (s *MemoryStore) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *MemoryStore) snapshotLocked(q Query) Snapshot {
	snap := Snapshot{ReceivedAt: time.Now()}
	for _, id := range s.order {
		doc := s.docs[id]
		if !matches(doc, q.Filters) {
			continue
		}
		raw, err := bson.Marshal(doc)
		if err != nil {
			continue
		}
		snap.Documents = append(snap.Documents, Document{ID: id, Raw: raw})
		if q.Limit > 0 && len(snap.Documents) >= q.Limit {
			break
		}
	}
	return snap
}

// broadcast pushes a fresh snapshot to every live subscription
func (s *MemoryStore) broadcast() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	type delivery struct {
		sub  *memorySubscription
		snap Snapshot
	}
	deliveries := make([]delivery, 0, len(s.subs))
	for _, id := range s.sortedSubIDs() {
		sub := s.subs[id]
		deliveries = append(deliveries, delivery{sub: sub, snap: s.snapshotLocked(sub.query)})
	}
	s.mu.Unlock()

	for _, d := range deliveries {
		d.sub.deliver(d.snap)
	}
}

func (s *MemoryStore) sortedSubIDs() []int {
	ids := make([]int, 0, len(s.subs))
	for id := 1; id <= s.nextSub; id++ {
		if _, ok := s.subs[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (sub *memorySubscription) deliver(snap Snapshot) {
	if sub.closed.Load() {
		return
	}
	sub.fn(snap)
}

// Cancel implements Subscription
func (sub *memorySubscription) Cancel() {
	sub.closed.Store(true)
	sub.store.mu.Lock()
	delete(sub.store.subs, sub.id)
	sub.store.mu.Unlock()
}

// toD normalizes any marshalable value into an ordered document
func toD(v interface{}) (bson.D, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	var d bson.D
	if err := bson.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return d, nil
}

// normalize converts a Go value into the representation it has once stored
func normalize(v interface{}) (interface{}, error) {
	d, err := toD(bson.D{{Key: "v", Value: v}})
	if err != nil {
		return nil, err
	}
	return d[0].Value, nil
}

// equalValues compares two normalized values by their BSON encoding
func equalValues(a, b interface{}) bool {
	ea, errA := bson.Marshal(bson.D{{Key: "v", Value: a}})
	eb, errB := bson.Marshal(bson.D{{Key: "v", Value: b}})
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

func lookup(d bson.D, key string) (interface{}, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func setKey(d bson.D, key string, value interface{}) bson.D {
	for i, e := range d {
		if e.Key == key {
			out := append(bson.D(nil), d...)
			out[i].Value = value
			return out
		}
	}
	return append(append(bson.D(nil), d...), bson.E{Key: key, Value: value})
}

func removeKey(d bson.D, key string) bson.D {
	out := make(bson.D, 0, len(d))
	for _, e := range d {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

func versionOf(d bson.D) int64 {
	v, _ := lookup(d, models.FieldVersion)
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func matches(doc bson.D, filters []Filter) bool {
	for _, f := range filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false
		}
		got, ok := lookup(doc, f.Field)
		if !ok {
			return false
		}
		if arr, isArray := got.(bson.A); isArray {
			found := false
			for _, elem := range arr {
				if equalValues(elem, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !equalValues(got, want) {
			return false
		}
	}
	return true
}

func applyUpdate(doc bson.D, fields []FieldUpdate) (bson.D, error) {
	out := append(bson.D(nil), doc...)
	for _, f := range fields {
		switch f.Op {
		case OpSet:
			v, err := normalize(f.Value)
			if err != nil {
				return nil, err
			}
			out = setKey(out, f.Field, v)

		case OpArrayUnion, OpArrayRemove:
			current, present := lookup(out, f.Field)
			var arr bson.A
			if present && current != nil {
				existing, ok := current.(bson.A)
				if !ok {
					return nil, fmt.Errorf("%w: cannot apply %s to non-array field %s", ErrInvalidDocument, f.Op, f.Field)
				}
				arr = append(arr, existing...)
			}
			for _, elem := range f.Elements {
				v, err := normalize(elem)
				if err != nil {
					return nil, err
				}
				if f.Op == OpArrayUnion {
					if !containsValue(arr, v) {
						arr = append(arr, v)
					}
					continue
				}
				arr = removeValue(arr, v)
			}
			if arr == nil {
				arr = bson.A{}
			}
			out = setKey(out, f.Field, arr)

		default:
			return nil, fmt.Errorf("unsupported update op %d", f.Op)
		}
	}
	return out, nil
}

func containsValue(arr bson.A, v interface{}) bool {
	for _, elem := range arr {
		if equalValues(elem, v) {
			return true
		}
	}
	return false
}

func removeValue(arr bson.A, v interface{}) bson.A {
	out := arr[:0:0]
	for _, elem := range arr {
		if !equalValues(elem, v) {
			out = append(out, elem)
		}
	}
	return out
}
