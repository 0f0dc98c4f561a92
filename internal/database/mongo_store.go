package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"callsheet/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChangePublisher announces that a project document changed.
// Used when subscribers can't rely on change streams.
type ChangePublisher interface {
	PublishChange(ctx context.Context, projectID string) error
}

// MongoStore implements DocumentStore on the projects collection
type MongoStore struct {
	collection *mongo.Collection
	feeds      []ChangeFeed
	publisher  ChangePublisher
	retryDelay time.Duration
}

// MongoStoreOption configures a MongoStore
type MongoStoreOption func(*MongoStore)

// WithFallbackFeed adds a change feed tried after the change stream
func WithFallbackFeed(feed ChangeFeed) MongoStoreOption {
	return func(s *MongoStore) {
		s.feeds = append(s.feeds, feed)
	}
}

// WithChangePublisher announces every successful write
func WithChangePublisher(p ChangePublisher) MongoStoreOption {
	return func(s *MongoStore) {
		s.publisher = p
	}
}

// NewMongoStore creates a project store. Change streams are always tried first.
func NewMongoStore(mongodb *MongoDB, opts ...MongoStoreOption) *MongoStore {
	collection := mongodb.Collection(CollectionProjects)
	s := &MongoStore{
		collection: collection,
		feeds:      []ChangeFeed{NewChangeStreamFeed(collection)},
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type mongoSubscription struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (s *mongoSubscription) Cancel() {
	s.once.Do(s.cancel)
}

// Subscribe implements DocumentStore. The subscription outlives ctx's values but
// not its cancellation.
func (s *MongoStore) Subscribe(ctx context.Context, q Query, fn SnapshotHandler) (Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("snapshot handler is required")
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &mongoSubscription{cancel: cancel}

	changes, err := s.openFeed(subCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	go s.run(subCtx, q, fn, changes)
	return sub, nil
}

// openFeed returns the first change feed that accepts a subscription
func (s *MongoStore) openFeed(ctx context.Context) (<-chan struct{}, error) {
	var errs []error
	for _, feed := range s.feeds {
		changes, err := feed.Changes(ctx)
		if err == nil {
			return changes, nil
		}
		log.Printf("⚠️  [STORE] Change feed %s unavailable: %v", feed.Name(), err)
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("no change feed available: %w", errors.Join(errs...))
}

func (s *MongoStore) run(ctx context.Context, q Query, fn SnapshotHandler, changes <-chan struct{}) {
	s.deliver(ctx, q, fn)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if ok {
				s.deliver(ctx, q, fn)
				continue
			}
			// Feed dropped (stepdown, network); reopen and resync
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.retryDelay):
				}
				var err error
				changes, err = s.openFeed(ctx)
				if err == nil {
					break
				}
			}
			s.deliver(ctx, q, fn)
		}
	}
}

func (s *MongoStore) deliver(ctx context.Context, q Query, fn SnapshotHandler) {
	docs, err := s.Get(ctx, q)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("⚠️  [STORE] Snapshot query failed: %v", err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	fn(Snapshot{Documents: docs, ReceivedAt: time.Now()})
}

// Add implements DocumentStore
func (s *MongoStore) Add(ctx context.Context, doc interface{}) (string, error) {
	result, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert project: %w", err)
	}
	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", result.InsertedID)
	}
	id := oid.Hex()
	s.publish(ctx, id)
	return id, nil
}

// Update implements DocumentStore
func (s *MongoStore) Update(ctx context.Context, id string, u Update) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	filter := bson.M{"_id": oid}
	if u.IfVersion != nil {
		filter[models.FieldVersion] = *u.IfVersion
	}

	update, err := buildMongoUpdate(u.Fields, time.Now())
	if err != nil {
		return err
	}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if result.MatchedCount == 0 {
		if u.IfVersion == nil {
			return ErrNotFound
		}
		count, err := s.collection.CountDocuments(ctx, bson.M{"_id": oid})
		if err != nil {
			return fmt.Errorf("failed to check project: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	s.publish(ctx, id)
	return nil
}

// Get implements DocumentStore
func (s *MongoStore) Get(ctx context.Context, q Query) ([]Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.collection.Find(ctx, buildMongoFilter(q.Filters), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	for cursor.Next(ctx) {
		oid, ok := cursor.Current.Lookup("_id").ObjectIDOK()
		if !ok {
			// Not addressable, so it can't be part of the projection
			continue
		}
		raw := make(bson.Raw, len(cursor.Current))
		copy(raw, cursor.Current)
		docs = append(docs, Document{ID: oid.Hex(), Raw: raw})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read projects: %w", err)
	}
	return docs, nil
}

// Delete implements DocumentStore
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	s.publish(ctx, id)
	return nil
}

func (s *MongoStore) publish(ctx context.Context, id string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, id); err != nil {
		log.Printf("⚠️  [STORE] Failed to publish change for project %s: %v", id, err)
	}
}

func buildMongoFilter(filters []Filter) bson.M {
	filter := bson.M{}
	for _, f := range filters {
		// Equality on an array field matches any element
		filter[f.Field] = f.Value
	}
	return filter
}

// buildMongoUpdate translates field updates into update operators.
// Every write bumps the version and the updatedAt timestamp.
func buildMongoUpdate(fields []FieldUpdate, now time.Time) (bson.M, error) {
	set := bson.M{models.FieldUpdatedAt: now}
	addToSet := bson.M{}
	pull := bson.M{}

	for _, f := range fields {
		switch f.Op {
		case OpSet:
			set[f.Field] = f.Value
		case OpArrayUnion:
			addToSet[f.Field] = bson.M{"$each": f.Elements}
		case OpArrayRemove:
			pull[f.Field] = bson.M{"$in": f.Elements}
		default:
			return nil, fmt.Errorf("unsupported update op %d", f.Op)
		}
	}

	update := bson.M{
		"$set": set,
		"$inc": bson.M{models.FieldVersion: 1},
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	if len(pull) > 0 {
		update["$pull"] = pull
	}
	return update, nil
}
