package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"callsheet/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoProfileStore reads and writes user profiles in the users collection
type MongoProfileStore struct {
	collection *mongo.Collection
}

// NewMongoProfileStore creates a profile store
func NewMongoProfileStore(mongodb *MongoDB) *MongoProfileStore {
	return &MongoProfileStore{
		collection: mongodb.Collection(CollectionUsers),
	}
}

// Get returns the profile for userID or ErrNotFound
func (s *MongoProfileStore) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := s.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// Upsert creates or replaces a profile
func (s *MongoProfileStore) Upsert(ctx context.Context, profile *models.UserProfile) error {
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}
	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": profile.ID},
		profile,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// MemoryProfileStore is an in-process profile store
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]models.UserProfile
	reads    int
}

// NewMemoryProfileStore creates an empty profile store
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]models.UserProfile)}
}

// Get returns the profile for userID or ErrNotFound
func (s *MemoryProfileStore) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// Upsert creates or replaces a profile
func (s *MemoryProfileStore) Upsert(ctx context.Context, profile *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}
	s.profiles[profile.ID] = *profile
	return nil
}

// Reads returns how many lookups hit the store
func (s *MemoryProfileStore) Reads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads
}
