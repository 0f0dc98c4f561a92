package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"callsheet/internal/database"
	"callsheet/internal/models"
	"callsheet/pkg/auth"

	"github.com/patrickmn/go-cache"
)

// ProfileStore reads and writes user profiles
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
	Upsert(ctx context.Context, profile *models.UserProfile) error
}

// ProfileService resolves user ids into display names with a short-lived cache
type ProfileService struct {
	store ProfileStore
	cache *cache.Cache
}

// NewProfileService creates a profile service caching lookups for five minutes
func NewProfileService(store ProfileStore) *ProfileService {
	return &ProfileService{
		store: store,
		cache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// OnSignUp implements auth.SignUpHandler
func (s *ProfileService) OnSignUp(ctx context.Context, user *auth.User, displayName string) error {
	_, err := s.CreateProfile(ctx, user.ID, displayName, user.Email)
	return err
}

// CreateProfile stores the profile of a newly signed-up user
func (s *ProfileService) CreateProfile(ctx context.Context, userID, displayName, email string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, ErrNotSignedIn
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	profile := &models.UserProfile{
		ID:          userID,
		DisplayName: displayName,
		Email:       email,
		CreatedAt:   time.Now(),
	}
	if err := s.store.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	s.cache.Set(userID, *profile, cache.DefaultExpiration)

	log.Printf("✅ [PROFILE] Created profile for %s", userID)
	return profile, nil
}

// Lookup returns the profile of userID, or database.ErrNotFound. Misses are not cached.
func (s *ProfileService) Lookup(ctx context.Context, userID string) (*models.UserProfile, error) {
	if v, ok := s.cache.Get(userID); ok {
		p := v.(models.UserProfile)
		return &p, nil
	}

	p, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(userID, *p, cache.DefaultExpiration)
	return p, nil
}

// Members resolves the member ids of project in member order.
// Unknown ids come back with Found=false; a lookup failure aborts.
func (s *ProfileService) Members(ctx context.Context, project *models.Project) ([]models.Member, error) {
	if project == nil {
		return nil, ErrNoActiveProject
	}

	members := make([]models.Member, 0, len(project.Members))
	for _, id := range project.Members {
		m := models.Member{ID: id}
		p, err := s.Lookup(ctx, id)
		switch {
		case err == nil:
			m.DisplayName = p.DisplayName
			m.Email = p.Email
			m.Found = true
		case errors.Is(err, database.ErrNotFound):
		default:
			return nil, fmt.Errorf("failed to resolve member %s: %w", id, err)
		}
		members = append(members, m)
	}
	return members, nil
}
