package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"callsheet/internal/database"
	"callsheet/internal/models"
)

// IdentityProvider exposes the signed-in user, "" when signed out
type IdentityProvider interface {
	CurrentUserID() string
}

// MembershipService adds the signed-in user to a project found by its join code
type MembershipService struct {
	store    database.DocumentStore
	identity IdentityProvider
	timeout  time.Duration
}

// NewMembershipService creates a join flow over store
func NewMembershipService(store database.DocumentStore, identity IdentityProvider) *MembershipService {
	return &MembershipService{
		store:    store,
		identity: identity,
		timeout:  30 * time.Second,
	}
}

// JoinProject looks up the project with code, adds the caller to its members with an
// array-union write and returns the project as read plus the caller.
// Joining a project twice is not an error.
func (s *MembershipService) JoinProject(ctx context.Context, code string) (*models.Project, error) {
	userID := s.identity.CurrentUserID()
	if userID == "" {
		joinAttempts.WithLabelValues("not_signed_in").Inc()
		return nil, ErrNotSignedIn
	}

	docs, err := s.store.Get(ctx, database.CodeEquals(code))
	if err != nil {
		joinAttempts.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: lookup: %v", ErrJoinFailed, err)
	}
	if len(docs) == 0 {
		joinAttempts.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: code %q", ErrProjectNotFound, code)
	}

	project, err := models.DecodeProject(docs[0].ID, docs[0].Raw)
	if err != nil {
		// Malformed documents are invisible, the same as in snapshots
		joinAttempts.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: code %q: %v", ErrProjectNotFound, code, err)
	}

	err = s.store.Update(ctx, project.ID, database.Update{
		Fields: []database.FieldUpdate{database.ArrayUnion(models.FieldMembers, userID)},
	})
	if err != nil {
		joinAttempts.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}

	if !project.HasMember(userID) {
		project.Members = append(project.Members, userID)
	}
	joinAttempts.WithLabelValues("joined").Inc()
	log.Printf("✅ [JOIN] User %s joined project %s", userID, project.ID)
	return &project, nil
}

// Join runs JoinProject in the background and hands the outcome to completion.
// completion receives nil when the join didn't happen.
func (s *MembershipService) Join(code string, completion func(*models.Project, error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		project, err := s.JoinProject(ctx, code)
		if err != nil && !errors.Is(err, ErrProjectNotFound) {
			log.Printf("⚠️  [JOIN] Join with code %q failed: %v", code, err)
		}
		completion(project, err)
	}()
}
