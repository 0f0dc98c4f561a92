package auth

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// IdentityChange is emitted whenever the signed-in user changes.
// Current is nil after sign-out.
type IdentityChange struct {
	Previous *User
	Current  *User
}

// SignUpHandler is called once for a brand-new account, before listeners hear about it
type SignUpHandler interface {
	OnSignUp(ctx context.Context, user *User, displayName string) error
}

// Session tracks the signed-in user of this process
type Session struct {
	auth   *LocalJWTAuth
	signUp SignUpHandler

	// deliverMu is held from a state change until its listeners return, so listeners
	// see changes in the order they were made
	deliverMu sync.Mutex

	mu        sync.Mutex
	current   *User
	listeners map[int]func(IdentityChange)
	nextID    int
}

// NewSession creates a signed-out session. signUp may be nil.
func NewSession(a *LocalJWTAuth, signUp SignUpHandler) *Session {
	return &Session{
		auth:      a,
		signUp:    signUp,
		listeners: make(map[int]func(IdentityChange)),
	}
}

// CurrentUser returns a copy of the signed-in user, or nil
func (s *Session) CurrentUser() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyUser(s.current)
}

// Subscribe registers fn for identity changes. fn is called once right away with the
// current user so a late subscriber can't miss the initial state.
func (s *Session) Subscribe(fn func(IdentityChange)) (cancel func()) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	current := copyUser(s.current)
	s.mu.Unlock()

	fn(IdentityChange{Current: current})

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SignIn verifies token and makes its subject the current user
func (s *Session) SignIn(token string) (*User, error) {
	user, err := s.auth.VerifyAccessToken(token)
	if err != nil {
		return nil, err
	}
	s.setCurrent(user)
	log.Printf("✅ [AUTH] Signed in %s", user.ID)
	return copyUser(user), nil
}

// SignUp verifies token, hands the new account to the sign-up handler and signs it in
func (s *Session) SignUp(ctx context.Context, token, displayName string) (*User, error) {
	user, err := s.auth.VerifyAccessToken(token)
	if err != nil {
		return nil, err
	}
	if s.signUp != nil {
		if err := s.signUp.OnSignUp(ctx, copyUser(user), displayName); err != nil {
			return nil, fmt.Errorf("sign-up handler failed: %w", err)
		}
	}
	s.setCurrent(user)
	log.Printf("✅ [AUTH] Signed up %s", user.ID)
	return copyUser(user), nil
}

// SignOut clears the current user. Signing out twice emits nothing the second time.
func (s *Session) SignOut() {
	s.setCurrent(nil)
}

func (s *Session) setCurrent(user *User) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	previous := s.current
	if previous == nil && user == nil {
		s.mu.Unlock()
		return
	}
	s.current = copyUser(user)
	fns := make([]func(IdentityChange), 0, len(s.listeners))
	for id := 1; id <= s.nextID; id++ {
		if fn, ok := s.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	change := IdentityChange{Previous: previous, Current: copyUser(user)}
	for _, fn := range fns {
		fn(change)
	}
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
