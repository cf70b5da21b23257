package session

import (
	"appcommerce/models"
	"appcommerce/services"
	"context"
	"errors"
	"sync"
	"time"
)

var _ services.SessionStore = (*Store)(nil)

// Store keeps signed-in sessions in memory, keyed by id token
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*models.Session),
		now:      time.Now,
	}
}

// DefaultTTL matches the lifetime of an identity id token
const DefaultTTL = time.Hour

// Create opens a session for user keyed by user.Token
func (s *Store) Create(user models.User, ttl time.Duration) (*models.Session, error) {
	if user.Token == "" || user.ID == "" {
		return nil, errors.New("session requires a user id and token")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := s.now()
	sess := &models.Session{
		Token:     user.Token,
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return sess, nil
}

func (s *Store) Get(token string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[token]
	if !exists {
		return nil, services.ErrSessionNotFound
	}
	if s.now().After(sess.ExpiresAt) {
		return nil, services.ErrSessionExpired
	}
	return sess, nil
}

func (s *Store) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.now()
	for token, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine drops expired sessions every interval until ctx ends
func (s *Store) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired()
			}
		}
	}()
}
