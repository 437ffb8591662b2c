// Package store provides an in-memory state layer for the signed-in session
// and the most recent insight document of each kind, so switching tabs shows
// the previous analysis instead of an empty pane.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/h0rv/finsight/internal/domain"
)

var (
	// ErrNoSession indicates no user is signed in.
	ErrNoSession = errors.New("no session")
	// ErrSessionExpired indicates the stored session token is past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrInsightNotFound indicates no completed insight exists for a kind.
	ErrInsightNotFound = errors.New("insight not found")
)

// Store manages client state. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	session  *domain.Session
	insights map[domain.InsightKind]*domain.Insight
}

// New creates a new empty Store instance.
func New() *Store {
	return &Store{
		insights: make(map[domain.InsightKind]*domain.Insight),
	}
}

// SetSession records the signed-in session.
func (s *Store) SetSession(session *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

// GetSession returns the current session, or ErrNoSession.
func (s *Store) GetSession() (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, ErrNoSession
	}
	copied := *s.session
	return &copied, nil
}

// ValidSession returns the session if it has not expired at now. Sessions
// without an expiry are always valid.
func (s *Store) ValidSession(now time.Time) (*domain.Session, error) {
	session, err := s.GetSession()
	if err != nil {
		return nil, err
	}
	if !session.ExpiresAt.IsZero() && !now.Before(session.ExpiresAt) {
		return nil, fmt.Errorf("%w at %s", ErrSessionExpired, session.ExpiresAt.Format(time.RFC3339))
	}
	return session, nil
}

// ClearSession signs the user out and drops cached insights.
func (s *Store) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	s.insights = make(map[domain.InsightKind]*domain.Insight)
}

// SaveInsight stores a completed insight, replacing the previous one of the
// same kind.
func (s *Store) SaveInsight(insight *domain.Insight) error {
	if insight == nil || insight.Kind == "" {
		return errors.New("insight kind is required")
	}
	copied := *insight
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insights[insight.Kind] = &copied
	return nil
}

// GetInsight returns the last completed insight of kind, or ErrInsightNotFound.
func (s *Store) GetInsight(kind domain.InsightKind) (*domain.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	insight, exists := s.insights[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrInsightNotFound, kind)
	}
	copied := *insight
	return &copied, nil
}

// Insights returns the stored insights in tab order.
func (s *Store) Insights() []*domain.Insight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*domain.Insight, 0, len(s.insights))
	for _, kind := range domain.InsightKinds {
		if insight, ok := s.insights[kind]; ok {
			copied := *insight
			result = append(result, &copied)
		}
	}
	return result
}

// Reset completely resets the store to initial state.
func (s *Store) Reset() {
	s.ClearSession()
}
