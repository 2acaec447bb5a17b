package db

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/auth"
)

// MemoryAuthStore keeps users and sessions in process memory. It backs
// STORE_DRIVER=memory, where no database is configured.
type MemoryAuthStore struct {
	mu         sync.Mutex
	users      map[int64]*AuthUser
	sessions   map[string]*AuthSession
	nextUserID int64
}

func NewMemoryAuthStore() *MemoryAuthStore {
	return &MemoryAuthStore{
		users:      map[int64]*AuthUser{},
		sessions:   map[string]*AuthSession{},
		nextUserID: 1,
	}
}

func (s *MemoryAuthStore) CountUsers(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.users)), nil
}

func (s *MemoryAuthStore) CreateUser(_ context.Context, username, passwordHash, role string) (*AuthUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalizedRole := auth.NormalizeRole(role)
	if normalizedRole == "" {
		return nil, fmt.Errorf("create user: unknown role %q", role)
	}
	normalized := auth.NormalizeUsername(username)
	for _, user := range s.users {
		if user.Username == normalized {
			return nil, fmt.Errorf("create user: username %q already exists", normalized)
		}
	}

	user := &AuthUser{
		UserID:       s.nextUserID,
		Username:     normalized,
		Role:         normalizedRole,
		PasswordHash: strings.TrimSpace(passwordHash),
		CreatedAt:    time.Now().UTC(),
	}
	s.nextUserID++
	s.users[user.UserID] = user

	out := *user
	return &out, nil
}

func (s *MemoryAuthStore) GetUserByUsername(_ context.Context, username string) (*AuthUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := auth.NormalizeUsername(username)
	for _, user := range s.users {
		if user.Username == normalized {
			out := *user
			return &out, nil
		}
	}
	return nil, ErrNoRows
}

func (s *MemoryAuthStore) GetUserByID(_ context.Context, userID int64) (*AuthUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrNoRows
	}
	out := *user
	return &out, nil
}

func (s *MemoryAuthStore) SetUserLastLogin(_ context.Context, userID int64, loginAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrNoRows
	}
	at := loginAt.UTC()
	user.LastLoginAt = &at
	return nil
}

func (s *MemoryAuthStore) CreateSession(_ context.Context, userID int64, expiresAt, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return "", fmt.Errorf("insert session: %w", ErrNoRows)
	}
	sessionID := uuid.NewString()
	s.sessions[sessionID] = &AuthSession{
		SessionID:  sessionID,
		UserID:     userID,
		Username:   user.Username,
		Role:       user.Role,
		ExpiresAt:  expiresAt.UTC(),
		LastSeenAt: now.UTC(),
	}
	return sessionID, nil
}

func (s *MemoryAuthStore) GetSession(_ context.Context, sessionID string) (*AuthSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return nil, ErrNoRows
	}
	out := *session
	if user, exists := s.users[session.UserID]; exists {
		out.Username = user.Username
		out.Role = user.Role
	}
	return &out, nil
}

func (s *MemoryAuthStore) TouchSession(_ context.Context, sessionID string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return ErrNoRows
	}
	session.LastSeenAt = seenAt.UTC()
	return nil
}

func (s *MemoryAuthStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, strings.TrimSpace(sessionID))
	return nil
}

func (s *MemoryAuthStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for sessionID, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, sessionID)
			deleted++
		}
	}
	return deleted, nil
}
