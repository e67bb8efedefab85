package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-process [Repo] for tests and local development.
type MemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryRepo returns an empty in-memory repo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{sessions: make(map[string]*Session)}
}

func (r *MemoryRepo) Insert(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *MemoryRepo) TrimForUser(_ context.Context, userID string, keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var owned []*Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			owned = append(owned, s)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	for i := keep; i < len(owned); i++ {
		delete(r.sessions, owned[i].ID)
	}
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepo) UpdateRefresh(_ context.Context, id, refreshHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.RefreshHash = refreshHash
	s.RefreshExpiresAt = expiresAt
	return nil
}

func (r *MemoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

func (r *MemoryRepo) DeleteAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

// CountForUser reports the number of stored sessions for a user.
func (r *MemoryRepo) CountForUser(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}
