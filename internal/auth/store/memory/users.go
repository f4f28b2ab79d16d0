// Package memory holds the in-process store implementations. Each store is a
// component object guarding its maps with a single RWMutex: every logical
// operation runs in one critical section, so readers never observe a
// half-applied create, delete, or rotation.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	autherror "github.com/BochengYin/AIMiniGames/internal/errors"
)

type UserStore struct {
	mu          sync.RWMutex
	users       map[string]*domain.User
	emailIndex  map[string]string
	handleIndex map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:       make(map[string]*domain.User),
		emailIndex:  make(map[string]string),
		handleIndex: make(map[string]string),
	}
}

// Create inserts the record and both uniqueness indices atomically: either
// all three exist afterwards, or none do.
func (s *UserStore) Create(_ context.Context, user *domain.User) error {
	email := strings.ToLower(user.Email)
	handle := strings.ToLower(user.Handle)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emailIndex[email]; taken {
		return autherror.ErrEmailAlreadyInUse
	}
	if _, taken := s.handleIndex[handle]; taken {
		return autherror.ErrHandleAlreadyTaken
	}

	stored := *user
	s.users[user.ID] = &stored
	s.emailIndex[email] = user.ID
	s.handleIndex[handle] = user.ID

	return nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.users[id]), nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIndex[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	return s.mustGetLocked(id), nil
}

func (s *UserStore) GetByHandle(_ context.Context, handle string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.handleIndex[strings.ToLower(handle)]
	if !ok {
		return nil, nil
	}
	return s.mustGetLocked(id), nil
}

func (s *UserStore) Update(_ context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, autherror.ErrUserNotFound
	}

	applyPatch(user, patch)
	user.UpdatedAt = time.Now()

	return copyUser(user), nil
}

func (s *UserStore) Mutate(_ context.Context, id string, fn func(*domain.User)) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, autherror.ErrUserNotFound
	}

	fn(user)
	user.UpdatedAt = time.Now()

	return copyUser(user), nil
}

func (s *UserStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return false, nil
	}

	delete(s.emailIndex, strings.ToLower(user.Email))
	delete(s.handleIndex, strings.ToLower(user.Handle))
	delete(s.users, id)

	return true, nil
}

func (s *UserStore) List(_ context.Context, offset, limit int) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, copyUser(u))
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *UserStore) Counts(_ context.Context, now time.Time) (total, active, locked int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total = len(s.users)
	for _, u := range s.users {
		if u.Active {
			active++
		}
		if u.LockedUntil != nil && now.Before(*u.LockedUntil) {
			locked++
		}
	}
	return total, active, locked, nil
}

// mustGetLocked panics on an index entry with no record: that is data
// corruption, not a runtime condition.
func (s *UserStore) mustGetLocked(id string) *domain.User {
	user, ok := s.users[id]
	if !ok {
		panic(fmt.Sprintf("memory: index references missing user %s", id))
	}
	return copyUser(user)
}

func applyPatch(u *domain.User, patch domain.UserPatch) {
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.Active != nil {
		u.Active = *patch.Active
	}
	if patch.LastLogin != nil {
		t := *patch.LastLogin
		u.LastLogin = &t
	}
	if patch.FailedAttempts != nil {
		u.FailedAttempts = *patch.FailedAttempts
	}
	if patch.LockedUntil != nil {
		t := *patch.LockedUntil
		u.LockedUntil = &t
	}
	if patch.ClearLock {
		u.LockedUntil = nil
		u.FailedAttempts = 0
	}
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	out := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		out.LastLogin = &t
	}
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		out.LockedUntil = &t
	}
	return &out
}
