package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/store"
)

// UserStore keeps users in a map guarded by a RWMutex.
type UserStore struct {
	mu      sync.RWMutex
	users   map[string]models.User
	byEmail map[string]string
}

var _ store.UserStore = (*UserStore)(nil)

func NewUserStore() *UserStore {
	return &UserStore{
		users:   map[string]models.User{},
		byEmail: map[string]string{},
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *UserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(user.Email)
	if _, taken := s.byEmail[key]; taken {
		return store.ErrDuplicate
	}
	stamp(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if _, taken := s.users[user.ID]; taken {
		return store.ErrDuplicate
	}

	s.users[user.ID] = *user
	s.byEmail[key] = user.ID
	return nil
}

func (s *UserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.users[user.ID]
	if !ok {
		return store.ErrNotFound
	}
	key := emailKey(user.Email)
	if owner, taken := s.byEmail[key]; taken && owner != user.ID {
		return store.ErrDuplicate
	}

	user.UpdatedAt = time.Now()
	delete(s.byEmail, emailKey(old.Email))
	s.byEmail[key] = user.ID
	s.users[user.ID] = *user
	return nil
}

func (s *UserStore) List(_ context.Context, filter store.UserFilter) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.ActiveOnly && !u.IsActive {
			continue
		}
		if filter.VerifiedOnly && !u.IsVerified {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}
