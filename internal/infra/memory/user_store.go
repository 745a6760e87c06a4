package memory

import (
	"context"
	"sort"
	"sync"

	"math-game-service/internal/domain"
	"math-game-service/internal/scoring"
)

// UserStore is an in-memory implementation of the user-record store
// shared by the room service and the life scheduler.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]domain.User)}
}

// Put seeds or replaces a user record.
func (s *UserStore) Put(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *UserStore) User(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *UserStore) SaveUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *UserStore) Users(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *UserStore) TopUsers(_ context.Context, n int) ([]domain.TopUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Score != users[j].Score {
			return users[i].Score > users[j].Score
		}
		return users[i].ID < users[j].ID
	})
	if n < len(users) {
		users = users[:n]
	}
	top := make([]domain.TopUser, 0, len(users))
	for _, u := range users {
		_, name := scoring.Level(u.Score)
		top = append(top, domain.TopUser{UserID: u.ID, Name: u.Name, Score: u.Score, LevelName: name})
	}
	return top, nil
}
