package user

import (
	"context"
	"sync"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/google/uuid"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]models.User
	byEmail map[string]string
}

func NewMemoryRepository() UserRepository {
	return &memoryRepository{byID: make(map[string]models.User), byEmail: make(map[string]string)}
}

func (r *memoryRepository) Create(_ context.Context, u models.User) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[u.Email]; ok {
		return models.User{}, ErrUserAlreadyExists
	}
	u.ID = uuid.NewString()
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u.ID
	return u, nil
}

func (r *memoryRepository) GetByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *memoryRepository) GetByIDs(_ context.Context, ids []string) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (r *memoryRepository) MarkVerified(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Verified = true
	u.OTP = ""
	r.byID[id] = u
	return nil
}
