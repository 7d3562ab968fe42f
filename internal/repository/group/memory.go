package group

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/google/uuid"
)

type memoryRepository struct {
	mu     sync.RWMutex
	groups map[string]*models.Group
	order  []string
}

func NewMemoryRepository() GroupRepository {
	return &memoryRepository{groups: make(map[string]*models.Group)}
}

func (r *memoryRepository) Create(_ context.Context, name, adminID string) (models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.groups {
		if g.Name == name && g.AdminID == adminID {
			return models.Group{}, ErrGroupExists
		}
	}

	g := &models.Group{
		ID:        uuid.NewString(),
		Name:      name,
		AdminID:   adminID,
		MemberIDs: []string{adminID},
		CreatedAt: time.Now().UTC(),
	}
	r.groups[g.ID] = g
	r.order = append(r.order, g.ID)
	return clone(g), nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[id]
	if !ok {
		return models.Group{}, ErrGroupNotFound
	}
	return clone(g), nil
}

func (r *memoryRepository) AddMember(_ context.Context, groupID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[groupID]
	if !ok {
		return false, ErrGroupNotFound
	}
	if slices.Contains(g.MemberIDs, userID) {
		return false, nil
	}
	g.MemberIDs = append(g.MemberIDs, userID)
	return true, nil
}

func (r *memoryRepository) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[groupID]
	if !ok {
		return false, nil
	}
	return g.HasMember(userID), nil
}

func (r *memoryRepository) ListByMember(_ context.Context, userID string) ([]models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make([]models.Group, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		g := r.groups[r.order[i]]
		if g.HasMember(userID) {
			groups = append(groups, clone(g))
		}
	}
	return groups, nil
}

func clone(g *models.Group) models.Group {
	out := *g
	out.MemberIDs = slices.Clone(g.MemberIDs)
	return out
}
