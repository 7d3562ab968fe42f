package message

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/google/uuid"
)

// memoryRepository keeps messages in insertion order. It backs the server
// when no database is configured and is the store used by tests.
type memoryRepository struct {
	mu       sync.RWMutex
	messages []models.Message
	index    map[string]int
	now      func() time.Time
}

func NewMemoryRepository() MessageRepository {
	return newMemoryRepository(func() time.Time { return time.Now().UTC() })
}

func newMemoryRepository(now func() time.Time) *memoryRepository {
	return &memoryRepository{index: make(map[string]int), now: now}
}

func (r *memoryRepository) Create(_ context.Context, msg models.Message) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg = msg.Clone()
	msg.ID = uuid.NewString()
	msg.Status = models.StatusSent
	msg.CreatedAt = r.now()
	msg.UpdatedAt = msg.CreatedAt

	r.index[msg.ID] = len(r.messages)
	r.messages = append(r.messages, msg)
	return msg.Clone(), nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return r.messages[i].Clone(), nil
}

func (r *memoryRepository) ListByGroup(_ context.Context, groupID string) ([]models.Message, error) {
	r.mu.RLock()
	out := make([]models.Message, 0)
	for _, msg := range r.messages {
		if msg.GroupID == groupID {
			out = append(out, msg.Clone())
		}
	}
	r.mu.RUnlock()

	// Stable sort keeps insertion order for equal timestamps.
	slices.SortStableFunc(out, func(a, b models.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (r *memoryRepository) AdvanceStatus(_ context.Context, id string, target models.Status) (models.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return models.Message{}, false, ErrMessageNotFound
	}
	msg := &r.messages[i]
	moved := msg.Status.Forward(target)
	if moved {
		msg.Status = target
		msg.UpdatedAt = r.now()
	}
	return msg.Clone(), moved, nil
}

func (r *memoryRepository) UpdatePoll(_ context.Context, id string, fn func(*models.Poll) error) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	msg := &r.messages[i]
	if msg.Poll == nil {
		return models.Message{}, models.ErrNoPoll
	}

	// Work on a copy so a failing fn leaves the stored poll untouched.
	poll := msg.Poll.Clone()
	if err := fn(&poll); err != nil {
		return models.Message{}, err
	}
	msg.Poll = &poll
	msg.UpdatedAt = r.now()
	return msg.Clone(), nil
}
