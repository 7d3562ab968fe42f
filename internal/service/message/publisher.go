//go:generate go run go.uber.org/mock/mockgen -source=publisher.go -destination=../../mocks/mock_publisher.go -package=mocks
package message

import (
	"context"

	"github.com/christmas-fire/squadup/internal/models"
)

// EventPublisher hands an event to the fan-out channel of a group.
// Implementations must not block on slow subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, groupID string, event models.Event) error
}
