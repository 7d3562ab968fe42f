package message

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/christmas-fire/squadup/internal/repository/message"
	"go.uber.org/zap"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("message not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidOption     = errors.New("invalid poll option")
)

// MessageService is the system of record for group messages and the only
// authority on status transitions and poll votes. Every successful write is
// followed by a publish on the group's fan-out channel.
type MessageService struct {
	repo      message.MessageRepository
	publisher EventPublisher
	log       *zap.Logger
}

func NewMessageService(repo message.MessageRepository, publisher EventPublisher, log *zap.Logger) *MessageService {
	return &MessageService{repo: repo, publisher: publisher, log: log.Named("message")}
}

func (s *MessageService) Append(ctx context.Context, groupID, senderID string, sender models.Identity, payload Payload) (models.Message, error) {
	groupID, senderID = strings.TrimSpace(groupID), strings.TrimSpace(senderID)
	if groupID == "" {
		return models.Message{}, fmt.Errorf("%w: groupId is required", ErrValidation)
	}
	if senderID == "" {
		return models.Message{}, fmt.Errorf("%w: sender is required", ErrValidation)
	}
	if payload == nil {
		return models.Message{}, fmt.Errorf("%w: content is required", ErrValidation)
	}

	msg := models.Message{
		GroupID:     groupID,
		SenderID:    senderID,
		SenderName:  sender.Name,
		SenderEmail: sender.Email,
	}
	if err := payload.apply(&msg); err != nil {
		return models.Message{}, err
	}

	created, err := s.repo.Create(ctx, msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to append message: %w", err)
	}

	s.publish(ctx, models.MessageCreated{Message: created})
	return created, nil
}

func (s *MessageService) ListByGroup(ctx context.Context, groupID string) ([]models.Message, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, fmt.Errorf("%w: groupId is required", ErrValidation)
	}
	messages, err := s.repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (s *MessageService) Get(ctx context.Context, id string) (models.Message, error) {
	msg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return models.Message{}, s.mapRepoErr(err, id)
	}
	return msg, nil
}

// Transition moves a message forward to target. Requests that are not
// forward of the current status succeed and return the current state.
func (s *MessageService) Transition(ctx context.Context, id string, target models.Status) (models.Message, error) {
	if target.Rank() < 0 {
		return models.Message{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}

	msg, moved, err := s.repo.AdvanceStatus(ctx, id, target)
	if err != nil {
		return models.Message{}, s.mapRepoErr(err, id)
	}

	if moved {
		s.publish(ctx, models.StatusChanged{GroupID: msg.GroupID, MessageID: msg.ID, Status: msg.Status})
	}
	return msg, nil
}

// RecordVote gives voter the chosen option, dropping any earlier choice.
// Voting again for the same option changes nothing.
func (s *MessageService) RecordVote(ctx context.Context, id string, optionIndex int, voter string) (models.Message, error) {
	voter = strings.TrimSpace(voter)
	if voter == "" {
		return models.Message{}, fmt.Errorf("%w: voter is required", ErrValidation)
	}

	var changed bool
	msg, err := s.repo.UpdatePoll(ctx, id, func(p *models.Poll) error {
		var err error
		changed, err = p.Vote(optionIndex, voter)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNoPoll), errors.Is(err, models.ErrOptionRange):
			return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidOption, err)
		default:
			return models.Message{}, s.mapRepoErr(err, id)
		}
	}

	if changed {
		counts := msg.Poll.Counts()
		s.publish(ctx, models.VoteRecorded{
			GroupID:     msg.GroupID,
			MessageID:   msg.ID,
			OptionIndex: optionIndex,
			NewCount:    counts[optionIndex],
			Counts:      counts,
		})
	}
	return msg, nil
}

func (s *MessageService) mapRepoErr(err error, id string) error {
	if errors.Is(err, message.ErrMessageNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("failed to access message %s: %w", id, err)
}

// publish never fails the write that triggered it.
func (s *MessageService) publish(ctx context.Context, event models.Event) {
	if err := s.publisher.Publish(ctx, event.Group(), event); err != nil {
		s.log.Warn("failed to publish event",
			zap.String("type", string(event.EventKind())),
			zap.String("group_id", event.Group()),
			zap.Error(err))
	}
}
