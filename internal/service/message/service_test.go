package message_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/christmas-fire/squadup/internal/mocks"
	"github.com/christmas-fire/squadup/internal/models"
	messagerepo "github.com/christmas-fire/squadup/internal/repository/message"
	"github.com/christmas-fire/squadup/internal/service/message"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

var alice = models.Identity{Name: "Alice", Email: "alice@example.com"}

func newService(t *testing.T) (*message.MessageService, *mocks.MockEventPublisher) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockEventPublisher(ctrl)
	return message.NewMessageService(messagerepo.NewMemoryRepository(), publisher, zap.NewNop()), publisher
}

func TestAppend_Text(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, publisher := newService(t)

	var published models.Event
	publisher.EXPECT().Publish(gomock.Any(), "g1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, e models.Event) error {
			published = e
			return nil
		})

	// When a text message is appended
	msg, err := svc.Append(ctx, "g1", "u1", alice, message.TextPayload{Content: "hello"})

	// Then it is stored as sent with a server id and announced once
	req.NoError(err)
	req.NotEmpty(msg.ID)
	req.Equal(models.StatusSent, msg.Status)
	req.Equal("hello", msg.Content)
	req.Equal("Alice", msg.SenderName)
	req.Equal("alice@example.com", msg.SenderEmail)
	req.False(msg.CreatedAt.IsZero())
	req.Equal(models.MessageCreated{Message: msg}, published)
}

func TestAppend_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		groupID  string
		senderID string
		payload  message.Payload
	}{
		{name: "empty content", groupID: "g1", senderID: "u1", payload: message.TextPayload{Content: "   "}},
		{name: "no payload", groupID: "g1", senderID: "u1", payload: nil},
		{name: "missing group", groupID: "", senderID: "u1", payload: message.TextPayload{Content: "hi"}},
		{name: "missing sender", groupID: "g1", senderID: "", payload: message.TextPayload{Content: "hi"}},
		{name: "attachment without url", groupID: "g1", senderID: "u1", payload: message.AttachmentPayload{Kind: models.AttachmentPhoto}},
		{name: "attachment with unknown kind", groupID: "g1", senderID: "u1", payload: message.AttachmentPayload{URL: "/uploads/a.bin", Kind: "audio"}},
		{name: "poll without question", groupID: "g1", senderID: "u1", payload: message.PollPayload{Options: []string{"a", "b"}}},
		{name: "poll with one option", groupID: "g1", senderID: "u1", payload: message.PollPayload{Question: "q", Options: []string{"a", " "}}},
		{name: "poll with six options", groupID: "g1", senderID: "u1", payload: message.PollPayload{Question: "q", Options: []string{"1", "2", "3", "4", "5", "6"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			// No Publish expectation: any publish fails the test.
			svc, _ := newService(t)

			_, err := svc.Append(ctx, tt.groupID, tt.senderID, alice, tt.payload)
			req.ErrorIs(err, message.ErrValidation)

			if tt.groupID != "" {
				history, err := svc.ListByGroup(ctx, tt.groupID)
				req.NoError(err)
				req.Empty(history)
			}
		})
	}
}

func TestAppend_AttachmentCaptionDefaults(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, publisher := newService(t)
	publisher.EXPECT().Publish(gomock.Any(), "g1", gomock.Any()).Return(nil).Times(2)

	photo, err := svc.Append(ctx, "g1", "u1", alice, message.AttachmentPayload{URL: "/uploads/1700-cat.png", Kind: models.AttachmentPhoto})
	req.NoError(err)
	req.Equal("🖼️ 1700-cat.png", photo.Content)
	req.Equal(models.KindAttachment, photo.Kind())

	doc, err := svc.Append(ctx, "g1", "u1", alice, message.AttachmentPayload{URL: "/uploads/notes.pdf", Kind: models.AttachmentDocument, Caption: "lecture notes"})
	req.NoError(err)
	req.Equal("lecture notes", doc.Content)
}

func TestAppend_PublishFailureDoesNotFailWrite(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, publisher := newService(t)
	publisher.EXPECT().Publish(gomock.Any(), "g1", gomock.Any()).Return(errors.New("channel down"))

	msg, err := svc.Append(ctx, "g1", "u1", alice, message.TextPayload{Content: "hi"})
	req.NoError(err)

	stored, err := svc.Get(ctx, msg.ID)
	req.NoError(err)
	req.Equal(msg.ID, stored.ID)
}

func TestListByGroup_OrderedUnderConcurrentAppends(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, publisher := newService(t)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	// When many senders append concurrently while history is read
	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Append(ctx, "g1", "u1", alice, message.TextPayload{Content: "hi"})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.ListByGroup(ctx, "g1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	// Then history is non-decreasing by createdAt
	history, err := svc.ListByGroup(ctx, "g1")
	req.NoError(err)
	req.Len(history, 50)
	for i := 1; i < len(history); i++ {
		req.False(history[i].CreatedAt.Before(history[i-1].CreatedAt))
	}
}

func TestTransition_Monotonic(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, publisher := newService(t)

	publisher.EXPECT().Publish(gomock.Any(), "g1", gomock.AssignableToTypeOf(models.MessageCreated{})).Return(nil)
	msg, err := svc.Append(ctx, "g1", "u1", alice, message.TextPayload{Content: "hi"})
	req.NoError(err)

	publisher.EXPECT().Publish(gomock.Any(), "g1", models.StatusChanged{GroupID: "g1", MessageID: msg.ID, Status: models.StatusRead}).Return(nil)

	// Given the message is read
	updated, err := svc.Transition(ctx, msg.ID, models.StatusRead)
	req.NoError(err)
	req.Equal(models.StatusRead, updated.Status)

	// When a late delivered request arrives, and a sent request
	updated, err = svc.Transition(ctx, msg.ID, models.StatusDelivered)
	req.NoError(err)
	req.Equal(models.StatusRead, updated.Status)

	updated, err = svc.Transition(ctx, msg.ID, models.StatusSent)
	req.NoError(err)

	// Then it stays read and no further event is published
	req.Equal(models.StatusRead, updated.Status)
}

func TestTransition_ConcurrentDelivered(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, publisher := newService(t)

	publisher.EXPECT().Publish(gomock.Any(), "g1", gomock.AssignableToTypeOf(models.MessageCreated{})).Return(nil)
	msg, err := svc.Append(ctx, "g1", "u1", alice, message.TextPayload{Content: "hi"})
	req.NoError(err)

	publisher.EXPECT().Publish(gomock.Any(), "g1", gomock.AssignableToTypeOf(models.StatusChanged{})).Return(nil).Times(1)

	// When N recipients mark the message delivered at once
	const n = 25
	var wg sync.WaitGroup
	results := make(chan models.Message, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := svc.Transition(ctx, msg.ID, models.StatusDelivered)
			results <- m
			errs <- err
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	// Then every call succeeds with the same end state and one event
	for err := range errs {
		req.NoError(err)
	}
	for m := range results {
		req.Equal(models.StatusDelivered, m.Status)
	}
}

func TestTransition_Errors(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Transition(ctx, "missing", models.StatusDelivered)
	req.ErrorIs(err, message.ErrNotFound)

	_, err = svc.Transition(ctx, "missing", models.Status("archived"))
	req.ErrorIs(err, message.ErrInvalidTransition)
}

func TestRecordVote_SwitchAndShare(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, publisher := newService(t)

	publisher.EXPECT().Publish(gomock.Any(), "g1", gomock.AssignableToTypeOf(models.MessageCreated{})).Return(nil)
	poll, err := svc.Append(ctx, "g1", "u1", alice, message.PollPayload{Question: "Lunch?", Options: []string{"Pizza", "Burger"}})
	req.NoError(err)
	req.Equal("📊 Poll: Lunch?", poll.Content)

	var votes []models.VoteRecorded
	publisher.EXPECT().Publish(gomock.Any(), "g1", gomock.AssignableToTypeOf(models.VoteRecorded{})).
		DoAndReturn(func(_ context.Context, _ string, e models.Event) error {
			votes = append(votes, e.(models.VoteRecorded))
			return nil
		}).Times(3)

	// v1 votes Pizza
	msg, err := svc.RecordVote(ctx, poll.ID, 0, "v1")
	req.NoError(err)
	req.Equal([]int{1, 0}, msg.Poll.Counts())

	// v1 repeats the same vote
	msg, err = svc.RecordVote(ctx, poll.ID, 0, "v1")
	req.NoError(err)
	req.Equal([]int{1, 0}, msg.Poll.Counts())

	// v1 switches to Burger
	msg, err = svc.RecordVote(ctx, poll.ID, 1, "v1")
	req.NoError(err)
	req.Equal([]int{0, 1}, msg.Poll.Counts())
	req.Equal(1, msg.Poll.TotalVotes())

	// v2 votes Burger
	msg, err = svc.RecordVote(ctx, poll.ID, 1, "v2")
	req.NoError(err)
	req.Equal([]int{0, 2}, msg.Poll.Counts())

	req.Len(votes, 3)
	req.Equal(models.VoteRecorded{GroupID: "g1", MessageID: poll.ID, OptionIndex: 1, NewCount: 2, Counts: []int{0, 2}}, votes[2])
}

func TestRecordVote_Errors(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, publisher := newService(t)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	poll, err := svc.Append(ctx, "g1", "u1", alice, message.PollPayload{Question: "q", Options: []string{"a", "b"}})
	req.NoError(err)
	text, err := svc.Append(ctx, "g1", "u1", alice, message.TextPayload{Content: "hi"})
	req.NoError(err)

	_, err = svc.RecordVote(ctx, poll.ID, 2, "v1")
	req.ErrorIs(err, message.ErrInvalidOption)

	_, err = svc.RecordVote(ctx, poll.ID, -1, "v1")
	req.ErrorIs(err, message.ErrInvalidOption)

	_, err = svc.RecordVote(ctx, text.ID, 0, "v1")
	req.ErrorIs(err, message.ErrInvalidOption)

	_, err = svc.RecordVote(ctx, "missing", 0, "v1")
	req.ErrorIs(err, message.ErrNotFound)

	_, err = svc.RecordVote(ctx, poll.ID, 0, " ")
	req.ErrorIs(err, message.ErrValidation)

	stored, err := svc.Get(ctx, poll.ID)
	req.NoError(err)
	req.Equal([]int{0, 0}, stored.Poll.Counts())
}
