package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/christmas-fire/squadup/internal/app/rest"
	"github.com/christmas-fire/squadup/internal/client"
	"github.com/christmas-fire/squadup/internal/controller/ws"
	"github.com/christmas-fire/squadup/internal/models"
	filerepo "github.com/christmas-fire/squadup/internal/repository/file"
	grouprepo "github.com/christmas-fire/squadup/internal/repository/group"
	messagerepo "github.com/christmas-fire/squadup/internal/repository/message"
	"github.com/christmas-fire/squadup/internal/repository/user"
	"github.com/christmas-fire/squadup/internal/service/auth"
	"github.com/christmas-fire/squadup/internal/service/file"
	"github.com/christmas-fire/squadup/internal/service/group"
	"github.com/christmas-fire/squadup/internal/service/message"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type backend struct {
	url      string
	hub      *ws.Hub
	messages *message.MessageService
}

func newBackend(t *testing.T) backend {
	ctx, cancel := context.WithCancel(context.Background())
	log := zap.NewNop()

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	users := user.NewMemoryRepository()
	authService := auth.NewAuthService(users, nil, "secret", time.Hour, log)
	groupService := group.NewGroupService(grouprepo.NewMemoryRepository(), users, nil, authService, "secret", time.Hour, "", log)
	messageService := message.NewMessageService(messagerepo.NewMemoryRepository(), hub, log)
	uploads := t.TempDir()
	fileService := file.NewFileService(filerepo.NewMemoryRepository(), groupService, hub, uploads, 1<<20, log)

	router := rest.NewRouter(rest.Handlers{
		Auth:      rest.NewAuthHandler(authService, log),
		Messages:  rest.NewMessageHandler(messageService, log),
		Groups:    rest.NewGroupHandler(groupService, log),
		Files:     rest.NewFileHandler(fileService, log),
		Websocket: ws.NewServer(hub, messageService, hub, groupService, "secret", 64, log),
	}, rest.RouterConfig{UploadDir: uploads, Log: log})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return backend{url: srv.URL, hub: hub, messages: messageService}
}

func (b backend) session(t *testing.T, userID, name string) *client.Session {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := client.Dial(ctx, client.Config{ServerURL: b.url, GroupID: "g1", UserID: userID, Name: name}, zap.NewNop())
	require.NoError(t, err)
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		s.Close()
	})
	return s
}

func TestSession_SendDeliverRoundTrip(t *testing.T) {
	req := require.New(t)
	b := newBackend(t)
	alice := b.session(t, "u1", "Alice")
	bob := b.session(t, "u2", "Bob")
	req.Eventually(func() bool { return b.hub.Subscribers("g1") == 2 }, 2*time.Second, 10*time.Millisecond)

	// When Alice sends a message
	_, err := alice.Send(context.Background(), "hello")
	req.NoError(err)

	// Then Bob sees it and acknowledges delivery, and both views converge
	// on a single delivered entry
	for _, s := range []*client.Session{alice, bob} {
		tl := s.Timeline()
		req.Eventually(func() bool {
			msgs := tl.Messages()
			return len(msgs) == 1 && msgs[0].Status == models.StatusDelivered
		}, 2*time.Second, 10*time.Millisecond)
	}

	stored, err := b.messages.ListByGroup(context.Background(), "g1")
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal(models.StatusDelivered, stored[0].Status)
	req.Equal(stored[0].ID, alice.Timeline().Messages()[0].ID)

	// When Bob reads it, Alice sees the read status
	req.NoError(bob.MarkRead(context.Background(), stored[0].ID))
	req.Eventually(func() bool {
		return alice.Timeline().Messages()[0].Status == models.StatusRead
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_LoadHistoryAcknowledgesForeignMessages(t *testing.T) {
	req := require.New(t)
	b := newBackend(t)
	ctx := context.Background()

	m, err := b.messages.Append(ctx, "g1", "u1", models.Identity{Name: "Alice"}, message.TextPayload{Content: "earlier"})
	req.NoError(err)

	bob := b.session(t, "u2", "Bob")
	req.NoError(bob.LoadHistory(ctx))
	req.Equal([]string{m.ID}, []string{bob.Timeline().Messages()[0].ID})

	got, err := b.messages.Get(ctx, m.ID)
	req.NoError(err)
	req.Equal(models.StatusDelivered, got.Status)

	history, err := client.History(ctx, b.url, "g1")
	req.NoError(err)
	req.Len(history, 1)
}

func TestSession_SendFailureKeepsEntry(t *testing.T) {
	req := require.New(t)
	b := newBackend(t)
	alice := b.session(t, "", "Nobody")

	// An empty sender is rejected by the store
	corr, err := alice.Send(context.Background(), "hello")
	req.Error(err)

	entries := alice.Timeline().Entries()
	req.Len(entries, 1)
	req.Equal(client.StateFailed, entries[0].State)
	req.Equal(corr, entries[0].CorrelationID)

	req.Error(alice.Retry(context.Background(), corr))
	req.Empty(alice.Timeline().Entries())
}
