package ws

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/christmas-fire/squadup/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startRelay(t *testing.T, ctx context.Context, addr string, hub *Hub) *Relay {
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	relay := NewRelay(client, hub, 8, zap.NewNop())
	go relay.Run(ctx)
	return relay
}

func TestRelay_FansOutAcrossNodes(t *testing.T) {
	req := require.New(t)
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given two nodes, each with its own hub and a g1 subscriber
	hubA, hubB := NewHub(zap.NewNop()), NewHub(zap.NewNop())
	onA, onB := newClient(hubA, nil, 4), newClient(hubB, nil, 4)
	hubA.Subscribe(onA, "g1")
	hubB.Subscribe(onB, "g1")

	relayA := startRelay(t, ctx, mr.Addr(), hubA)
	startRelay(t, ctx, mr.Addr(), hubB)
	req.Eventually(func() bool {
		return mr.PubSubNumSub(EventsChannel)[EventsChannel] == 2
	}, time.Second, 10*time.Millisecond)

	// When node A publishes
	event := models.StatusChanged{GroupID: "g1", MessageID: "m1", Status: models.StatusRead}
	req.NoError(relayA.Publish(ctx, "g1", event))

	// Then subscribers on both nodes receive it
	for _, c := range []*Client{onA, onB} {
		env := receive(t, c)
		decoded, err := models.DecodeEvent(env.Type, env.Payload)
		req.NoError(err)
		req.Equal(event, decoded)
	}
}

func TestRelay_PreservesPublishOrder(t *testing.T) {
	req := require.New(t)
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zap.NewNop())
	sub := newClient(hub, nil, 8)
	hub.Subscribe(sub, "g1")

	relay := startRelay(t, ctx, mr.Addr(), hub)
	req.Eventually(func() bool {
		return mr.PubSubNumSub(EventsChannel)[EventsChannel] == 1
	}, time.Second, 10*time.Millisecond)

	ids := []string{"m1", "m2", "m3", "m4"}
	for _, id := range ids {
		req.NoError(relay.Publish(ctx, "g1", models.StatusChanged{GroupID: "g1", MessageID: id, Status: models.StatusDelivered}))
	}

	for _, id := range ids {
		env := receive(t, sub)
		decoded, err := models.DecodeEvent(env.Type, env.Payload)
		req.NoError(err)
		req.Equal(id, decoded.(models.StatusChanged).MessageID)
	}
}

func TestRelay_FullOutboxReportsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	// Run is never started, so nothing drains the outbox
	relay := NewRelay(client, NewHub(zap.NewNop()), 1, zap.NewNop())
	event := models.StatusChanged{GroupID: "g1", MessageID: "m1", Status: models.StatusRead}

	require.NoError(t, relay.Publish(context.Background(), "g1", event))
	require.ErrorIs(t, relay.Publish(context.Background(), "g1", event), ErrOutboxFull)
}
