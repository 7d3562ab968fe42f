package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeEvent_MessageCreatedCarriesBareMessage(t *testing.T) {
	req := require.New(t)
	msg := Message{ID: "m1", GroupID: "g1", SenderID: "u1", Content: "hello", Status: StatusSent, CreatedAt: time.Unix(10, 0).UTC()}

	raw, err := EncodeEvent(MessageCreated{Message: msg})
	req.NoError(err)

	var env Envelope
	req.NoError(json.Unmarshal(raw, &env))
	req.Equal("receiveMessage", env.Type)

	var decoded Message
	req.NoError(json.Unmarshal(env.Payload, &decoded))
	req.Equal("m1", decoded.ID)
	req.Equal("g1", decoded.GroupID)
}

func TestDecodeEvent_StatusChanged(t *testing.T) {
	req := require.New(t)
	raw, err := EncodeEvent(StatusChanged{GroupID: "g1", MessageID: "m1", Status: StatusDelivered})
	req.NoError(err)

	var env Envelope
	req.NoError(json.Unmarshal(raw, &env))

	evt, err := DecodeEvent(env.Type, env.Payload)
	req.NoError(err)
	sc, ok := evt.(StatusChanged)
	req.True(ok)
	req.Equal("m1", sc.MessageID)
	req.Equal(StatusDelivered, sc.Status)
	req.Equal("g1", sc.Group())
}

func TestDecodeEvent_Unknown(t *testing.T) {
	_, err := DecodeEvent("typing", json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrUnknownEvent)
}
