package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownEvent = errors.New("unknown event type")

// EventKind doubles as the wire name of the event on the real-time channel.
type EventKind string

const (
	EventMessageCreated  EventKind = "receiveMessage"
	EventStatusChanged   EventKind = "updateMessageStatus"
	EventAttachmentAdded EventKind = "newFile"
	EventVoteRecorded    EventKind = "voteRecorded"
)

// Event is the closed set of notifications carried by the fan-out channel.
// The unexported marker keeps the set closed to this package.
type Event interface {
	EventKind() EventKind
	Group() string
	isEvent()
}

type MessageCreated struct {
	Message Message
}

type StatusChanged struct {
	GroupID   string `json:"groupId"`
	MessageID string `json:"messageId"`
	Status    Status `json:"status"`
}

type AttachmentAdded struct {
	GroupID string `json:"groupId"`
	File    File   `json:"file"`
}

type VoteRecorded struct {
	GroupID     string `json:"groupId"`
	MessageID   string `json:"messageId"`
	OptionIndex int    `json:"optionIndex"`
	NewCount    int    `json:"newCount"`
	Counts      []int  `json:"counts"`
}

func (MessageCreated) EventKind() EventKind  { return EventMessageCreated }
func (StatusChanged) EventKind() EventKind   { return EventStatusChanged }
func (AttachmentAdded) EventKind() EventKind { return EventAttachmentAdded }
func (VoteRecorded) EventKind() EventKind    { return EventVoteRecorded }

func (e MessageCreated) Group() string  { return e.Message.GroupID }
func (e StatusChanged) Group() string   { return e.GroupID }
func (e AttachmentAdded) Group() string { return e.GroupID }
func (e VoteRecorded) Group() string    { return e.GroupID }

func (MessageCreated) isEvent()  {}
func (StatusChanged) isEvent()   {}
func (AttachmentAdded) isEvent() {}
func (VoteRecorded) isEvent()    {}

// Envelope is the frame exchanged over websockets and the Redis relay.
// Payload parsing is deferred until Type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewEnvelope(typ string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Payload: p})
}

// EncodeEvent frames an event. MessageCreated travels as the bare message.
func EncodeEvent(e Event) ([]byte, error) {
	switch ev := e.(type) {
	case MessageCreated:
		return NewEnvelope(string(ev.EventKind()), ev.Message)
	default:
		return NewEnvelope(string(e.EventKind()), e)
	}
}

func DecodeEvent(typ string, payload json.RawMessage) (Event, error) {
	switch EventKind(typ) {
	case EventMessageCreated:
		var m Message
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", typ, err)
		}
		return MessageCreated{Message: m}, nil
	case EventStatusChanged:
		var ev StatusChanged
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", typ, err)
		}
		return ev, nil
	case EventAttachmentAdded:
		var ev AttachmentAdded
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", typ, err)
		}
		return ev, nil
	case EventVoteRecorded:
		var ev VoteRecorded
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", typ, err)
		}
		return ev, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, typ)
}
