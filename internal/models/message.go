package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownStatus = errors.New("unknown message status")
	ErrNoPoll        = errors.New("message has no poll")
	ErrOptionRange   = errors.New("poll option out of range")
)

// Status is the delivery state of a message. Values are ordered: a message
// only ever moves to a status with a higher rank.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

var statusRank = map[Status]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statusRank[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// StatusFromRank is the inverse of Rank. Storage layers keep the rank.
func StatusFromRank(rank int) (Status, error) {
	for st, r := range statusRank {
		if r == rank {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: rank %d", ErrUnknownStatus, rank)
}

// Forward reports whether moving from s to target advances the status.
func (s Status) Forward(target Status) bool {
	return target.Rank() > s.Rank()
}

// Max returns whichever of s and other is further along.
func (s Status) Max(other Status) Status {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

type Kind string

const (
	KindText       Kind = "text"
	KindAttachment Kind = "attachment"
	KindPoll       Kind = "poll"
)

type AttachmentKind string

const (
	AttachmentDocument AttachmentKind = "document"
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentVideo    AttachmentKind = "video"
)

func (k AttachmentKind) Valid() bool {
	switch k {
	case AttachmentDocument, AttachmentPhoto, AttachmentVideo:
		return true
	}
	return false
}

type Attachment struct {
	URL  string         `json:"url"`
	Kind AttachmentKind `json:"kind"`
}

type Message struct {
	ID          string      `json:"id"`
	GroupID     string      `json:"groupId"`
	SenderID    string      `json:"sender"`
	SenderName  string      `json:"senderName"`
	SenderEmail string      `json:"senderEmail"`
	Content     string      `json:"content"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	Poll        *Poll       `json:"poll,omitempty"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func (m Message) Kind() Kind {
	switch {
	case m.Poll != nil:
		return KindPoll
	case m.Attachment != nil:
		return KindAttachment
	default:
		return KindText
	}
}

// Clone returns a deep copy so stores can hand out messages without sharing
// the poll's voter slices.
func (m Message) Clone() Message {
	out := m
	if m.Attachment != nil {
		a := *m.Attachment
		out.Attachment = &a
	}
	if m.Poll != nil {
		p := m.Poll.Clone()
		out.Poll = &p
	}
	return out
}

// Identity is the sender identity captured at send time.
type Identity struct {
	Name  string
	Email string
}
