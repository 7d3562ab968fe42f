package message

import (
	"fmt"
	"path"
	"strings"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/samber/lo"
)

const (
	minPollOptions = 2
	maxPollOptions = 5
)

// Payload is exactly one of TextPayload, AttachmentPayload or PollPayload.
type Payload interface {
	apply(msg *models.Message) error
}

type TextPayload struct {
	Content string
}

type AttachmentPayload struct {
	URL  string
	Kind models.AttachmentKind
	// Caption defaults to an icon plus the file name taken from URL.
	Caption string
}

type PollPayload struct {
	Question string
	Options  []string
	Caption  string
}

func (p TextPayload) apply(msg *models.Message) error {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	msg.Content = content
	return nil
}

var attachmentIcons = map[models.AttachmentKind]string{
	models.AttachmentDocument: "📄",
	models.AttachmentPhoto:    "🖼️",
	models.AttachmentVideo:    "🎬",
}

func (p AttachmentPayload) apply(msg *models.Message) error {
	url := strings.TrimSpace(p.URL)
	if url == "" {
		return fmt.Errorf("%w: attachment url is required", ErrValidation)
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: unknown attachment kind %q", ErrValidation, p.Kind)
	}

	caption := strings.TrimSpace(p.Caption)
	if caption == "" {
		caption = attachmentIcons[p.Kind] + " " + path.Base(url)
	}
	msg.Content = caption
	msg.Attachment = &models.Attachment{URL: url, Kind: p.Kind}
	return nil
}

func (p PollPayload) apply(msg *models.Message) error {
	question := strings.TrimSpace(p.Question)
	if question == "" {
		return fmt.Errorf("%w: poll question is required", ErrValidation)
	}

	options := lo.Compact(lo.Map(p.Options, func(o string, _ int) string {
		return strings.TrimSpace(o)
	}))
	if len(options) < minPollOptions || len(options) > maxPollOptions {
		return fmt.Errorf("%w: a poll needs %d to %d options, got %d",
			ErrValidation, minPollOptions, maxPollOptions, len(options))
	}

	caption := strings.TrimSpace(p.Caption)
	if caption == "" {
		caption = "📊 Poll: " + question
	}
	poll := models.NewPoll(question, options)
	msg.Content = caption
	msg.Poll = &poll
	return nil
}
