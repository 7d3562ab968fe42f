package rest

import (
	"errors"
	"net/http"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/christmas-fire/squadup/internal/service/message"
	"go.uber.org/zap"
)

type MessageHandler struct {
	service *message.MessageService
	log     *zap.Logger
}

func NewMessageHandler(service *message.MessageService, log *zap.Logger) *MessageHandler {
	return &MessageHandler{service: service, log: log}
}

// SendRequest carries exactly one payload: content alone, an attachment
// (content is then its caption) or a poll.
type SendRequest struct {
	GroupID     string `json:"groupId"`
	Sender      string `json:"sender"`
	SenderName  string `json:"senderName"`
	SenderEmail string `json:"senderEmail"`
	Content     string `json:"content"`
	Attachment  *struct {
		URL  string                `json:"url"`
		Kind models.AttachmentKind `json:"kind"`
	} `json:"attachment,omitempty"`
	Poll *PollRequest `json:"poll,omitempty"`
}

type PollRequest struct {
	GroupID     string   `json:"groupId,omitempty"`
	Sender      string   `json:"sender,omitempty"`
	SenderName  string   `json:"senderName,omitempty"`
	SenderEmail string   `json:"senderEmail,omitempty"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
}

type VoteRequest struct {
	OptionIndex *int   `json:"optionIndex"`
	Voter       string `json:"voter"`
}

func (h *MessageHandler) ListByGroup(w http.ResponseWriter, r *http.Request) {
	messages, err := h.service.ListByGroup(r.Context(), r.PathValue("groupId"))
	if err != nil {
		h.fail(w, err, "Error fetching messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	msg, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err, "Error fetching message")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Attachment != nil && req.Poll != nil {
		writeError(w, http.StatusBadRequest, "A message carries either an attachment or a poll")
		return
	}

	var payload message.Payload
	switch {
	case req.Poll != nil:
		payload = message.PollPayload{Question: req.Poll.Question, Options: req.Poll.Options, Caption: req.Content}
	case req.Attachment != nil:
		payload = message.AttachmentPayload{URL: req.Attachment.URL, Kind: req.Attachment.Kind, Caption: req.Content}
	default:
		payload = message.TextPayload{Content: req.Content}
	}

	h.append(w, r, req.GroupID, req.Sender, models.Identity{Name: req.SenderName, Email: req.SenderEmail}, payload)
}

func (h *MessageHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	var req PollRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	payload := message.PollPayload{Question: req.Question, Options: req.Options}
	h.append(w, r, req.GroupID, req.Sender, models.Identity{Name: req.SenderName, Email: req.SenderEmail}, payload)
}

func (h *MessageHandler) append(w http.ResponseWriter, r *http.Request, groupID, sender string, identity models.Identity, payload message.Payload) {
	msg, err := h.service.Append(r.Context(), groupID, sender, identity, payload)
	if err != nil {
		h.fail(w, err, "Error saving message")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) Delivered(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.StatusDelivered)
}

func (h *MessageHandler) Read(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.StatusRead)
}

func (h *MessageHandler) transition(w http.ResponseWriter, r *http.Request, target models.Status) {
	msg, err := h.service.Transition(r.Context(), r.PathValue("id"), target)
	if err != nil {
		h.fail(w, err, "Error updating message")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OptionIndex == nil {
		writeError(w, http.StatusBadRequest, "optionIndex is required")
		return
	}

	msg, err := h.service.RecordVote(r.Context(), r.PathValue("id"), *req.OptionIndex, req.Voter)
	if err != nil {
		h.fail(w, err, "Error recording vote")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) fail(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, message.ErrNotFound):
		writeError(w, http.StatusNotFound, "Message not found")
	case errors.Is(err, message.ErrValidation),
		errors.Is(err, message.ErrInvalidTransition),
		errors.Is(err, message.ErrInvalidOption):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
