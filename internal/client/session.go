package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	requestTimeout = 10 * time.Second
	writeWait      = 10 * time.Second
)

// Frame types the session sends and understands besides the event kinds.
const (
	frameAuth             = "auth"
	frameJoinGroup        = "joinGroup"
	frameSendMessage      = "sendMessage"
	frameMessageDelivered = "messageDelivered"
	frameMessageRead      = "messageRead"
	frameError            = "error"
)

var ErrServerURLRequired = errors.New("server url is required")

type Config struct {
	ServerURL string
	Token     string
	GroupID   string
	UserID    string
	Name      string
	Email     string
}

// Session keeps one group's Timeline in sync with a server. Writes go over
// HTTP first and are then announced on the websocket.
type Session struct {
	cfg      Config
	http     *resty.Client
	conn     *websocket.Conn
	writeMu  sync.Mutex
	timeline *Timeline
	log      *zap.Logger

	// OnChange is called after the timeline changed because of an event.
	OnChange func(models.Event)
	// OnError receives error frames sent by the server.
	OnError func(string)
}

type apiError struct {
	Message string `json:"message"`
}

type statusFrame struct {
	MessageID string `json:"messageId"`
	GroupID   string `json:"groupId"`
}

// Dial opens the websocket, authenticates when a token is configured and
// joins the group.
func Dial(ctx context.Context, cfg Config, log *zap.Logger) (*Session, error) {
	wsURL, err := websocketURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.ServerURL, "/")).
		SetTimeout(requestTimeout).
		SetError(&apiError{})
	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}

	s := &Session{
		cfg:      cfg,
		http:     httpClient,
		conn:     conn,
		timeline: NewTimeline(cfg.UserID),
		log:      log.Named("session"),
	}

	if cfg.Token != "" {
		if err := s.write(frameAuth, map[string]string{"token": cfg.Token}); err != nil {
			conn.Close()
			return nil, err
		}
	}
	if err := s.write(frameJoinGroup, map[string]string{"groupId": cfg.GroupID}); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", server, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func (s *Session) Timeline() *Timeline {
	return s.timeline
}

func (s *Session) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return s.conn.Close()
}

// LoadHistory merges the stored history and acknowledges foreign messages.
func (s *Session) LoadHistory(ctx context.Context) error {
	var history []models.Message
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&history).
		SetPathParam("groupId", s.cfg.GroupID).
		Get("/messages/group/{groupId}")
	if err := responseErr(resp, err, "load history"); err != nil {
		return err
	}

	s.timeline.MergeHistory(history)
	for _, m := range history {
		s.ackDelivered(ctx, m)
	}
	return nil
}

// Send shows content immediately and then stores it. On failure the entry
// stays in the timeline marked failed; its correlation id is returned so
// the caller can Retry.
func (s *Session) Send(ctx context.Context, content string) (string, error) {
	corrID := s.timeline.AddPending(models.Message{
		GroupID:     s.cfg.GroupID,
		SenderID:    s.cfg.UserID,
		SenderName:  s.cfg.Name,
		SenderEmail: s.cfg.Email,
		Content:     content,
	})
	return corrID, s.deliver(ctx, corrID, content)
}

func (s *Session) Retry(ctx context.Context, corrID string) error {
	draft, err := s.timeline.Retry(corrID)
	if err != nil {
		return err
	}
	return s.deliver(ctx, corrID, draft.Content)
}

func (s *Session) deliver(ctx context.Context, corrID, content string) error {
	var stored models.Message
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"groupId":     s.cfg.GroupID,
			"sender":      s.cfg.UserID,
			"senderName":  s.cfg.Name,
			"senderEmail": s.cfg.Email,
			"content":     content,
		}).
		SetResult(&stored).
		Post("/messages/send")
	if err := responseErr(resp, err, "send message"); err != nil {
		if _, ferr := s.timeline.Fail(corrID); ferr != nil {
			s.log.Warn("failed to record send failure", zap.Error(ferr))
		}
		return err
	}

	if err := s.timeline.Acknowledge(corrID, stored); err != nil {
		return err
	}
	if err := s.write(frameSendMessage, stored); err != nil {
		s.log.Warn("failed to announce message", zap.String("message_id", stored.ID), zap.Error(err))
	}
	return nil
}

func (s *Session) MarkRead(ctx context.Context, messageID string) error {
	return s.transition(ctx, messageID, "read", frameMessageRead)
}

func (s *Session) markDelivered(ctx context.Context, messageID string) error {
	return s.transition(ctx, messageID, "delivered", frameMessageDelivered)
}

func (s *Session) transition(ctx context.Context, messageID, status, frame string) error {
	var updated models.Message
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&updated).
		SetPathParams(map[string]string{"id": messageID, "status": status}).
		Put("/messages/{id}/{status}")
	if err := responseErr(resp, err, "mark message "+status); err != nil {
		return err
	}

	s.timeline.ApplyEvent(models.StatusChanged{GroupID: updated.GroupID, MessageID: updated.ID, Status: updated.Status})
	return s.write(frame, statusFrame{MessageID: messageID, GroupID: s.cfg.GroupID})
}

func (s *Session) Vote(ctx context.Context, messageID string, option int) error {
	var updated models.Message
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"optionIndex": option, "voter": s.cfg.UserID}).
		SetResult(&updated).
		SetPathParam("id", messageID).
		Put("/messages/{id}/vote")
	if err := responseErr(resp, err, "vote"); err != nil {
		return err
	}
	if updated.Poll != nil {
		s.timeline.ApplyEvent(models.VoteRecorded{GroupID: updated.GroupID, MessageID: updated.ID, Counts: updated.Poll.Counts()})
	}
	return nil
}

// Run applies channel events to the timeline until ctx is done or the
// connection drops.
func (s *Session) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Debug("failed to unmarshal frame", zap.Error(err))
			continue
		}
		s.handle(ctx, env)
	}
}

func (s *Session) handle(ctx context.Context, env models.Envelope) {
	if env.Type == frameError {
		var e apiError
		if err := json.Unmarshal(env.Payload, &e); err == nil && s.OnError != nil {
			s.OnError(e.Message)
		}
		return
	}

	event, err := models.DecodeEvent(env.Type, env.Payload)
	if err != nil {
		s.log.Debug("ignoring frame", zap.String("type", env.Type))
		return
	}
	if event.Group() != s.cfg.GroupID {
		return
	}

	changed := s.timeline.ApplyEvent(event)
	if created, ok := event.(models.MessageCreated); ok {
		go s.ackDelivered(ctx, created.Message)
	}
	if changed && s.OnChange != nil {
		s.OnChange(event)
	}
}

func (s *Session) ackDelivered(ctx context.Context, m models.Message) {
	if !s.timeline.NeedsDelivered(m) {
		return
	}
	if err := s.markDelivered(ctx, m.ID); err != nil {
		s.log.Warn("failed to mark message delivered", zap.String("message_id", m.ID), zap.Error(err))
	}
}

func (s *Session) write(typ string, payload any) error {
	data, err := models.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func responseErr(resp *resty.Response, err error, action string) error {
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Message != "" {
			return fmt.Errorf("failed to %s: %s", action, e.Message)
		}
		return fmt.Errorf("failed to %s: %s", action, resp.Status())
	}
	return nil
}

// History fetches a group's messages without opening a websocket.
func History(ctx context.Context, serverURL, groupID string) ([]models.Message, error) {
	if serverURL == "" {
		return nil, ErrServerURLRequired
	}
	var history []models.Message
	resp, err := resty.New().
		SetBaseURL(strings.TrimRight(serverURL, "/")).
		SetTimeout(requestTimeout).
		SetError(&apiError{}).
		R().
		SetContext(ctx).
		SetResult(&history).
		SetPathParam("groupId", groupID).
		Get("/messages/group/{groupId}")
	if err := responseErr(resp, err, "load history"); err != nil {
		return nil, err
	}
	return history, nil
}
