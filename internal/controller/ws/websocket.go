package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/christmas-fire/squadup/internal/service/auth"
	"github.com/christmas-fire/squadup/internal/service/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
	pingPeriod     = (pongWait * 9) / 10
	pongWait       = 60 * time.Second
)

// MembershipChecker authorizes joinGroup for authenticated connections.
type MembershipChecker interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

// Server upgrades HTTP requests and runs the per-connection protocol.
type Server struct {
	hub        *Hub
	messages   *message.MessageService
	publisher  message.EventPublisher
	groups     MembershipChecker
	jwtSecret  string
	sendBuffer int
	// requireAuth refuses joinGroup until the connection has authenticated.
	requireAuth bool
	log         *zap.Logger
}

type Option func(*Server)

// RequireAuth makes joinGroup reject anonymous connections.
func RequireAuth(on bool) Option {
	return func(s *Server) { s.requireAuth = on }
}

func NewServer(hub *Hub, messages *message.MessageService, publisher message.EventPublisher, groups MembershipChecker, jwtSecret string, sendBuffer int, log *zap.Logger, opts ...Option) *Server {
	s := &Server{
		hub:        hub,
		messages:   messages,
		publisher:  publisher,
		groups:     groups,
		jwtSecret:  jwtSecret,
		sendBuffer: sendBuffer,
		log:        log.Named("ws"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Client struct {
	UserID string
	id     string
	Conn   *websocket.Conn
	hub    *Hub
	server *Server
	send   chan []byte
	// groups is guarded by hub.mu.
	groups map[string]struct{}
	ctx    context.Context
}

func newClient(hub *Hub, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		id:     uuid.NewString(),
		Conn:   conn,
		hub:    hub,
		send:   make(chan []byte, buffer),
		groups: make(map[string]struct{}),
		ctx:    context.Background(),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.ServeWs(w, r)
}

func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := newClient(s.hub, conn, s.sendBuffer)
	client.server = s
	client.ctx = context.WithoutCancel(r.Context())
	client.hub.Register(client)

	s.log.Debug("client connected", zap.String("client", client.id), zap.String("remote", r.RemoteAddr))

	defer func() {
		client.hub.Unregister(client)
		client.Conn.Close()
	}()

	go client.writePump()
	client.readPump()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(frame)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	log := c.server.log
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("unexpected websocket close error", zap.Error(err))
			}
			break
		}

		var msg models.Envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug("failed to unmarshal message", zap.Error(err))
			c.sendError("", "malformed frame")
			continue
		}

		switch msg.Type {
		case TypeAuth:
			c.handleAuth(msg.Payload)

		case TypeJoinGroup:
			c.handleJoinGroup(msg.Payload)

		case TypeLeaveGroup:
			c.handleLeaveGroup(msg.Payload)

		case TypeSendMessage:
			c.handleSendMessage(msg.Payload)

		case TypeMessageDelivered:
			c.handleStatus(msg.Type, msg.Payload, models.StatusDelivered)

		case TypeMessageRead:
			c.handleStatus(msg.Type, msg.Payload, models.StatusRead)

		default:
			c.sendError(msg.Type, "unknown message type")
		}
	}
}

func (c *Client) handleAuth(payload json.RawMessage) {
	var authReq AuthRequest
	if err := json.Unmarshal(payload, &authReq); err != nil {
		c.sendError(TypeAuth, "invalid payload")
		return
	}

	authResp := AuthResponse{Success: false}
	userID, err := auth.ParseToken(authReq.Token, c.server.jwtSecret)
	if err != nil {
		authResp.Message = "Invalid token"
	} else {
		c.UserID = userID
		authResp.Success = true
		authResp.Message = "Authentication successful"
		c.server.log.Debug("client authenticated", zap.String("client", c.id), zap.String("user_id", userID))
	}

	c.reply(TypeAuthStatus, authResp)
}

// handleJoinGroup trusts anonymous connections unless the server requires
// auth. Authenticated connections must belong to the group.
func (c *Client) handleJoinGroup(payload json.RawMessage) {
	var req GroupRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.GroupID == "" {
		c.sendError(TypeJoinGroup, "groupId is required")
		return
	}

	if c.UserID == "" && c.server.requireAuth {
		c.sendError(TypeJoinGroup, "authentication required")
		return
	}
	if c.UserID != "" {
		ok, err := c.server.groups.IsMember(c.ctx, req.GroupID, c.UserID)
		if err != nil {
			c.server.log.Error("failed to check membership", zap.String("group_id", req.GroupID), zap.Error(err))
			c.sendError(TypeJoinGroup, "internal error")
			return
		}
		if !ok {
			c.sendError(TypeJoinGroup, "not a member of this group")
			return
		}
	}

	c.hub.Subscribe(c, req.GroupID)
	c.reply(TypeJoined, req)
}

func (c *Client) handleLeaveGroup(payload json.RawMessage) {
	var req GroupRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.GroupID == "" {
		c.sendError(TypeLeaveGroup, "groupId is required")
		return
	}
	c.hub.Unsubscribe(c, req.GroupID)
}

// handleSendMessage announces a message that was already stored over HTTP.
// The stored record is sent, never the client's copy.
func (c *Client) handleSendMessage(payload json.RawMessage) {
	var m models.Message
	if err := json.Unmarshal(payload, &m); err != nil || m.ID == "" {
		c.sendError(TypeSendMessage, "message id is required")
		return
	}

	stored, err := c.server.messages.Get(c.ctx, m.ID)
	if err != nil {
		c.replyErr(TypeSendMessage, err)
		return
	}

	if err := c.server.publisher.Publish(c.ctx, stored.GroupID, models.MessageCreated{Message: stored}); err != nil {
		c.server.log.Warn("failed to publish event", zap.String("group_id", stored.GroupID), zap.Error(err))
	}
}

func (c *Client) handleStatus(typ string, payload json.RawMessage, target models.Status) {
	var req StatusRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.MessageID == "" {
		c.sendError(typ, "messageId is required")
		return
	}

	if _, err := c.server.messages.Transition(c.ctx, req.MessageID, target); err != nil {
		c.replyErr(typ, err)
	}
}

func (c *Client) replyErr(typ string, err error) {
	switch {
	case errors.Is(err, message.ErrNotFound):
		c.sendError(typ, "message not found")
	case errors.Is(err, message.ErrValidation), errors.Is(err, message.ErrInvalidTransition):
		c.sendError(typ, err.Error())
	default:
		c.server.log.Error("request failed", zap.String("type", typ), zap.Error(err))
		c.sendError(typ, "internal error")
	}
}

func (c *Client) sendError(typ, text string) {
	c.reply(TypeError, ErrorResponse{Type: typ, Message: text})
}

func (c *Client) reply(typ string, payload interface{}) {
	data, err := NewWsMessage(typ, payload)
	if err != nil {
		c.server.log.Error("failed to create ws message", zap.String("type", typ), zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		c.server.log.Warn("client send channel full, dropping reply", zap.String("client", c.id))
	}
}
