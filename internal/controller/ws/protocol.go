package ws

import "github.com/christmas-fire/squadup/internal/models"

// Inbound frame types.
const (
	TypeAuth             = "auth"
	TypeJoinGroup        = "joinGroup"
	TypeLeaveGroup       = "leaveGroup"
	TypeSendMessage      = "sendMessage"
	TypeMessageDelivered = "messageDelivered"
	TypeMessageRead      = "messageRead"
)

// Outbound frame types besides the event kinds.
const (
	TypeAuthStatus = "auth_status"
	TypeJoined     = "joined"
	TypeError      = "error"
)

type AuthRequest struct {
	Token string `json:"token"`
}

type AuthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type GroupRequest struct {
	GroupID string `json:"groupId"`
}

type StatusRequest struct {
	MessageID string `json:"messageId"`
	GroupID   string `json:"groupId"`
}

type ErrorResponse struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

func NewWsMessage(typ string, payload interface{}) ([]byte, error) {
	return models.NewEnvelope(typ, payload)
}
