package squadup

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/christmas-fire/squadup/internal/controller/grpc/interceptors"
	"github.com/christmas-fire/squadup/internal/models"
	"github.com/christmas-fire/squadup/internal/service/auth"
	"github.com/christmas-fire/squadup/internal/service/message"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// PublicMethods skip the auth interceptors.
var PublicMethods = map[string]bool{
	LoginMethod: true,
}

type MembershipChecker interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

type server struct {
	authService *auth.AuthService
	messages    *message.MessageService
	groups      MembershipChecker
	log         *zap.Logger
}

func NewServer(authService *auth.AuthService, messages *message.MessageService, groups MembershipChecker, log *zap.Logger) *server {
	return &server{
		authService: authService,
		messages:    messages,
		groups:      groups,
		log:         log.Named("grpc"),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sendRequest struct {
	GroupID    string `json:"groupId"`
	Content    string `json:"content"`
	Attachment *struct {
		URL     string                `json:"url"`
		Kind    models.AttachmentKind `json:"kind"`
		Caption string                `json:"caption"`
	} `json:"attachment"`
	Poll *struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
	} `json:"poll"`
}

type messageRequest struct {
	MessageID   string `json:"messageId"`
	OptionIndex *int   `json:"optionIndex"`
}

type groupRequest struct {
	GroupID string `json:"groupId"`
}

func (s *server) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in loginRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}

	token, u, err := s.authService.Login(ctx, in.Email, in.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, auth.ErrInvalidCredentials):
			return nil, status.Error(codes.Unauthenticated, err.Error())
		case errors.Is(err, auth.ErrNotVerified):
			return nil, status.Error(codes.PermissionDenied, err.Error())
		}
		s.log.Error("login failed", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to login")
	}

	return encode(map[string]any{
		"token": token,
		"user":  map[string]any{"id": u.ID, "fullName": u.FullName, "email": u.Email},
	})
}

func (s *server) SendMessage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.member(ctx, req.GetFields()["groupId"].GetStringValue())
	if err != nil {
		return nil, err
	}

	var in sendRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.Attachment != nil && in.Poll != nil {
		return nil, status.Error(codes.InvalidArgument, "a message carries either an attachment or a poll")
	}

	var payload message.Payload
	switch {
	case in.Poll != nil:
		payload = message.PollPayload{Question: in.Poll.Question, Options: in.Poll.Options, Caption: in.Content}
	case in.Attachment != nil:
		caption := in.Attachment.Caption
		if caption == "" {
			caption = in.Content
		}
		payload = message.AttachmentPayload{URL: in.Attachment.URL, Kind: in.Attachment.Kind, Caption: caption}
	default:
		payload = message.TextPayload{Content: in.Content}
	}

	u, err := s.authService.User(ctx, userID)
	if err != nil {
		return nil, s.toStatus(err)
	}

	msg, err := s.messages.Append(ctx, in.GroupID, userID, models.Identity{Name: u.FullName, Email: u.Email}, payload)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return encode(msg)
}

func (s *server) MarkDelivered(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, req, models.StatusDelivered)
}

func (s *server) MarkRead(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, req, models.StatusRead)
}

func (s *server) transition(ctx context.Context, req *structpb.Struct, target models.Status) (*structpb.Struct, error) {
	var in messageRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if _, err := s.messageMember(ctx, in.MessageID); err != nil {
		return nil, err
	}

	msg, err := s.messages.Transition(ctx, in.MessageID, target)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return encode(msg)
}

func (s *server) Vote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in messageRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.OptionIndex == nil {
		return nil, status.Error(codes.InvalidArgument, "optionIndex is required")
	}
	userID, err := s.messageMember(ctx, in.MessageID)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.RecordVote(ctx, in.MessageID, *in.OptionIndex, userID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return encode(msg)
}

func (s *server) GetGroupHistory(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()

	var in groupRequest
	if err := decode(req, &in); err != nil {
		return err
	}
	if _, err := s.member(ctx, in.GroupID); err != nil {
		return err
	}

	messages, err := s.messages.ListByGroup(ctx, in.GroupID)
	if err != nil {
		return s.toStatus(err)
	}

	for _, msg := range messages {
		out, err := encode(msg)
		if err != nil {
			return err
		}
		if err := stream.Send(out); err != nil {
			s.log.Warn("failed to send message to stream", zap.Error(err))
			return status.Error(codes.Internal, "failed to send message stream")
		}
	}
	return nil
}

// member returns the caller's id after checking it belongs to groupID.
func (s *server) member(ctx context.Context, groupID string) (string, error) {
	userID, ok := interceptors.UserID(ctx)
	if !ok {
		return "", status.Error(codes.Internal, "failed to get user id from context")
	}
	if strings.TrimSpace(groupID) == "" {
		return "", status.Error(codes.InvalidArgument, "groupId is required")
	}

	ok, err := s.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		s.log.Error("failed to check membership", zap.String("group_id", groupID), zap.Error(err))
		return "", status.Error(codes.Internal, "failed to check membership")
	}
	if !ok {
		return "", status.Error(codes.PermissionDenied, "not a member of this group")
	}
	return userID, nil
}

func (s *server) messageMember(ctx context.Context, messageID string) (string, error) {
	if strings.TrimSpace(messageID) == "" {
		return "", status.Error(codes.InvalidArgument, "messageId is required")
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return "", s.toStatus(err)
	}
	return s.member(ctx, msg.GroupID)
}

func (s *server) toStatus(err error) error {
	switch {
	case errors.Is(err, message.ErrValidation),
		errors.Is(err, message.ErrInvalidTransition),
		errors.Is(err, message.ErrInvalidOption):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, message.ErrNotFound), errors.Is(err, auth.ErrUserNotFound):
		return status.Error(codes.NotFound, err.Error())
	}
	s.log.Error("request failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

func decode(req *structpb.Struct, dst any) error {
	data, err := json.Marshal(req.AsMap())
	if err == nil {
		err = json.Unmarshal(data, dst)
	}
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}
