package group

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/christmas-fire/squadup/internal/mailer"
	"github.com/christmas-fire/squadup/internal/models"
	"github.com/christmas-fire/squadup/internal/repository/group"
	"github.com/christmas-fire/squadup/internal/repository/user"
	"github.com/christmas-fire/squadup/internal/validation"
	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ErrNameRequired   = errors.New("groupName and adminId are required")
	ErrInviteRequired = errors.New("email and groupId are required")
	ErrInvalidEmail   = errors.New("email is not a valid address")
	ErrAdminNotFound  = errors.New("admin user not found")
	ErrGroupExists    = errors.New("you already created a group with this name")
	ErrGroupNotFound  = errors.New("group not found")
	ErrInvalidInvite  = errors.New("invite expired or invalid")
)

type AcceptStatus string

const (
	AcceptNotRegistered AcceptStatus = "NOT_REGISTERED"
	AcceptAccepted      AcceptStatus = "ACCEPTED"
	AcceptInvalid       AcceptStatus = "INVALID"
)

// TokenIssuer signs login tokens for users who accept an invite.
type TokenIssuer interface {
	IssueToken(userID string) (string, error)
}

type AcceptResult struct {
	Status  AcceptStatus `json:"status"`
	Email   string       `json:"email,omitempty"`
	GroupID string       `json:"groupId,omitempty"`
	Token   string       `json:"token,omitempty"`
	User    *models.User `json:"user,omitempty"`
}

type Summary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MemberCount  int      `json:"memberCount"`
	MemberEmails []string `json:"memberEmails"`
	AdminEmail   string   `json:"adminEmail"`
}

type Details struct {
	GroupName    string    `json:"groupName"`
	AdminEmail   string    `json:"adminEmail"`
	MemberCount  int       `json:"memberCount"`
	MemberEmails []string  `json:"memberEmails"`
	CreatedAt    time.Time `json:"createdAt"`
}

type createInput struct {
	Name    string `validate:"required,max=100"`
	AdminID string `validate:"required"`
}

type inviteInput struct {
	Email   string `validate:"required,email"`
	GroupID string `validate:"required"`
}

type inviteClaims struct {
	Email   string `json:"email"`
	GroupID string `json:"groupId"`
	jwt.RegisteredClaims
}

type GroupService struct {
	groups    group.GroupRepository
	users     user.UserRepository
	mailer    mailer.Mailer
	tokens    TokenIssuer
	secret    string
	inviteTTL time.Duration
	clientURL string
	log       *zap.Logger
}

func NewGroupService(
	groups group.GroupRepository,
	users user.UserRepository,
	m mailer.Mailer,
	tokens TokenIssuer,
	secret string,
	inviteTTL time.Duration,
	clientURL string,
	log *zap.Logger,
) *GroupService {
	return &GroupService{
		groups:    groups,
		users:     users,
		mailer:    m,
		tokens:    tokens,
		secret:    secret,
		inviteTTL: inviteTTL,
		clientURL: strings.TrimRight(clientURL, "/"),
		log:       log.Named("group"),
	}
}

func (s *GroupService) Create(ctx context.Context, name, adminID string) (models.Group, error) {
	name, adminID = strings.TrimSpace(name), strings.TrimSpace(adminID)
	if err := validation.Struct(createInput{Name: name, AdminID: adminID}); err != nil {
		return models.Group{}, ErrNameRequired
	}

	if _, err := s.users.GetByID(ctx, adminID); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return models.Group{}, ErrAdminNotFound
		}
		return models.Group{}, err
	}

	g, err := s.groups.Create(ctx, name, adminID)
	if err != nil {
		if errors.Is(err, group.ErrGroupExists) {
			return models.Group{}, ErrGroupExists
		}
		return models.Group{}, fmt.Errorf("failed to create group: %w", err)
	}

	s.log.Info("group created", zap.String("group_id", g.ID), zap.String("admin_id", adminID))
	return g, nil
}

// Invite mails a signed link that lets email join the group. The link is
// returned as well.
func (s *GroupService) Invite(ctx context.Context, email, groupID string) (string, error) {
	email, groupID = strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(groupID)
	if err := validation.Struct(inviteInput{Email: email, GroupID: groupID}); err != nil {
		if fe, ok := validation.FirstField(err); ok && fe.Tag() == "email" {
			return "", ErrInvalidEmail
		}
		return "", ErrInviteRequired
	}
	if _, err := s.get(ctx, groupID); err != nil {
		return "", err
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, inviteClaims{
		Email:   email,
		GroupID: groupID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.inviteTTL)),
		},
	})
	signed, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign invite: %w", err)
	}

	link := fmt.Sprintf("%s/accept-invite/%s", s.clientURL, signed)
	body := fmt.Sprintf("You are invited to join a group.\nAccept the invitation: %s\nLink valid for %s.", link, s.inviteTTL)
	if err := s.mailer.Send(ctx, email, "Group Invitation", body); err != nil {
		return "", fmt.Errorf("failed to send invite: %w", err)
	}

	return link, nil
}

// AcceptInvite adds the invited user to the group at most once and signs
// them in. Unknown emails get NOT_REGISTERED so the client can route to
// registration.
func (s *GroupService) AcceptInvite(ctx context.Context, tokenString string) (AcceptResult, error) {
	claims := &inviteClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil || !token.Valid || claims.Email == "" || claims.GroupID == "" {
		return AcceptResult{Status: AcceptInvalid}, ErrInvalidInvite
	}

	u, err := s.users.GetByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return AcceptResult{Status: AcceptNotRegistered, Email: claims.Email, GroupID: claims.GroupID}, nil
		}
		return AcceptResult{}, err
	}

	added, err := s.groups.AddMember(ctx, claims.GroupID, u.ID)
	if err != nil {
		if errors.Is(err, group.ErrGroupNotFound) {
			return AcceptResult{}, ErrGroupNotFound
		}
		return AcceptResult{}, fmt.Errorf("failed to add member: %w", err)
	}
	if added {
		s.log.Info("member joined", zap.String("group_id", claims.GroupID), zap.String("user_id", u.ID))
	}

	loginToken, err := s.tokens.IssueToken(u.ID)
	if err != nil {
		return AcceptResult{}, err
	}

	return AcceptResult{Status: AcceptAccepted, GroupID: claims.GroupID, Token: loginToken, User: &u}, nil
}

func (s *GroupService) ListForUser(ctx context.Context, userID string) ([]Summary, error) {
	groups, err := s.groups.ListByMember(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	ids := lo.Uniq(lo.FlatMap(groups, func(g models.Group, _ int) []string {
		return append([]string{g.AdminID}, g.MemberIDs...)
	}))
	emails, err := s.emails(ctx, ids)
	if err != nil {
		return nil, err
	}

	return lo.Map(groups, func(g models.Group, _ int) Summary {
		members := memberEmails(g, emails)
		return Summary{
			ID:           g.ID,
			Name:         g.Name,
			MemberCount:  len(members),
			MemberEmails: members,
			AdminEmail:   emails[g.AdminID],
		}
	}), nil
}

func (s *GroupService) Details(ctx context.Context, groupID string) (Details, error) {
	g, err := s.get(ctx, groupID)
	if err != nil {
		return Details{}, err
	}

	emails, err := s.emails(ctx, lo.Uniq(append([]string{g.AdminID}, g.MemberIDs...)))
	if err != nil {
		return Details{}, err
	}

	members := memberEmails(g, emails)
	return Details{
		GroupName:    g.Name,
		AdminEmail:   emails[g.AdminID],
		MemberCount:  len(members),
		MemberEmails: members,
		CreatedAt:    g.CreatedAt,
	}, nil
}

func (s *GroupService) Get(ctx context.Context, groupID string) (models.Group, error) {
	return s.get(ctx, groupID)
}

func (s *GroupService) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	return s.groups.IsMember(ctx, groupID, userID)
}

// IsMemberEmail resolves email to a user before checking membership.
func (s *GroupService) IsMemberEmail(ctx context.Context, groupID, email string) (bool, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.groups.IsMember(ctx, groupID, u.ID)
}

func (s *GroupService) get(ctx context.Context, groupID string) (models.Group, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, group.ErrGroupNotFound) {
			return models.Group{}, ErrGroupNotFound
		}
		return models.Group{}, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

func (s *GroupService) emails(ctx context.Context, ids []string) (map[string]string, error) {
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve members: %w", err)
	}
	return lo.SliceToMap(users, func(u models.User) (string, string) {
		return u.ID, u.Email
	}), nil
}

func memberEmails(g models.Group, emails map[string]string) []string {
	ids := g.MemberIDs
	if !lo.Contains(ids, g.AdminID) {
		ids = append([]string{g.AdminID}, ids...)
	}
	return lo.FilterMap(ids, func(id string, _ int) (string, bool) {
		email, ok := emails[id]
		return email, ok
	})
}
