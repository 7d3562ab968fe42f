package rest

import (
	"errors"
	"net/http"

	"github.com/christmas-fire/squadup/internal/service/group"
	"go.uber.org/zap"
)

type GroupHandler struct {
	service *group.GroupService
	log     *zap.Logger
}

func NewGroupHandler(service *group.GroupService, log *zap.Logger) *GroupHandler {
	return &GroupHandler{service: service, log: log}
}

type CreateGroupRequest struct {
	GroupName string `json:"groupName"`
	AdminID   string `json:"adminId"`
}

type InviteRequest struct {
	Email   string `json:"email"`
	GroupID string `json:"groupId"`
}

type InviteResponse struct {
	Message string `json:"message"`
	Link    string `json:"link"`
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	g, err := h.service.Create(r.Context(), req.GroupName, req.AdminID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req InviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	link, err := h.service.Invite(r.Context(), req.Email, req.GroupID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InviteResponse{Message: "Invitation sent successfully", Link: link})
}

func (h *GroupHandler) Accept(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.AcceptInvite(r.Context(), r.PathValue("token"))
	if err != nil {
		if errors.Is(err, group.ErrInvalidInvite) {
			writeJSON(w, http.StatusBadRequest, struct {
				Status  group.AcceptStatus `json:"status"`
				Message string             `json:"message"`
			}{group.AcceptInvalid, "Invite expired or invalid"})
			return
		}
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *GroupHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListForUser(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) Details(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.Details(r.Context(), r.PathValue("groupId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *GroupHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, group.ErrNameRequired), errors.Is(err, group.ErrInviteRequired),
		errors.Is(err, group.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, group.ErrGroupExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, group.ErrAdminNotFound), errors.Is(err, group.ErrGroupNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error("group request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Server error")
	}
}
