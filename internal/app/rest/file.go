package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/christmas-fire/squadup/internal/service/file"
	"github.com/christmas-fire/squadup/internal/service/group"
	"go.uber.org/zap"
)

// multipartMemory bounds the in-memory part of a parsed upload form.
const multipartMemory = 8 << 20

type FileHandler struct {
	service *file.FileService
	log     *zap.Logger
}

func NewFileHandler(service *file.FileService, log *zap.Logger) *FileHandler {
	return &FileHandler{service: service, log: log}
}

type UploadResponse struct {
	Success bool        `json:"success"`
	File    models.File `json:"file"`
}

func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload form")
		return
	}

	in := file.UploadInput{
		GroupID:   r.FormValue("groupId"),
		UserEmail: r.FormValue("userEmail"),
		UserName:  r.FormValue("userName"),
	}
	f, header, err := r.FormFile("file")
	if err == nil {
		defer f.Close()
		in.Body = f
		in.OriginalName = header.Filename
	}

	stored, err := h.service.Upload(r.Context(), in)
	if err != nil {
		h.fail(w, err, "Upload failed")
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{Success: true, File: stored})
}

func (h *FileHandler) ListByGroup(w http.ResponseWriter, r *http.Request) {
	files, err := h.service.ListByGroup(r.Context(), r.PathValue("groupId"))
	if err != nil {
		h.fail(w, err, "Error fetching files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	f, path, err := h.service.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err, "Download failed")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.OriginalName))
	w.Header().Set("Content-Type", f.MimeType)
	http.ServeFile(w, r, path)
}

func (h *FileHandler) fail(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, file.ErrNoFile), errors.Is(err, file.ErrGroupRequired), errors.Is(err, file.ErrInvalidType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, file.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, file.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "Not authorized")
	case errors.Is(err, group.ErrGroupNotFound):
		writeError(w, http.StatusNotFound, "Group not found")
	case errors.Is(err, file.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "File not found")
	case errors.Is(err, file.ErrFileNotOnDisk):
		writeError(w, http.StatusNotFound, "File not found on server")
	default:
		h.log.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
