package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/christmas-fire/squadup/internal/repository/file"
	"github.com/christmas-fire/squadup/internal/service/message"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ErrNoFile        = errors.New("no file uploaded")
	ErrGroupRequired = errors.New("group ID required")
	ErrNotAuthorized = errors.New("not authorized")
	ErrTooLarge      = errors.New("file too large")
	ErrInvalidType   = errors.New("invalid file type")
	ErrFileNotFound  = errors.New("file not found")
	ErrFileNotOnDisk = errors.New("file not found on server")
)

// URLPrefix is where uploaded files are served from.
const URLPrefix = "/uploads/"

var allowedExtensions = []string{
	".jpeg", ".jpg", ".png", ".gif", ".pdf", ".doc", ".docx", ".txt", ".zip",
	".mp4", ".webm", ".mov",
}

var allowedTypes = []string{
	"image/jpeg", "image/png", "image/gif", "application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/x-ole-storage", "text/plain", "application/zip",
}

// Membership decides whether the uploader may post to the group. Get reports
// a missing group with group.ErrGroupNotFound.
type Membership interface {
	Get(ctx context.Context, groupID string) (models.Group, error)
	IsMemberEmail(ctx context.Context, groupID, email string) (bool, error)
}

type UploadInput struct {
	GroupID      string
	UserEmail    string
	UserName     string
	OriginalName string
	Body         io.Reader
}

type FileService struct {
	files      file.FileRepository
	membership Membership
	publisher  message.EventPublisher
	dir        string
	maxBytes   int64
	log        *zap.Logger
}

func NewFileService(files file.FileRepository, membership Membership, publisher message.EventPublisher, dir string, maxBytes int64, log *zap.Logger) *FileService {
	return &FileService{
		files:      files,
		membership: membership,
		publisher:  publisher,
		dir:        dir,
		maxBytes:   maxBytes,
		log:        log.Named("file"),
	}
}

func (s *FileService) Upload(ctx context.Context, in UploadInput) (models.File, error) {
	if in.Body == nil || in.OriginalName == "" {
		return models.File{}, ErrNoFile
	}
	if strings.TrimSpace(in.GroupID) == "" {
		return models.File{}, ErrGroupRequired
	}

	if _, err := s.membership.Get(ctx, in.GroupID); err != nil {
		return models.File{}, err
	}
	ok, err := s.membership.IsMemberEmail(ctx, in.GroupID, in.UserEmail)
	if err != nil {
		return models.File{}, fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return models.File{}, ErrNotAuthorized
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, s.maxBytes+1))
	if err != nil {
		return models.File{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return models.File{}, ErrTooLarge
	}
	if len(data) == 0 {
		return models.File{}, ErrNoFile
	}

	ext := strings.ToLower(filepath.Ext(in.OriginalName))
	mtype := mimetype.Detect(data)
	if !lo.Contains(allowedExtensions, ext) || !allowedType(mtype) {
		return models.File{}, fmt.Errorf("%w: %s (%s)", ErrInvalidType, ext, mtype.String())
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return models.File{}, fmt.Errorf("failed to create upload dir: %w", err)
	}
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], ext)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return models.File{}, fmt.Errorf("failed to store upload: %w", err)
	}

	uploadedBy := in.UserName
	if uploadedBy == "" {
		uploadedBy = in.UserEmail
	}
	stored, err := s.files.Create(ctx, models.File{
		GroupID:         in.GroupID,
		Filename:        name,
		OriginalName:    filepath.Base(in.OriginalName),
		URL:             URLPrefix + name,
		MimeType:        mtype.String(),
		Size:            int64(len(data)),
		UploadedBy:      uploadedBy,
		UploadedByEmail: in.UserEmail,
	})
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.log.Warn("failed to remove orphaned upload", zap.String("path", path), zap.Error(rmErr))
		}
		return models.File{}, fmt.Errorf("failed to save file metadata: %w", err)
	}

	event := models.AttachmentAdded{GroupID: stored.GroupID, File: stored}
	if err := s.publisher.Publish(ctx, stored.GroupID, event); err != nil {
		s.log.Warn("failed to publish event", zap.String("group_id", stored.GroupID), zap.Error(err))
	}
	return stored, nil
}

func (s *FileService) ListByGroup(ctx context.Context, groupID string) ([]models.File, error) {
	files, err := s.files.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// Open returns the file's metadata and its path on disk.
func (s *FileService) Open(ctx context.Context, id string) (models.File, string, error) {
	f, err := s.files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, file.ErrFileNotFound) {
			return models.File{}, "", ErrFileNotFound
		}
		return models.File{}, "", err
	}

	path := filepath.Join(s.dir, filepath.Base(f.Filename))
	if _, err := os.Stat(path); err != nil {
		return models.File{}, "", ErrFileNotOnDisk
	}
	return f, path, nil
}

// Dir is the directory uploads are written to.
func (s *FileService) Dir() string {
	return s.dir
}

// AttachmentKind maps a stored file's type to the attachment kind used on
// messages.
func AttachmentKind(mimeType string) models.AttachmentKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.AttachmentPhoto
	case strings.HasPrefix(mimeType, "video/"):
		return models.AttachmentVideo
	default:
		return models.AttachmentDocument
	}
}

func allowedType(mtype *mimetype.MIME) bool {
	if strings.HasPrefix(mtype.String(), "video/") {
		return true
	}
	return lo.ContainsBy(allowedTypes, func(t string) bool {
		return mtype.Is(t)
	})
}
