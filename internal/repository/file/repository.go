package file

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrFileNotFound = errors.New("file not found")

type FileRepository interface {
	Create(ctx context.Context, f models.File) (models.File, error)
	GetByID(ctx context.Context, id string) (models.File, error)
	// ListByGroup returns newest first.
	ListByGroup(ctx context.Context, groupID string) ([]models.File, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) FileRepository {
	return &postgresRepository{db: db}
}

const fileColumns = "id, group_id, filename, original_name, file_url, mime_type, size, uploaded_by, uploaded_by_email, created_at"

func scanFile(row interface{ Scan(dest ...any) error }) (models.File, error) {
	var f models.File
	err := row.Scan(&f.ID, &f.GroupID, &f.Filename, &f.OriginalName, &f.URL, &f.MimeType, &f.Size,
		&f.UploadedBy, &f.UploadedByEmail, &f.CreatedAt)
	return f, err
}

func (r *postgresRepository) Create(ctx context.Context, f models.File) (models.File, error) {
	query := `
		INSERT INTO files (group_id, filename, original_name, file_url, mime_type, size, uploaded_by, uploaded_by_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + fileColumns
	created, err := scanFile(r.db.QueryRow(ctx, query, f.GroupID, f.Filename, f.OriginalName, f.URL,
		f.MimeType, f.Size, f.UploadedBy, f.UploadedByEmail))
	if err != nil {
		return models.File{}, fmt.Errorf("failed to insert file: %w", err)
	}
	return created, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (models.File, error) {
	f, err := scanFile(r.db.QueryRow(ctx, "SELECT "+fileColumns+" FROM files WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.File{}, ErrFileNotFound
		}
		return models.File{}, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

func (r *postgresRepository) ListByGroup(ctx context.Context, groupID string) ([]models.File, error) {
	query := "SELECT " + fileColumns + " FROM files WHERE group_id = $1 ORDER BY created_at DESC"
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	files := make([]models.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

type memoryRepository struct {
	mu    sync.RWMutex
	files []models.File
}

func NewMemoryRepository() FileRepository {
	return &memoryRepository{}
}

func (r *memoryRepository) Create(_ context.Context, f models.File) (models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f.ID = uuid.NewString()
	f.CreatedAt = time.Now().UTC()
	r.files = append(r.files, f)
	return f, nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (models.File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.files {
		if f.ID == id {
			return f, nil
		}
	}
	return models.File{}, ErrFileNotFound
}

func (r *memoryRepository) ListByGroup(_ context.Context, groupID string) ([]models.File, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	files := make([]models.File, 0)
	for _, f := range r.files {
		if f.GroupID == groupID {
			files = append(files, f)
		}
	}
	slices.Reverse(files)
	return files, nil
}
