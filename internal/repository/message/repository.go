package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrMessageNotFound = errors.New("message not found")
)

type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	GetByID(ctx context.Context, id string) (models.Message, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.Message, error)
	// AdvanceStatus moves the message to target if that is forward of its
	// current status and returns the stored message either way. The bool
	// reports whether this call moved it.
	AdvanceStatus(ctx context.Context, id string, target models.Status) (models.Message, bool, error)
	// UpdatePoll applies fn to the message's poll as one atomic
	// read-modify-write of that message.
	UpdatePoll(ctx context.Context, id string, fn func(*models.Poll) error) (models.Message, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) MessageRepository {
	return &postgresRepository{db: db}
}

const messageColumns = `id, group_id, sender_id, sender_name, sender_email, content,
	attachment_url, attachment_kind, poll, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (models.Message, error) {
	var (
		msg            models.Message
		attachmentURL  *string
		attachmentKind *string
		poll           *models.Poll
		rank           int
	)
	err := row.Scan(&msg.ID, &msg.GroupID, &msg.SenderID, &msg.SenderName, &msg.SenderEmail, &msg.Content,
		&attachmentURL, &attachmentKind, &poll, &rank, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return models.Message{}, err
	}
	if attachmentURL != nil {
		msg.Attachment = &models.Attachment{URL: *attachmentURL}
		if attachmentKind != nil {
			msg.Attachment.Kind = models.AttachmentKind(*attachmentKind)
		}
	}
	msg.Poll = poll
	if msg.Status, err = models.StatusFromRank(rank); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (r *postgresRepository) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	var attachmentURL, attachmentKind *string
	if msg.Attachment != nil {
		kind := string(msg.Attachment.Kind)
		attachmentURL, attachmentKind = &msg.Attachment.URL, &kind
	}

	query := `
		INSERT INTO messages (group_id, sender_id, sender_name, sender_email, content,
			attachment_url, attachment_kind, poll, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + messageColumns

	created, err := scanMessage(r.db.QueryRow(ctx, query,
		msg.GroupID, msg.SenderID, msg.SenderName, msg.SenderEmail, msg.Content,
		attachmentURL, attachmentKind, msg.Poll, models.StatusSent.Rank()))
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return created, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (models.Message, error) {
	query := "SELECT " + messageColumns + " FROM messages WHERE id = $1"
	msg, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

func (r *postgresRepository) ListByGroup(ctx context.Context, groupID string) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE group_id = $1
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return messages, nil
}

// AdvanceStatus only matches rows still behind target, so under concurrent
// callers exactly one sees the row change and none can move it backwards.
func (r *postgresRepository) AdvanceStatus(ctx context.Context, id string, target models.Status) (models.Message, bool, error) {
	query := `
		UPDATE messages
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status < $2
		RETURNING ` + messageColumns

	msg, err := scanMessage(r.db.QueryRow(ctx, query, id, target.Rank()))
	if err == nil {
		return msg, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Message{}, false, fmt.Errorf("failed to update message status: %w", err)
	}

	// Already at or past target, or missing.
	msg, err = r.GetByID(ctx, id)
	if err != nil {
		return models.Message{}, false, err
	}
	return msg, false, nil
}

func (r *postgresRepository) UpdatePoll(ctx context.Context, id string, fn func(*models.Poll) error) (models.Message, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var poll *models.Poll
	err = tx.QueryRow(ctx, "SELECT poll FROM messages WHERE id = $1 FOR UPDATE", id).Scan(&poll)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, fmt.Errorf("failed to lock message: %w", err)
	}
	if poll == nil {
		return models.Message{}, models.ErrNoPoll
	}

	if err := fn(poll); err != nil {
		return models.Message{}, err
	}

	query := "UPDATE messages SET poll = $2, updated_at = $3 WHERE id = $1 RETURNING " + messageColumns
	msg, err := scanMessage(tx.QueryRow(ctx, query, id, poll, time.Now().UTC()))
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to update poll: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Message{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return msg, nil
}
