package group

import (
	"context"
	"errors"
	"fmt"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrGroupExists   = errors.New("group with this name already exists for admin")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type GroupRepository interface {
	Create(ctx context.Context, name, adminID string) (models.Group, error)
	GetByID(ctx context.Context, id string) (models.Group, error)
	// AddMember reports whether the user was newly added.
	AddMember(ctx context.Context, groupID, userID string) (bool, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	ListByMember(ctx context.Context, userID string) ([]models.Group, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) GroupRepository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, name, adminID string) (models.Group, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.Group{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	g := models.Group{Name: name, AdminID: adminID, MemberIDs: []string{adminID}}
	createGroupQuery := "INSERT INTO groups (name, admin_id) VALUES ($1, $2) RETURNING id, created_at"
	err = tx.QueryRow(ctx, createGroupQuery, name, adminID).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.Group{}, ErrGroupExists
		}
		return models.Group{}, fmt.Errorf("failed to create group: %w", err)
	}

	addMemberQuery := "INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)"
	if _, err = tx.Exec(ctx, addMemberQuery, g.ID, adminID); err != nil {
		return models.Group{}, fmt.Errorf("failed to add admin %s to group: %w", adminID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Group{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return g, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (models.Group, error) {
	query := `
		SELECT g.id, g.name, g.admin_id, g.created_at,
			COALESCE(array_agg(m.user_id ORDER BY m.joined_at) FILTER (WHERE m.user_id IS NOT NULL), '{}')
		FROM groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		WHERE g.id = $1
		GROUP BY g.id
	`
	var g models.Group
	err := r.db.QueryRow(ctx, query, id).Scan(&g.ID, &g.Name, &g.AdminID, &g.CreatedAt, &g.MemberIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Group{}, ErrGroupNotFound
		}
		return models.Group{}, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

func (r *postgresRepository) AddMember(ctx context.Context, groupID, userID string) (bool, error) {
	query := "INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING"
	tag, err := r.db.Exec(ctx, query, groupID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return false, ErrGroupNotFound
		}
		return false, fmt.Errorf("failed to add member %s to group: %w", userID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *postgresRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	query := "SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)"
	var isMember bool
	err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&isMember)
	if err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	return isMember, nil
}

func (r *postgresRepository) ListByMember(ctx context.Context, userID string) ([]models.Group, error) {
	query := `
		SELECT g.id, g.name, g.admin_id, g.created_at, array_agg(all_m.user_id ORDER BY all_m.joined_at)
		FROM groups g
		JOIN group_members me ON me.group_id = g.id AND me.user_id = $1
		JOIN group_members all_m ON all_m.group_id = g.id
		GROUP BY g.id
		ORDER BY g.created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups by member: %w", err)
	}
	defer rows.Close()

	groups := make([]models.Group, 0)
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.AdminID, &g.CreatedAt, &g.MemberIDs); err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		groups = append(groups, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group rows: %w", err)
	}

	return groups, nil
}
