package user

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
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user with this email already exists")
)

type UserRepository interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.User, error)
	MarkVerified(ctx context.Context, id string) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) UserRepository {
	return &postgresRepository{db: db}
}

const userColumns = "id, full_name, email, password_hash, enrollment, course, semester, college, otp, is_verified"

func scanUser(row interface{ Scan(dest ...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Enrollment, &u.Course,
		&u.Semester, &u.College, &u.OTP, &u.Verified)
	return u, err
}

func (r *postgresRepository) Create(ctx context.Context, u models.User) (models.User, error) {
	query := `
		INSERT INTO users (full_name, email, password_hash, enrollment, course, semester, college, otp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query, u.FullName, u.Email, u.PasswordHash, u.Enrollment, u.Course,
		u.Semester, u.College, u.OTP).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.User{}, ErrUserAlreadyExists
		}
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}

	return u, nil
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE email = $1"

	u, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	return u, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = $1"

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("failed to get user by id: %w", err)
	}

	return u, nil
}

func (r *postgresRepository) GetByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = ANY($1)"
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *postgresRepository) MarkVerified(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, "UPDATE users SET is_verified = TRUE, otp = '' WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to verify user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
