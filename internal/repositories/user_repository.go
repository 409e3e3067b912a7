package repositories

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pagepress/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertByEmail creates the user on first sign-in and refreshes the
// profile on later ones. Emails are stored lower-cased.
func (r *UserRepository) UpsertByEmail(ctx context.Context, email, name, image string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, name, image)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (email) DO UPDATE
		   SET name = EXCLUDED.name,
		       image = EXCLUDED.image,
		       updated_at = now()
		RETURNING id, email, name, image, created_at, updated_at
	`, uuid.NewString(), normalizeEmail(email), name, image).Scan(
		&u.ID, &u.Email, &u.Name, &u.Image, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(ctx, `
		SELECT id, email, name, image, created_at, updated_at
		FROM users
		WHERE email=$1
	`, normalizeEmail(email)).Scan(
		&u.ID, &u.Email, &u.Name, &u.Image, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
