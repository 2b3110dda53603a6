package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/pkg/errs"
)

// UserRepository reads platform users and owns their presence columns.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (*domain.User, error)
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error
}

type userRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository create a UserRepository backed by PostgreSQL.
func NewUserRepository(db *pgxpool.Pool) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, first_name, last_name, COALESCE(avatar, ''), COALESCE(role, ''), is_online, last_seen
		 FROM users WHERE id = $1`, userID)

	var user domain.User
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Avatar, &user.Role, &user.IsOnline, &user.LastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("user %s", userID)
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) SetOnline(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, "UPDATE users SET is_online = TRUE WHERE id = $1", userID)
	return err
}

func (r *userRepository) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	_, err := r.db.Exec(ctx, "UPDATE users SET is_online = FALSE, last_seen = $1 WHERE id = $2", lastSeen, userID)
	return err
}
