package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"direct_chat_service/internal/chat/domain"
	errprocess "direct_chat_service/pkg/err"
	"direct_chat_service/pkg/logger"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// ProfileRepository definition profiles table
type ProfileRepository interface {
	// FindAll every profile ordered by name then id
	FindAll(ctx context.Context) ([]domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Insert(ctx context.Context, user *domain.User) error
	UpdateLastOnline(ctx context.Context, id string, at time.Time) error
}

type profileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository create a ProfileRepository
func NewProfileRepository(db *pgxpool.Pool) ProfileRepository {
	return &profileRepository{db: db}
}

const profileColumns = "id, COALESCE(name, ''), email, last_online, COALESCE(profile_image, ''), COALESCE(gender, '')"

func scanProfile(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.LastOnline, &u.ProfileImage, &u.Gender)
	return u, err
}

func (r *profileRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, "SELECT "+profileColumns+" FROM profiles ORDER BY name NULLS LAST, id")
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		if err := u.Validate(); err != nil {
			logger.Log.Warn("skip invalid profile row", zap.Error(err))
			continue
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *profileRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanProfile(r.db.QueryRow(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", id, errprocess.ErrNotFound)
		}
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *profileRepository) Insert(ctx context.Context, user *domain.User) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO profiles(id, name, email, profile_image, gender) VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''))",
		user.ID, user.Name, user.Email, user.ProfileImage, user.Gender)
	return err
}

func (r *profileRepository) UpdateLastOnline(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, "UPDATE profiles SET last_online = $1 WHERE id = $2", at, id)
	return err
}
