package repository

import (
	"context"
	"errors"
	"fmt"

	"direct_chat_service/internal/auth/domain"
	errprocess "direct_chat_service/pkg/err"

	"gorm.io/gorm"
)

// AccountRepository definition auth accounts
type AccountRepository interface {
	AutoMigrate() error
	Create(ctx context.Context, account *domain.Account) error
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository create AccountRepository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// AutoMigrate creates or updates the auth_accounts table
func (r *accountRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Account{})
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errprocess.ErrDuplicateRegistration
	}
	return err
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.first(ctx, "email = ?", domain.NormalizeEmail(email))
}

func (r *accountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *accountRepository) first(ctx context.Context, query string, arg interface{}) (*domain.Account, error) {
	var account domain.Account
	if err := r.db.WithContext(ctx).Where(query, arg).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account: %w", errprocess.ErrNotFound)
		}
		return nil, err
	}
	return &account, nil
}
