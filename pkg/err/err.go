package errprocess

import (
	"errors"

	"direct_chat_service/pkg/logger"
)

// Domain errors, matched with errors.Is
var (
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrDuplicateRegistration = errors.New("email already registered")
	ErrInvalidInput          = errors.New("invalid input")
	ErrNoContactSelected     = errors.New("no contact selected")
	ErrInvalidContact        = errors.New("invalid contact")
	ErrBlankMessage          = errors.New("message is blank")
	ErrNotFound              = errors.New("not found")
	ErrInvalidRow            = errors.New("invalid row")
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}
