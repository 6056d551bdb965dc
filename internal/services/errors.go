package services

import (
	"errors"

	"inverapp/internal/authz"
	"inverapp/internal/repositories"
)

var (
	ErrNotFound   = repositories.ErrNotFound
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

// Actor: пользователь, от имени которого выполняется операция (из JWT).
type Actor struct {
	UserID   int64
	UserType string
}

func (a Actor) IsAdmin() bool { return authz.IsAdmin(a.UserType) }
