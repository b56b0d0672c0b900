package repository

import (
	"context"
	"errors"

	"github.com/pronobkarmoker/gRPC-microservice/models"
)

var (
	// ErrNotFound is returned by mutations that target a missing id.
	ErrNotFound = errors.New("user not found")
	// ErrEmailExists is returned when an email is already held by another record.
	ErrEmailExists = errors.New("email already exists")
)

// UserRepositoryI is the record store: the authoritative set of user records
// and the id counter. Lookups return (nil, nil) on a miss. Every mutation runs
// its uniqueness check and its write in a single critical section.
type UserRepositoryI interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u *models.User) (*models.User, error)
	Update(ctx context.Context, id int64, upd models.UserUpdate) (*models.User, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter models.ListFilter) ([]models.User, int, error)
	Count(ctx context.Context) (int, error)
}

var (
	_ UserRepositoryI = (*UserRepository)(nil)
	_ UserRepositoryI = (*MemoryUserRepository)(nil)
)
