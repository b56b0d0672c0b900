package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/pronobkarmoker/gRPC-microservice/models"
)

// Seed inserts users in order. Records whose email is already present are
// skipped, so seeding a shared in-memory database twice is harmless.
// It returns the number of records inserted.
func Seed(ctx context.Context, repo UserRepositoryI, users []models.User) (int, error) {
	n := 0
	for i := range users {
		if _, err := repo.Create(ctx, &users[i]); err != nil {
			if errors.Is(err, ErrEmailExists) {
				continue
			}
			return n, fmt.Errorf("seed %s: %w", users[i].Email, err)
		}
		n++
	}
	return n, nil
}
