package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/pronobkarmoker/gRPC-microservice/internal/testutil"
	"github.com/pronobkarmoker/gRPC-microservice/models"
)

// backends runs fn once per store implementation.
func backends(t *testing.T, fn func(t *testing.T, repo UserRepositoryI)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryUserRepository())
	})
	t.Run("sqlite", func(t *testing.T) {
		name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
		fn(t, NewUserRepository(testutil.OpenInMemoryDB(t, name)))
	})
}

func strPtr(s string) *string { return &s }

func rolePtr(r models.Role) *models.Role { return &r }

func TestUserRepository_CRUD(t *testing.T) {
	backends(t, func(t *testing.T, repo UserRepositoryI) {
		ctx := context.Background()

		u, err := repo.Create(ctx, &models.User{Name: "Alice", Email: "alice@example.com"})
		require.NoError(t, err)
		assert.NotZero(t, u.ID)
		assert.Equal(t, models.RoleUser, u.Role, "role defaults to user")
		assert.Equal(t, u.CreatedAt, u.UpdatedAt)

		g, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, g)
		assert.Equal(t, "Alice", g.Name)

		byEmail, err := repo.GetByEmail(ctx, "ALICE@example.com")
		require.NoError(t, err)
		require.NotNil(t, byEmail, "email lookup is case-insensitive")
		assert.Equal(t, u.ID, byEmail.ID)

		missing, err := repo.GetByID(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, missing)

		updated, err := repo.Update(ctx, u.ID, models.UserUpdate{Role: rolePtr(models.RoleModerator)})
		require.NoError(t, err)
		assert.Equal(t, models.RoleModerator, updated.Role)
		assert.Equal(t, "Alice", updated.Name)
		assert.Equal(t, "alice@example.com", updated.Email)
		assert.True(t, u.CreatedAt.Equal(updated.CreatedAt))
		assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

		require.NoError(t, repo.Delete(ctx, u.ID))
		gone, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)
	})
}

func TestUserRepository_IDsNeverReused(t *testing.T) {
	backends(t, func(t *testing.T, repo UserRepositoryI) {
		ctx := context.Background()
		var last int64
		for i, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
			u, err := repo.Create(ctx, &models.User{Name: "n", Email: email})
			require.NoError(t, err)
			assert.Greater(t, u.ID, last, "create %d", i)
			last = u.ID
		}
		require.NoError(t, repo.Delete(ctx, last))

		u, err := repo.Create(ctx, &models.User{Name: "n", Email: "d@x.com"})
		require.NoError(t, err)
		assert.Greater(t, u.ID, last, "deleted id must not be reused")
	})
}

func TestUserRepository_EmailUniqueness(t *testing.T) {
	backends(t, func(t *testing.T, repo UserRepositoryI) {
		ctx := context.Background()
		a, err := repo.Create(ctx, &models.User{Name: "A", Email: "a@x.com"})
		require.NoError(t, err)
		b, err := repo.Create(ctx, &models.User{Name: "B", Email: "b@x.com"})
		require.NoError(t, err)

		_, err = repo.Create(ctx, &models.User{Name: "C", Email: "A@X.com"})
		assert.ErrorIs(t, err, ErrEmailExists)

		_, err = repo.Update(ctx, b.ID, models.UserUpdate{Email: strPtr("a@x.com")})
		assert.ErrorIs(t, err, ErrEmailExists)

		after, err := repo.GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "b@x.com", after.Email, "failed update leaves the record unchanged")

		// Re-casing one's own address is not a collision.
		same, err := repo.Update(ctx, a.ID, models.UserUpdate{Email: strPtr("A@x.com")})
		require.NoError(t, err)
		assert.Equal(t, "A@x.com", same.Email)

		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestUserRepository_UnicodeEmailFolding(t *testing.T) {
	backends(t, func(t *testing.T, repo UserRepositoryI) {
		ctx := context.Background()
		u, err := repo.Create(ctx, &models.User{Name: "Élise Martin", Email: "Élise@x.com"})
		require.NoError(t, err)

		_, err = repo.Create(ctx, &models.User{Name: "Other", Email: "élise@x.com"})
		assert.ErrorIs(t, err, ErrEmailExists, "non-ASCII case differences collide")

		got, err := repo.GetByEmail(ctx, "ÉLISE@X.COM")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, u.ID, got.ID)

		found, total, err := repo.List(ctx, models.ListFilter{Search: "élise"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, found, 1)
		assert.Equal(t, "Élise Martin", found[0].Name)
	})
}

func TestUserRepository_ConcurrentCreateSameEmail(t *testing.T) {
	backends(t, func(t *testing.T, repo UserRepositoryI) {
		ctx := context.Background()
		const workers = 16

		var created, rejected atomic.Int32
		var g errgroup.Group
		for i := 0; i < workers; i++ {
			i := i
			g.Go(func() error {
				email := "race@example.com"
				if i%2 == 1 {
					email = "RACE@example.com"
				}
				_, err := repo.Create(ctx, &models.User{Name: fmt.Sprintf("racer %d", i), Email: email})
				switch {
				case err == nil:
					created.Add(1)
				case errors.Is(err, ErrEmailExists):
					rejected.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, int32(1), created.Load())
		assert.Equal(t, int32(workers-1), rejected.Load())
		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestUserRepository_ConcurrentUpdateToSameEmail(t *testing.T) {
	backends(t, func(t *testing.T, repo UserRepositoryI) {
		ctx := context.Background()
		const workers = 8

		ids := make([]int64, workers)
		for i := range ids {
			u, err := repo.Create(ctx, &models.User{Name: fmt.Sprintf("user %d", i), Email: fmt.Sprintf("u%d@example.com", i)})
			require.NoError(t, err)
			ids[i] = u.ID
		}

		var updated atomic.Int32
		var g errgroup.Group
		for _, id := range ids {
			id := id
			g.Go(func() error {
				_, err := repo.Update(ctx, id, models.UserUpdate{Email: strPtr("taken@example.com")})
				switch {
				case err == nil:
					updated.Add(1)
				case errors.Is(err, ErrEmailExists):
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), updated.Load())

		owners, total, err := repo.List(ctx, models.ListFilter{Search: "taken@"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Len(t, owners, 1)
	})
}

func TestUserRepository_MissingIDs(t *testing.T) {
	backends(t, func(t *testing.T, repo UserRepositoryI) {
		ctx := context.Background()
		_, err := repo.Update(ctx, 42, models.UserUpdate{Name: strPtr("x")})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, 42), ErrNotFound)
	})
}

func TestUserRepository_ListSearchAndWindow(t *testing.T) {
	backends(t, func(t *testing.T, repo UserRepositoryI) {
		ctx := context.Background()
		n, err := Seed(ctx, repo, models.SampleUsers())
		require.NoError(t, err)
		require.Equal(t, 3, n)

		all, total, err := repo.List(ctx, models.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, all, 3)
		assert.Equal(t, "John Doe", all[0].Name)
		assert.Equal(t, "Bob Johnson", all[2].Name)

		page, total, err := repo.List(ctx, models.ListFilter{Offset: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, page, 1)
		assert.Equal(t, "Jane Smith", page[0].Name)

		found, total, err := repo.List(ctx, models.ListFilter{Search: "MODER"})
		require.NoError(t, err)
		assert.Equal(t, 1, total, "search matches role")
		require.Len(t, found, 1)
		assert.Equal(t, "bob@example.com", found[0].Email)

		found, total, err = repo.List(ctx, models.ListFilter{Search: "john", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 2, total, "John Doe by name, Bob Johnson by name")
		assert.Len(t, found, 2)

		empty, total, err := repo.List(ctx, models.ListFilter{Offset: 50, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Empty(t, empty)
		assert.NotNil(t, empty)
	})
}

func TestSeed_SkipsExisting(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()
	_, err := Seed(ctx, repo, models.SampleUsers())
	require.NoError(t, err)
	n, err := Seed(ctx, repo, models.SampleUsers())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStampAfter(t *testing.T) {
	prev := time.UnixMilli(1_700_000_000_000).UTC()
	assert.Equal(t, prev.Add(time.Millisecond), stampAfter(prev, prev), "same instant is bumped")
	assert.Equal(t, prev.Add(time.Millisecond), stampAfter(prev, prev.Add(-time.Hour)), "clock going back is bumped")
	later := prev.Add(time.Second)
	assert.Equal(t, later, stampAfter(prev, later.Add(300*time.Microsecond)))
}
