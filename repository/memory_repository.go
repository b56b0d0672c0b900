package repository

import (
	"context"
	"sync"
	"time"

	"github.com/pronobkarmoker/gRPC-microservice/models"
)

// MemoryUserRepository is the default record store. Records are kept in a map
// keyed by id with a separate slice holding insertion order for listing.
// Readers share the lock; every mutation holds it exclusively.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[int64]*models.User
	order   []int64
	byEmail map[string]int64 // normalized email -> id
	nextID  int64
	now     func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[int64]*models.User),
		byEmail: make(map[string]int64),
		nextID:  1,
		now:     time.Now,
	}
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// GetByEmail matches case-insensitively.
func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	cp := *r.users[id]
	return &cp, nil
}

// Create assigns the next id and both timestamps, then appends the record.
func (r *MemoryUserRepository) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := models.NormalizeEmail(u.Email)
	if _, taken := r.byEmail[key]; taken {
		return nil, ErrEmailExists
	}

	ts := toMillis(r.now())
	rec := &models.User{
		ID:        r.nextID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if rec.Role == "" {
		rec.Role = models.DefaultRole
	}
	r.nextID++

	r.users[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	r.byEmail[key] = rec.ID

	cp := *rec
	return &cp, nil
}

// Update overwrites the supplied fields in place and refreshes UpdatedAt.
func (r *MemoryUserRepository) Update(_ context.Context, id int64, upd models.UserUpdate) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}

	oldKey := models.NormalizeEmail(rec.Email)
	newKey := oldKey
	if upd.Email != nil {
		newKey = models.NormalizeEmail(*upd.Email)
		if owner, taken := r.byEmail[newKey]; taken && owner != id {
			return nil, ErrEmailExists
		}
	}

	upd.Apply(rec)
	rec.UpdatedAt = stampAfter(rec.UpdatedAt, r.now())

	if newKey != oldKey {
		delete(r.byEmail, oldKey)
		r.byEmail[newKey] = id
	}

	cp := *rec
	return &cp, nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	delete(r.byEmail, models.NormalizeEmail(rec.Email))
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// List filters in insertion order, then cuts the [Offset, Offset+Limit) window.
// The second result is the filtered total. Limit <= 0 returns every match.
func (r *MemoryUserRepository) List(_ context.Context, filter models.ListFilter) ([]models.User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.User{}
	total := 0
	for _, id := range r.order {
		u := r.users[id]
		if !filter.Matches(u) {
			continue
		}
		if total >= filter.Offset && (filter.Limit <= 0 || len(out) < filter.Limit) {
			out = append(out, *u)
		}
		total++
	}
	return out, total, nil
}

func (r *MemoryUserRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), nil
}

// toMillis drops precision below the wire resolution so stored and
// transmitted timestamps compare equal.
func toMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// stampAfter returns now at millisecond resolution, bumped past prev when the
// clock has not advanced. Update timestamps therefore always move forward.
func stampAfter(prev, now time.Time) time.Time {
	ts := toMillis(now)
	if !ts.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return ts
}
