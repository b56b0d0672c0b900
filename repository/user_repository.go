package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/pronobkarmoker/gRPC-microservice/models"
)

const userColumns = `id, name, email, role, created_at, updated_at`

// UserRepository is the SQLite-backed record store. The id column is
// AUTOINCREMENT, so deleted ids are never handed out again. Uniqueness is
// enforced on email_key, which holds models.NormalizeEmail(email).
type UserRepository struct {
	db  *sql.DB
	mu  sync.Mutex // serializes mutations
	now func() time.Time
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*models.User, error) {
	var (
		u                models.User
		role             string
		created, updated int64
	)
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &role, &created, &updated); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.CreatedAt = time.UnixMilli(created).UTC()
	u.UpdatedAt = time.UnixMilli(updated).UTC()
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// GetByEmail matches case-insensitively through email_key.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email_key = ?`, models.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// Create inserts a new user and returns it with its generated id and timestamps.
// Role defaults to models.DefaultRole.
func (r *UserRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	role := u.Role
	if role == "" {
		role = models.DefaultRole
	}
	ts := toMillis(r.now())
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, email, email_key, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.Name, u.Email, models.NormalizeEmail(u.Email), string(role), ts.UnixMilli(), ts.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.User{ID: id, Name: u.Name, Email: u.Email, Role: role, CreatedAt: ts, UpdatedAt: ts}, nil
}

// Update applies a partial update inside a transaction.
func (r *UserRepository) Update(ctx context.Context, id int64, upd models.UserUpdate) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	u, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	upd.Apply(u)
	u.UpdatedAt = stampAfter(u.UpdatedAt, r.now())

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, email_key = ?, role = ?, updated_at = ? WHERE id = ?`,
		u.Name, u.Email, models.NormalizeEmail(u.Email), string(u.Role), u.UpdatedAt.UnixMilli(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of the search-filtered users ordered by id, which is
// insertion order, plus the filtered total.
func (r *UserRepository) List(ctx context.Context, filter models.ListFilter) ([]models.User, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	where, args := searchClause(filter.Search)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	pageArgs := append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users`+where+` ORDER BY id LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// searchClause builds the substring filter over name, email and role. fold()
// is installed by the db package and lowercases like strings.ToLower.
func searchClause(search string) (string, []any) {
	if search == "" {
		return "", nil
	}
	q := strings.ToLower(search)
	return ` WHERE instr(fold(name), ?) > 0 OR instr(fold(email), ?) > 0 OR instr(fold(role), ?) > 0`,
		[]any{q, q, q}
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
