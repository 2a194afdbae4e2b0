package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sea021/promptshop-go/internal/domain"
)

const userColumns = `id, username, email, password_hash, role, created_at, updated_at`

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUserErr(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUserErr(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users(id, username, email, password_hash, role)
		 VALUES($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role))
	if isUniqueViolation(err) {
		return fmt.Errorf("username or email taken: %w", ErrDuplicate)
	}
	return err
}

// UpdateUser overwrites the mutable fields; an empty PasswordHash keeps the
// stored one.
func (s *Store) UpdateUser(ctx context.Context, u domain.User) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET username=$2, email=$3, role=$4,
		        password_hash=COALESCE(NULLIF($5, ''), password_hash),
		        updated_at=now()
		 WHERE id=$1`,
		u.ID, u.Username, u.Email, string(u.Role), u.PasswordHash)
	if isUniqueViolation(err) {
		return fmt.Errorf("username or email taken: %w", ErrDuplicate)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", u.ID, ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

func scanUserErr(row pgx.Row) (*domain.User, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}
