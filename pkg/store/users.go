package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oceanlog/oceanlog/pkg/models"
)

// UserStore reads user records so event authorship can be defaulted from the
// caller's credentials.
type UserStore struct {
	s *Store
}

func NewUserStore(s *Store) *UserStore {
	return &UserStore{s: s}
}

// GetUser fetches one user; (nil, nil) when no row exists.
func (us *UserStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	q := us.s.rebind(`SELECT id, username FROM users WHERE id = ?`)
	var u models.User
	err := us.s.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

// Insert writes a user row. Exposed for seeding and tests.
func (us *UserStore) Insert(ctx context.Context, u *models.User) error {
	q := us.s.rebind(`INSERT INTO users (id, username) VALUES (?, ?)`)
	if _, err := us.s.db.ExecContext(ctx, q, u.ID, u.Username); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("insert user %s: %w", u.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
