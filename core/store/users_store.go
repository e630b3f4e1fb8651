package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Salt         string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type UsersStore interface {
	Create(ctx context.Context, user *User) (int64, error)
	Get(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// ExistsUsernameOrEmail reports which of the two identifiers are taken.
	ExistsUsernameOrEmail(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error)
	UpdatePassword(ctx context.Context, id int64, hash, salt string) error
	UpdateEmail(ctx context.Context, id int64, email string) error
}

type usersStore struct {
	db DBTX
}

func NewUsersStore(db DBTX) UsersStore {
	return &usersStore{db: db}
}

const userColumns = `id, username, email, password_hash, salt, role, created_at, updated_at`

func (s *usersStore) Create(ctx context.Context, user *User) (int64, error) {
	now := time.Now().UTC()
	if strings.TrimSpace(user.Role) == "" {
		user.Role = "user"
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users(username, email, password_hash, salt, role, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		user.Username, user.Email, user.PasswordHash, user.Salt, user.Role, now, now).Scan(&user.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return user.ID, nil
}

func (s *usersStore) Get(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

func (s *usersStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	return scanUser(row)
}

func (s *usersStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	return scanUser(row)
}

func (s *usersStore) ExistsUsernameOrEmail(ctx context.Context, username, email string) (bool, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, email FROM users WHERE username=$1 OR email=$2`, username, email)
	if err != nil {
		return false, false, err
	}
	defer rows.Close()
	var usernameTaken, emailTaken bool
	for rows.Next() {
		var u, e string
		if err := rows.Scan(&u, &e); err != nil {
			return false, false, err
		}
		if u == username {
			usernameTaken = true
		}
		if e == email {
			emailTaken = true
		}
	}
	return usernameTaken, emailTaken, rows.Err()
}

func (s *usersStore) UpdatePassword(ctx context.Context, id int64, hash, salt string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1, salt=$2, updated_at=$3 WHERE id=$4`,
		hash, salt, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateEmail exists for account maintenance; incident and response rows keep
// the address they were written with.
func (s *usersStore) UpdateEmail(ctx context.Context, id int64, email string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET email=$1, updated_at=$2 WHERE id=$3`,
		email, time.Now().UTC(), id)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Salt, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
