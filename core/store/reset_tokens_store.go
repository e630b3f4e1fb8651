package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type ResetToken struct {
	JTI       string     `json:"jti"`
	UserID    int64      `json:"user_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type ResetTokensStore interface {
	CreateResetToken(ctx context.Context, tok *ResetToken) error
	GetResetToken(ctx context.Context, jti string) (*ResetToken, error)
	// ConsumeResetToken marks the token used. It returns ErrConflict when the
	// token was already used or has expired, so only one caller can win.
	ConsumeResetToken(ctx context.Context, jti string, now time.Time) error
	DeleteStaleResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type resetTokensStore struct {
	db DBTX
}

func NewResetTokensStore(db DBTX) ResetTokensStore {
	return &resetTokensStore{db: db}
}

func (s *resetTokensStore) CreateResetToken(ctx context.Context, tok *ResetToken) error {
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_reset_tokens(jti, user_id, expires_at, used_at, created_at)
		VALUES($1,$2,$3,$4,$5)`,
		tok.JTI, tok.UserID, tok.ExpiresAt.UTC(), nullableTime(tok.UsedAt), tok.CreatedAt.UTC())
	if IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *resetTokensStore) GetResetToken(ctx context.Context, jti string) (*ResetToken, error) {
	var tok ResetToken
	var used sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT jti, user_id, expires_at, used_at, created_at
		FROM password_reset_tokens WHERE jti=$1`, jti).Scan(&tok.JTI, &tok.UserID, &tok.ExpiresAt, &used, &tok.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	tok.UsedAt = timePtr(used)
	return &tok, nil
}

func (s *resetTokensStore) ConsumeResetToken(ctx context.Context, jti string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE password_reset_tokens SET used_at=$1
		WHERE jti=$2 AND used_at IS NULL AND expires_at>$3`, now.UTC(), jti, now.UTC())
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *resetTokensStore) DeleteStaleResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM password_reset_tokens WHERE expires_at<=$1 OR used_at IS NOT NULL`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
