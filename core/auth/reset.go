package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrResetTokenInvalid = errors.New("reset token invalid")
	ErrResetTokenExpired = errors.New("reset token expired")
)

const resetIssuer = "incident-desk"

// ResetTokenIssuer signs password reset tokens. The signature only proves
// the token came from us; single use and revocation are tracked in the
// password_reset_tokens table keyed by the jti claim.
type ResetTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type ResetClaims struct {
	JTI       string
	UserID    int64
	ExpiresAt time.Time
}

func NewResetTokenIssuer(secret string, ttl time.Duration) (*ResetTokenIssuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("reset signing secret must be at least 16 bytes")
	}
	return &ResetTokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (i *ResetTokenIssuer) Issue(userID int64) (string, *ResetClaims, error) {
	now := i.now().UTC()
	claims := &ResetClaims{
		JTI:       uuid.Must(uuid.NewV4()).String(),
		UserID:    userID,
		ExpiresAt: now.Add(i.ttl).Truncate(time.Second),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        claims.JTI,
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    resetIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign reset token: %w", err)
	}
	return signed, claims, nil
}

func (i *ResetTokenIssuer) Parse(raw string) (*ResetClaims, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &rc, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(resetIssuer),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrResetTokenExpired
		}
		return nil, ErrResetTokenInvalid
	}
	userID, err := strconv.ParseInt(rc.Subject, 10, 64)
	if err != nil || userID <= 0 || rc.ID == "" {
		return nil, ErrResetTokenInvalid
	}
	return &ResetClaims{JTI: rc.ID, UserID: userID, ExpiresAt: rc.ExpiresAt.Time.UTC()}, nil
}
