package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	RoleAdmin = "admin"
	issuer    = "clinical-search-api"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token revoked or expired")
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed admin token.
type IssuedToken struct {
	Token     string    `json:"access_token"`
	ID        string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenStore remembers issued token ids so they can be revoked before expiry.
type TokenStore interface {
	Remember(ctx context.Context, jti, subject string, ttl time.Duration) error
	Exists(ctx context.Context, jti string) (bool, error)
	Forget(ctx context.Context, jti string) error
}

// TokenIssuer signs and validates HS256 admin tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	store  TokenStore
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration, store TokenStore) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("ADMIN_SECRET must be configured and at least 32 characters")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, store: store, now: time.Now}, nil
}

func (i *TokenIssuer) Issue(ctx context.Context, subject string) (*IssuedToken, error) {
	now := i.now()
	jti := uuid.NewString()
	exp := now.Add(i.ttl)

	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, err
	}

	if i.store != nil {
		if err := i.store.Remember(ctx, jti, subject, i.ttl); err != nil {
			return nil, fmt.Errorf("store token id: %w", err)
		}
	}
	return &IssuedToken{Token: signed, ID: jti, ExpiresAt: exp}, nil
}

// Validate parses the token and checks signature, expiry, role and revocation.
func (i *TokenIssuer) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != RoleAdmin {
		return nil, ErrInvalidToken
	}

	if i.store != nil {
		ok, err := i.store.Exists(ctx, claims.ID)
		if err != nil || !ok {
			return nil, ErrRevoked
		}
	}
	return claims, nil
}

func (i *TokenIssuer) Revoke(ctx context.Context, jti string) error {
	if i.store == nil {
		return nil
	}
	return i.store.Forget(ctx, jti)
}

// RedisTokenStore keeps token ids under admin:<jti> until they expire.
type RedisTokenStore struct {
	rdb redis.UniversalClient
}

func NewRedisTokenStore(rdb redis.UniversalClient) *RedisTokenStore {
	return &RedisTokenStore{rdb: rdb}
}

func (s *RedisTokenStore) Remember(ctx context.Context, jti, subject string, ttl time.Duration) error {
	return s.rdb.Set(ctx, "admin:"+jti, subject, ttl).Err()
}

func (s *RedisTokenStore) Exists(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, "admin:"+jti).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisTokenStore) Forget(ctx context.Context, jti string) error {
	return s.rdb.Del(ctx, "admin:"+jti).Err()
}
