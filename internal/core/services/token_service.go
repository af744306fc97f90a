package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims embeds the session info in the signed token, so a monolith can
// resolve a session without a round trip in the common case.
type Claims struct {
	Session domain.SessionInfo `json:"session"`
	jwt.RegisteredClaims
}

// TokenService validates session tokens and resolves their session info.
// The signed claims are the source of truth; redis carries per-token
// overrides (an anonymous user renaming themselves) that outlive nothing but
// the session TTL.
type TokenService struct {
	jwtSecret  []byte
	sessionTTL time.Duration
	redis      *redis.Client
}

var _ ports.TokenStore = (*TokenService)(nil)

func NewTokenService(jwtSecret string, sessionTTL time.Duration, redisClient *redis.Client) *TokenService {
	return &TokenService{
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: sessionTTL,
		redis:      redisClient,
	}
}

// GenerateToken issues a signed token for the session.
func (s *TokenService) GenerateToken(session domain.SessionInfo) (string, error) {
	claims := &Claims{
		Session: session,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *TokenService) parseClaims(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

func (s *TokenService) Validate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	_, err := s.parseClaims(token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrExpiredToken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "session:" + hex.EncodeToString(sum[:])
}

func (s *TokenService) GetSessionInfo(ctx context.Context, token string) (*domain.SessionInfo, error) {
	claims, err := s.parseClaims(token)
	if err != nil {
		return nil, err
	}
	if s.redis != nil {
		data, err := s.redis.Get(ctx, sessionKey(token)).Bytes()
		if err == nil {
			var session domain.SessionInfo
			if err := json.Unmarshal(data, &session); err == nil {
				return &session, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to read session override: %w", err)
		}
	}
	session := claims.Session
	return &session, nil
}

func (s *TokenService) SetSessionInfo(ctx context.Context, token string, session *domain.SessionInfo) error {
	if _, err := s.parseClaims(token); err != nil {
		return err
	}
	if s.redis == nil {
		return nil
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(token), data, s.sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to store session override: %w", err)
	}
	return nil
}
