// Package jwt issues and verifies the HS256 bearer tokens that carry the
// caller's user id and role.
package jwt

import (
	"errors"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"servicecenter/internal/pkg/clock"
)

const defaultIssuer = "servicecenter"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwtlib.RegisteredClaims
}

type Option func(*Service)

// WithClock replaces the wall clock used for issuing and expiry checks.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithIssuer(iss string) Option {
	return func(s *Service) { s.issuer = iss }
}

type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	clock  clock.Clock
}

func New(secret string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: defaultIssuer,
		clock:  clock.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) GenerateToken(userID int64, role string) (string, error) {
	issued := s.clock.Now()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwtlib.NewNumericDate(issued),
			ExpiresAt: jwtlib.NewNumericDate(issued.Add(s.ttl)),
		},
	})
	return token.SignedString(s.secret)
}

func (s *Service) ValidateToken(raw string) (*Claims, error) {
	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(s.issuer),
		jwtlib.WithTimeFunc(s.clock.Now),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(raw, claims, s.key); err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) key(*jwtlib.Token) (any, error) { return s.secret, nil }
