package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/petermazzocco/go-blog-api/models"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenRevoked   = errors.New("token revoked")
	ErrRefreshExpired = errors.New("token can no longer be refreshed")

	// ErrUserNotFound is what a UserFinder returns, possibly wrapped, for an unknown id.
	ErrUserNotFound = errors.New("token user not found")
)

const TokenTypeBearer = "bearer"

// UserFinder loads the user a token belongs to. A missing user must match ErrUserNotFound;
// any other error is treated as an internal failure.
type UserFinder interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
}

// Claims carries the user id in "sub" plus the time of the first issuance, which survives
// refreshes and bounds the refresh window.
type Claims struct {
	OrigIssuedAt int64 `json:"orig_iat"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

// Token is the payload handed to clients after login or refresh.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
	CreatedAt   time.Time
}

type TokenConfig struct {
	Secret     string
	TTL        time.Duration
	RefreshTTL time.Duration
}

// TokenService issues, validates, refreshes and revokes HS256 session tokens.
type TokenService struct {
	secret     []byte
	ttl        time.Duration
	refreshTTL time.Duration
	denylist   Denylist
	users      UserFinder
	parser     *jwt.Parser
	now        func() time.Time
}

func NewTokenService(cfg TokenConfig, denylist Denylist, users UserFinder) *TokenService {
	return &TokenService{
		secret:     []byte(cfg.Secret),
		ttl:        cfg.TTL,
		refreshTTL: cfg.RefreshTTL,
		denylist:   denylist,
		users:      users,
		// Time-based claims are checked by hand so refresh can accept expired tokens.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		now: time.Now,
	}
}

func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue creates a fresh token for the user.
func (s *TokenService) Issue(user *models.User) (Token, error) {
	now := s.now()
	return s.sign(user.ID, now, now)
}

func (s *TokenService) sign(userID uint, now, origIssued time.Time) (Token, error) {
	claims := &Claims{
		OrigIssuedAt: origIssued.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{
		AccessToken: signed,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(s.ttl.Seconds()),
		CreatedAt:   now,
	}, nil
}

// parse verifies the signature and revocation state but not expiry.
func (s *TokenService) parse(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Validate returns the user a live, unrevoked token belongs to.
func (s *TokenService) Validate(ctx context.Context, raw string) (*models.User, *Claims, error) {
	claims, err := s.parse(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return nil, nil, ErrTokenExpired
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, nil, err
	}
	user, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// Refresh exchanges a token for a new one. Expired tokens are accepted while the refresh
// window opened at first issuance is still running; the presented token is revoked.
func (s *TokenService) Refresh(ctx context.Context, raw string) (Token, error) {
	claims, err := s.parse(ctx, raw)
	if err != nil {
		return Token{}, err
	}
	orig := time.Unix(claims.OrigIssuedAt, 0)
	if claims.OrigIssuedAt == 0 || !s.now().Before(orig.Add(s.refreshTTL)) {
		return Token{}, ErrRefreshExpired
	}
	id, err := claims.UserID()
	if err != nil {
		return Token{}, err
	}
	if _, err := s.loadUser(ctx, id); err != nil {
		return Token{}, err
	}
	claimed, err := s.revokeClaims(ctx, claims)
	if err != nil {
		return Token{}, err
	}
	if !claimed {
		// a concurrent refresh or logout already consumed this token
		return Token{}, ErrTokenRevoked
	}
	return s.sign(id, s.now(), orig)
}

// Revoke makes the token unusable for validation and refresh.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	claims, err := s.parse(ctx, raw)
	if err != nil {
		return err
	}
	_, err = s.revokeClaims(ctx, claims)
	return err
}

func (s *TokenService) revokeClaims(ctx context.Context, claims *Claims) (bool, error) {
	until := claims.ExpiresAt.Time
	if deadline := time.Unix(claims.OrigIssuedAt, 0).Add(s.refreshTTL); deadline.After(until) {
		until = deadline
	}
	claimed, err := s.denylist.Revoke(ctx, claims.ID, until)
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	return claimed, nil
}

func (s *TokenService) loadUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load token user: %w", err)
	}
	return user, nil
}
