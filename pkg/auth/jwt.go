package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"pagado/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenSource yields the bearer credential for backend API calls.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a pre-shared bearer secret.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", errors.New("static token is empty")
	}
	return string(t), nil
}

type Claims struct {
	Service string `json:"svc"`
	jwt.RegisteredClaims
}

// JWTManager signs short-lived HS256 service tokens and reuses them until
// shortly before they expire.
type JWTManager struct {
	secretKey     []byte
	issuer        string
	tokenDuration time.Duration
	now           func() time.Time

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

func NewJWTManager(secretKey, issuer string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		issuer:        issuer,
		tokenDuration: tokenDuration,
		now:           time.Now,
	}
}

func (m *JWTManager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.cached != "" && now.Add(30*time.Second).Before(m.expiresAt) {
		return m.cached, nil
	}

	expiresAt := now.Add(m.tokenDuration)
	claims := &Claims{
		Service: m.issuer,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	m.cached = signed
	m.expiresAt = expiresAt
	return signed, nil
}

func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewTokenSource picks the credential strategy configured for the backend.
func NewTokenSource(cfg *config.BackendConfig) TokenSource {
	if cfg.AuthMode == "jwt" {
		return NewJWTManager(cfg.SecretToken, "pagado-bot", cfg.TokenTTL)
	}
	return StaticToken(cfg.SecretToken)
}
