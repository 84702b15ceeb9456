// Package auth guards the daemon API with a bearer token minted at launch.
// The token is an HS256 JWT signed with a secret that only lives in memory,
// so tokens from a previous run are rejected. Local clients read the token
// from a file in the data directory that only the owner can read.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Issuer names the daemon in the tokens it signs.
	Issuer = "drode"
	// TokenFileName is the default file name of the token in the data dir.
	TokenFileName = "api-token"

	secretLength = 32
)

var (
	// ErrInvalidToken is returned for missing, malformed or foreign tokens.
	ErrInvalidToken = errors.New("invalid API token")
	// ErrNoToken is returned when a token file holds nothing.
	ErrNoToken = errors.New("token file is empty")
)

// Claims are the claims of an API token.
type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and verifies API tokens of one daemon launch.
type Service struct {
	secret []byte
	token  string
	now    func() time.Time
}

// New creates a Service with a fresh random secret and signs its token.
func New() (*Service, error) {
	secret := make([]byte, secretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	s := &Service{secret: secret, now: time.Now}
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   "local-client",
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	s.token = token
	return s, nil
}

// Token returns the bearer token accepted by Verify.
func (s *Service) Token() string { return s.token }

// Verify accepts tokens signed by this Service only.
func (s *Service) Verify(tokenString string) error {
	if tokenString == "" {
		return ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// WriteTokenFile stores the token at path with owner-only permissions. The
// file is replaced atomically so readers never see a partial token.
func (s *Service) WriteTokenFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".api-token-*")
	if err != nil {
		return fmt.Errorf("create token file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod token file: %w", err)
	}
	if _, err := tmp.WriteString(s.token + "\n"); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install token file: %w", err)
	}
	return nil
}

// ReadTokenFile returns the token stored at path.
func ReadTokenFile(path string) (string, error) {
	// #nosec G304
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}
