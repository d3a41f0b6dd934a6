package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"filevault/internal/models"
)

// ErrInvalidCredentials is returned when the email is unknown or the
// password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	hardenedPrefix     = "pbkdf2"
	hardenedIterations = 120000
	hardenedSaltBytes  = 16
	hardenedKeyBytes   = 32
)

// UserSource resolves accounts by email for credential checks.
type UserSource interface {
	GetUserByEmail(ctx context.Context, email string) (models.User, bool, error)
}

// Verifier checks email and password pairs against stored accounts.
type Verifier struct {
	users UserSource
}

// NewVerifier wires a verifier to the account source.
func NewVerifier(users UserSource) (*Verifier, error) {
	if users == nil {
		return nil, errors.New("user source is required")
	}
	return &Verifier{users: users}, nil
}

// Verify resolves the account and checks the password. Unknown emails and
// wrong passwords both map to ErrInvalidCredentials so callers cannot tell
// them apart.
func (v *Verifier) Verify(ctx context.Context, email, password string) (models.User, error) {
	user, ok, err := v.users.GetUserByEmail(ctx, email)
	if err != nil {
		return models.User{}, fmt.Errorf("look up account: %w", err)
	}
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// HashPassword produces the canonical stored form of a password, an unsalted
// SHA-1 hex digest. Datasets written by earlier deployments use this layout.
func HashPassword(password string) string {
	sum := sha1.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// HashPasswordHardened produces a salted PBKDF2 record. Records are
// self-describing so both layouts can coexist in one dataset.
func HashPasswordHardened(password string) (string, error) {
	salt := make([]byte, hardenedSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, hardenedIterations, hardenedKeyBytes, sha256.New)
	return strings.Join([]string{
		hardenedPrefix,
		strconv.Itoa(hardenedIterations),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	}, "$"), nil
}

// VerifyPassword compares a password against a stored record of either
// layout using constant-time comparison.
func VerifyPassword(stored, password string) bool {
	if strings.HasPrefix(stored, hardenedPrefix+"$") {
		return verifyHardened(stored, password)
	}
	candidate := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

func verifyHardened(stored, password string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 {
		return false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(want, got) == 1
}
