package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"tavern/internal/models"
)

// KeyPrefix marks tavern API keys so they are easy to spot in configs and logs.
const KeyPrefix = "tavern_ak_"

func GenerateAPIKey() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(raw), nil
}

// HashAPIKey is what the users table stores; raw keys are never persisted.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

func VerifyAPIKey(rawAPIKey, expectedHash string) bool {
	actual := HashAPIKey(rawAPIKey)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expectedHash)) == 1
}

// BearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively.
func BearerToken(authHeader string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func ValidRole(role string) bool {
	switch role {
	case models.RoleMember, models.RoleModerator, models.RoleAdmin:
		return true
	}
	return false
}

// CanModerate is true for roles allowed to pin, lock and edit other
// people's content.
func CanModerate(role string) bool {
	return role == models.RoleModerator || role == models.RoleAdmin
}
