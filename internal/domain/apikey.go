package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// APIKeyPrefix starts every issued API key.
const APIKeyPrefix = "moai_rank_"

// apiKeyDisplayLen is how much of a key is kept in clear for display.
const apiKeyDisplayLen = 18

// HashAPIKey returns the value stored for an API key. Keys are never stored in clear.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the leading part of key shown to its owner.
func DisplayPrefix(key string) string {
	if len(key) <= apiKeyDisplayLen {
		return key
	}
	return key[:apiKeyDisplayLen]
}

// LooksLikeAPIKey reports whether key has the issued key shape.
func LooksLikeAPIKey(key string) bool {
	return strings.HasPrefix(key, APIKeyPrefix) && len(key) > len(APIKeyPrefix)
}
