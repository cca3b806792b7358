package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// TokenPrefix identifies permcache service tokens
	TokenPrefix = "pcs_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

var (
	// ErrInvalidToken is returned for tokens that are malformed or unknown
	ErrInvalidToken = errors.New("invalid service token")
)

// TokenGenerator generates and validates service tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new service token.
// Format: pcs_<base64url(32 random bytes)>
// Only the hash is meant to be stored in configuration.
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	return fullToken, tg.HashToken(fullToken), tg.ExtractPrefix(fullToken), nil
}

// HashToken computes the SHA256 hash of a token
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// ExtractPrefix extracts the prefix from a token for display in logs
func (tg *TokenGenerator) ExtractPrefix(token string) string {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ""
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) >= 8 {
		return TokenPrefix + encodedPart[:8]
	}

	return token
}

// TokenVerifier checks service tokens against a fixed set of SHA256 hashes
type TokenVerifier struct {
	generator *TokenGenerator
	hashes    [][]byte
}

// NewTokenVerifier creates a verifier for the given hex-encoded hashes
func NewTokenVerifier(hashes []string) (*TokenVerifier, error) {
	tv := &TokenVerifier{generator: NewTokenGenerator()}
	for _, h := range hashes {
		raw, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil || len(raw) != sha256.Size {
			return nil, fmt.Errorf("invalid token hash %q", h)
		}
		tv.hashes = append(tv.hashes, raw)
	}
	return tv, nil
}

// Enabled reports whether any token hash is configured
func (tv *TokenVerifier) Enabled() bool {
	return len(tv.hashes) > 0
}

// Verify returns nil when token matches a configured hash
func (tv *TokenVerifier) Verify(token string) error {
	if err := tv.generator.ValidateTokenFormat(token); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sum := sha256.Sum256([]byte(token))
	for _, h := range tv.hashes {
		if subtle.ConstantTimeCompare(sum[:], h) == 1 {
			return nil
		}
	}
	return ErrInvalidToken
}
