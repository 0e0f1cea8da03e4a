package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// API keys look like tsk_<32 hex>. The first prefixLen hex characters are
// stored in clear as a lookup handle; the full key is only ever stored as a
// bcrypt hash.
const (
	keyScheme = "tsk_"
	keyBytes  = 16
	prefixLen = 8
)

var ErrMalformedKey = errors.New("malformed api key")

type Scope string

const (
	ScopeIngest Scope = "ingest"
	ScopeAdmin  Scope = "admin"
)

// Allows reports whether a key with scope s may perform an action requiring
// the given scope. Admin keys may do everything.
func (s Scope) Allows(required Scope) bool {
	switch s {
	case ScopeAdmin:
		return true
	case ScopeIngest:
		return required == ScopeIngest
	default:
		return false
	}
}

func ParseScope(raw string) (Scope, error) {
	switch Scope(raw) {
	case ScopeIngest, ScopeAdmin:
		return Scope(raw), nil
	default:
		return "", fmt.Errorf("unknown scope %q", raw)
	}
}

// NewKey mints a fresh API key. It returns the plaintext (shown to the
// caller exactly once), the lookup prefix, and the bcrypt hash to store.
func NewKey() (plaintext, prefix, hash string, err error) {
	raw := make([]byte, keyBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("generate key: %w", err)
	}
	encoded := hex.EncodeToString(raw)
	plaintext = keyScheme + encoded

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("hash key: %w", err)
	}
	return plaintext, encoded[:prefixLen], string(hashed), nil
}

// LookupPrefix extracts the stored lookup handle from a presented key.
func LookupPrefix(presented string) (string, error) {
	encoded, ok := strings.CutPrefix(presented, keyScheme)
	if !ok || len(encoded) != keyBytes*2 {
		return "", ErrMalformedKey
	}
	if _, err := hex.DecodeString(encoded); err != nil {
		return "", ErrMalformedKey
	}
	return encoded[:prefixLen], nil
}

// Verify compares a presented key against a stored hash.
func Verify(presented, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) == nil
}

// VerifyAdminToken compares the presented bootstrap token against the
// configured one in constant time. An empty configured token never matches.
func VerifyAdminToken(presented, configured string) bool {
	if configured == "" {
		return false
	}
	presentedSum := sha256.Sum256([]byte(presented))
	configuredSum := sha256.Sum256([]byte(configured))
	return hmac.Equal(presentedSum[:], configuredSum[:])
}
