package hub

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"github.com/emrsoft/realtime/internal/hub/store"
)

// GenerateAPIKey returns a cryptographically random, URL-safe API key string.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashAPIKey returns a deterministic SHA-256 hex digest of key + pepper.
// Keys are stored hashed at rest; the pepper keeps a leaked database from
// being directly usable.
func HashAPIKey(key, pepper string) string {
	sum := sha256.Sum256([]byte(key + ":" + pepper))
	return hex.EncodeToString(sum[:])
}

func constantTimeEquals(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// KeyValidator authenticates presented API keys.
type KeyValidator interface {
	ValidateKey(ctx context.Context, key string) bool
}

// StaticKey accepts exactly one configured key.
type StaticKey string

func (k StaticKey) ValidateKey(_ context.Context, key string) bool {
	return k != "" && constantTimeEquals(string(k), key)
}

// NewStoreValidator validates keys against the hub's sqlite key store.
func NewStoreValidator(st *store.Store) KeyValidator {
	return storeValidator{st: st}
}

type storeValidator struct {
	st *store.Store
}

func (v storeValidator) ValidateKey(ctx context.Context, key string) bool {
	ok, err := v.st.ValidateHash(ctx, HashAPIKey(key, v.st.Pepper()))
	if err != nil {
		return false
	}
	return ok
}
