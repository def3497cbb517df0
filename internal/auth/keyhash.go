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

	"golang.org/x/crypto/argon2"
)

// KeyHashParams are the Argon2id settings for API key hashes.
type KeyHashParams struct {
	Memory     uint32 // KiB
	Iterations uint32
	Threads    uint8
	KeyLen     uint32
	SaltLen    int
}

// APIKeyParams hashes API keys. Keys carry 128 random bits, so the OWASP
// minimum is enough and keeps per-request verification cheap; user
// passwords go through bcrypt instead.
var APIKeyParams = KeyHashParams{
	Memory:     19 * 1024,
	Iterations: 2,
	Threads:    1,
	KeyLen:     32,
	SaltLen:    16,
}

// Stored hashes asking for more than this are refused rather than computed.
const maxKeyHashMemory = 256 * 1024

var (
	// ErrInvalidHash indicates the stored hash cannot be parsed.
	ErrInvalidHash = errors.New("invalid key hash")
	// ErrIncompatibleVersion indicates an argon2 version other than 0x13.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// keyHash is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$hash" string.
type keyHash struct {
	params KeyHashParams
	salt   []byte
	sum    []byte
}

func (h keyHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.sum))
}

func parseKeyHash(encoded string) (keyHash, error) {
	var h keyHash
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return h, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return h, ErrInvalidHash
	}
	if version != argon2.Version {
		return h, ErrIncompatibleVersion
	}

	p := &h.params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Threads); err != nil {
		return h, ErrInvalidHash
	}
	if p.Memory == 0 || p.Memory > maxKeyHashMemory || p.Iterations == 0 || p.Threads == 0 {
		return h, fmt.Errorf("%w: parameters out of range", ErrInvalidHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return h, ErrInvalidHash
	}
	if h.sum, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(h.sum) == 0 {
		return h, ErrInvalidHash
	}
	p.SaltLen = len(h.salt)
	p.KeyLen = uint32(len(h.sum))
	return h, nil
}

// HashKey hashes a plaintext API key with APIKeyParams.
func HashKey(key string) (string, error) {
	return hashKeyWith(key, APIKeyParams)
}

func hashKeyWith(key string, p KeyHashParams) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	sum := argon2.IDKey([]byte(key), salt, p.Iterations, p.Memory, p.Threads, p.KeyLen)
	return keyHash{params: p, salt: salt, sum: sum}.String(), nil
}

// VerifyKey reports whether key matches encoded, using the parameters
// stored in the hash so older keys keep working after APIKeyParams change.
func VerifyKey(key, encoded string) (bool, error) {
	h, err := parseKeyHash(encoded)
	if err != nil {
		return false, err
	}
	p := h.params
	sum := argon2.IDKey([]byte(key), h.salt, p.Iterations, p.Memory, p.Threads, p.KeyLen)
	return subtle.ConstantTimeCompare(sum, h.sum) == 1, nil
}

// KeyCacheID derives the auth cache key for a plaintext API key. It is a
// lookup id only and never stored as a credential.
func KeyCacheID(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:16])
}
