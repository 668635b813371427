package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned for malformed or unsupported encoded hashes.
var ErrInvalidHash = errors.New("session: invalid password hash")

const argon2Version = 19 // argon2.Version is 0x13 (19)

// HashParams are the Argon2id parameters used by HashPassword.
type HashParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams are sized for an interactive login on a desktop.
var DefaultHashParams = HashParams{
	MemoryKiB:   64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPassword returns a PHC-style Argon2id hash:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
func HashPassword(password string, p HashParams) (string, error) {
	if password == "" {
		return "", errors.New("session: empty password")
	}
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version, p.MemoryKiB, p.Iterations, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// VerifyPassword reports whether password matches the encoded hash.
func VerifyPassword(encoded, password string) (bool, error) {
	p, salt, expected, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func decodeHash(encoded string) (HashParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return HashParams{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return HashParams{}, nil, nil, ErrInvalidHash
	}
	// Refuse pathological parameters from a tampered config file.
	if mem == 0 || mem > 1<<20 || it == 0 || it > 16 || par == 0 || par > 255 {
		return HashParams{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return HashParams{}, nil, nil, ErrInvalidHash
	}
	hash, err := b64.DecodeString(parts[5])
	if err != nil || len(hash) < 16 {
		return HashParams{}, nil, nil, ErrInvalidHash
	}

	return HashParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(hash)),
	}, salt, hash, nil
}

// FixedChecker is the placeholder credential check: one username and one
// Argon2id hash, usually read from the config file. Real deployments swap
// it for a network-backed CredentialChecker.
type FixedChecker struct {
	Username string
	Hash     string
}

// NewFixedChecker creates a FixedChecker.
func NewFixedChecker(username, hash string) *FixedChecker {
	return &FixedChecker{Username: username, Hash: hash}
}

// Check implements CredentialChecker. The returned material is the username.
func (c *FixedChecker) Check(ctx context.Context, username, password string) (bool, string, error) {
	if err := ctx.Err(); err != nil {
		return false, "", err
	}
	if c.Hash == "" {
		return false, "", errors.New("no credential hash configured")
	}
	ok, err := VerifyPassword(c.Hash, password)
	if err != nil {
		return false, "", err
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) != 1 || !ok {
		return false, "", nil
	}
	return true, username, nil
}
