package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const MinSaltLength = 16

// HasherParams configures argon2id. Salt must come from deployment config.
type HasherParams struct {
	Salt    []byte
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// Hasher derives argon2id digests encoded as
// $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>.
type Hasher struct {
	params HasherParams
}

func NewHasher(p HasherParams) (*Hasher, error) {
	if len(p.Salt) < MinSaltLength {
		return nil, fmt.Errorf("password salt must be at least %d bytes, got %d", MinSaltLength, len(p.Salt))
	}
	if p.Time == 0 {
		p.Time = 3
	}
	if p.Memory == 0 {
		p.Memory = 64 * 1024
	}
	if p.Threads == 0 {
		p.Threads = 2
	}
	if p.KeyLen == 0 {
		p.KeyLen = 32
	}
	p.Salt = append([]byte(nil), p.Salt...)
	return &Hasher{params: p}, nil
}

// Hash is deterministic for a fixed password and parameter set.
func (h *Hasher) Hash(password string) []byte {
	p := h.params
	key := argon2.IDKey([]byte(password), p.Salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return []byte(fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(p.Salt),
		base64.RawStdEncoding.EncodeToString(key)))
}

// Verify recomputes the key with the salt and cost stored in digest, so
// digests stay valid after the configured cost changes.
func (h *Hasher) Verify(password string, digest []byte) bool {
	p, want, err := decodeDigest(string(digest))
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), p.Salt, p.Time, p.Memory, p.Threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func decodeDigest(s string) (HasherParams, []byte, error) {
	var p HasherParams
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, fmt.Errorf("unsupported digest format")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, fmt.Errorf("unsupported argon2 version %q", parts[2])
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, fmt.Errorf("parse digest params: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, fmt.Errorf("decode salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) == 0 || p.Time == 0 || p.Threads == 0 {
		return p, nil, fmt.Errorf("invalid digest params")
	}
	p.Salt = salt
	return p, key, nil
}
