package repository

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Authorizable is a user or a group.
type Authorizable struct {
	ID           string         `json:"id"`
	Group        bool           `json:"group"`
	Properties   map[string]any `json:"properties,omitempty"`
	Members      []string       `json:"members,omitempty"`
	PasswordHash string         `json:"passwordHash,omitempty"`
}

// Clone returns a deep copy.
func (a *Authorizable) Clone() *Authorizable {
	out := &Authorizable{
		ID:           a.ID,
		Group:        a.Group,
		PasswordHash: a.PasswordHash,
		Members:      append([]string(nil), a.Members...),
		Properties:   make(map[string]any, len(a.Properties)),
	}
	for k, v := range a.Properties {
		out.Properties[k] = NormalizeValue(v)
	}
	return out
}

// PublicProperties returns the properties without internal fields, suitable
// for JSON responses.
func (a *Authorizable) PublicProperties() map[string]any {
	out := make(map[string]any, len(a.Properties)+1)
	for k, v := range a.Properties {
		out[k] = v
	}
	out["rep:userId"] = a.ID
	return out
}

// HasMember reports whether id is a direct member of the group.
func (a *Authorizable) HasMember(id string) bool {
	for _, m := range a.Members {
		if m == id {
			return true
		}
	}
	return false
}

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashPassword derives an argon2id hash encoded as "salt$key".
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	enc := base64.RawStdEncoding
	return enc.EncodeToString(salt) + "$" + enc.EncodeToString(key), nil
}

// VerifyPassword checks password against a hash from HashPassword.
func VerifyPassword(hash, password string) bool {
	saltStr, keyStr, ok := strings.Cut(hash, "$")
	if !ok {
		return false
	}
	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(saltStr)
	if err != nil {
		return false
	}
	want, err := enc.DecodeString(keyStr)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
