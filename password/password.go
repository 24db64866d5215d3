// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package password is the one adaptive memory-hard hashing adapter the user
// core depends on through the Hasher interface; nothing upstream imports
// golang.org/x/crypto/argon2 directly.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Hasher is the interface the user core programs against.
//
// Purpose: Decouple user.Core from a specific hashing primitive.
// Domain: Identity
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// Argon2Hasher implements Hasher using Argon2id.
//
// Purpose: Primary mechanism for secure password storage and verification.
// Domain: Identity
// Invariants: Memory, Iterations, and Parallelism must be tuned for security.
type Argon2Hasher struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Hasher returns an Argon2id hasher tuned for an interactive
// login path (64 MiB, 3 passes, 2 lanes).
func DefaultArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hash hashes a password using Argon2id.
//
// Purpose: Generates a cryptographically secure hash of a plaintext password.
// Domain: Identity
// Security: Uses Argon2id (memory-hard, side-channel resistant) with random salt.
// Audited: No
// Errors: System errors (e.g., random generation failure)
func (h *Argon2Hasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(plain), salt, h.Iterations, h.Memory, h.Parallelism, h.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Memory, h.Iterations, h.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify verifies a password against a previously produced encoded hash.
//
// Purpose: Validates an incoming password against a stored Argon2id hash.
// Domain: Identity
// Security: Uses constant-time comparison to prevent timing attacks.
// Audited: No
// Errors: Invalid hash format, decoding errors
func (h *Argon2Hasher) Verify(plain, encodedHash string) (bool, error) {
	var version int
	var memory, iterations uint32
	var parallelism uint8
	var saltB64, hashB64 string

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("invalid hash format")
	}
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("invalid hash version: %w", err)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("invalid hash params: %w", err)
	}
	saltB64, hashB64 = parts[4], parts[5]

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(hashB64)
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}

	actual := argon2.IDKey([]byte(plain), salt, iterations, memory, parallelism, uint32(len(expected)))

	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}
