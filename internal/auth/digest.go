// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// argon2id parameters for credential derivation. These are part of the
// credential format: changing them invalidates every stored record.
const (
	digestTime    = 1
	digestMemory  = 64 * 1024
	digestThreads = 4
	digestKeyLen  = 32
	digestSaltLen = 16
)

const digestSaltPrefix = "chatd:credential:"

// DeriveCredential turns a password into the credential hash a client submits
// when authenticating as name. The result is deterministic for a given
// (name, password) pair so the server can compare it by equality.
//
// Clients that hash on their side never call this; it backs the plain-text
// "auth" command and the credential CLI.
func DeriveCredential(name, password string) (string, error) {
	if password == "" {
		return "", oops.Code(CodeEmptyPassword).Errorf("password cannot be empty")
	}

	sum := sha256.Sum256([]byte(digestSaltPrefix + strings.ToLower(name)))
	salt := sum[:digestSaltLen]

	key := argon2.IDKey([]byte(password), salt, digestTime, digestMemory, digestThreads, digestKeyLen)
	return hex.EncodeToString(key), nil
}
