// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "crypto/subtle"

// CredentialsMatch reports whether supplied equals the stored credential hash.
// An empty stored hash never matches.
func CredentialsMatch(stored, supplied string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
