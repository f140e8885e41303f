// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

import "github.com/samber/oops"

// Error codes for rejected identity changes.
const (
	CodeInvalidName        = "IDENTITY_INVALID_NAME"
	CodeGuestName          = "IDENTITY_GUEST_NAME"
	CodeNameRegistered     = "IDENTITY_NAME_REGISTERED"
	CodeCredentialMismatch = "IDENTITY_CREDENTIAL_MISMATCH"
	CodeRegisterFailed     = "IDENTITY_REGISTER_FAILED"
	CodeUnknownRequest     = "IDENTITY_UNKNOWN_REQUEST"
)

// ErrInvalidName reports a name that breaks the naming rules or is displayed
// by another connection.
func ErrInvalidName(name string) error {
	return oops.Code(CodeInvalidName).With("name", name).Errorf("invalid name")
}

// ErrGuestName reports a name in the reserved guest shape.
func ErrGuestName(name string) error {
	return oops.Code(CodeGuestName).With("name", name).Errorf("guest names are reserved")
}

// ErrNameRegistered reports a rename onto a name owned by another credential.
func ErrNameRegistered(name string) error {
	return oops.Code(CodeNameRegistered).With("name", name).Errorf("name is registered")
}
