// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

// RequestKind enumerates the identity-change requests a connection can make.
type RequestKind int

// Identity-change request kinds.
const (
	// KindRename changes the display name without authenticating.
	KindRename RequestKind = iota + 1
	// KindAuthenticate claims a name with a credential hash, registering the
	// name if nobody owns it yet.
	KindAuthenticate
)

// String returns the metric/log label for the kind.
func (k RequestKind) String() string {
	switch k {
	case KindRename:
		return "rename"
	case KindAuthenticate:
		return "authenticate"
	default:
		return "unknown"
	}
}

// Request is one identity-change request from a connection.
type Request struct {
	Kind           RequestKind
	Name           string
	CredentialHash string
}

// Response is the single outcome reported for a Request.
type Response struct {
	Message string
	Success bool
}

// IdentityNotice tells a client its display name changed.
type IdentityNotice struct {
	Former   string
	Identity string
}

// RenameNotice tells the other clients that someone changed name.
type RenameNotice struct {
	Former   string
	Identity string
}

// User-facing response messages.
const (
	MsgInvalidName        = "Invalid username."
	MsgGuestName          = "You may not authenticate as a guest.\nPick another name."
	MsgCredentialMismatch = "Incorrect username or password."
	MsgRegisterFailed     = "Registration failed. Please try again."
	MsgNameRegistered     = "That name is registered. Authenticate to use it."
	MsgUnknownRequest     = "Unknown request."
)
