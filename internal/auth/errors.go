// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

// Error codes attached to oops errors returned by this package.
const (
	CodeNameRegistered = "AUTH_NAME_REGISTERED"
	CodeRegisterFailed = "AUTH_REGISTER_FAILED"
	CodeLoadFailed     = "AUTH_LOAD_FAILED"
	CodeInvalidPolicy  = "AUTH_INVALID_POLICY"
	CodeEmptyPassword  = "AUTH_EMPTY_PASSWORD"
)
