// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the naming rules, the credential index, and the
// credential comparison used when a connection claims a name.
//
// The index only ever sees credential hashes. Clients derive them before
// submitting a request (see DeriveCredential for the server-side helper).
package auth
