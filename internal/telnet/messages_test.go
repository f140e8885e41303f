// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package telnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/chatd/internal/identity"
	"github.com/holomush/chatd/pkg/errutil"
)

func TestDecodeRequest(t *testing.T) {
	t.Run("authenticate", func(t *testing.T) {
		req, err := decodeRequest(`{"type":"authenticate","hash":"H1","identity":"alice"}`)
		require.NoError(t, err)
		assert.Equal(t, request{Type: TypeAuthenticate, Hash: "H1", Identity: "alice"}, req)
	})

	t.Run("message content", func(t *testing.T) {
		req, err := decodeRequest(`{"type":"message","content":"hello there"}`)
		require.NoError(t, err)
		assert.Equal(t, "hello there", req.Content)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := decodeRequest(`{"type":`)
		errutil.AssertErrorCode(t, err, "TELNET_MALFORMED_REQUEST")
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := decodeRequest(`{"identity":"alice"}`)
		errutil.AssertErrorCode(t, err, "TELNET_MALFORMED_REQUEST")
	})
}

func TestEncodeJSON(t *testing.T) {
	tests := []struct {
		name string
		msg  any
		want string
	}{
		{
			name: "auth success",
			msg:  authResult(identity.Response{Message: "alice", Success: true}),
			want: `{"type":"authresponse","message":"alice","success":true}`,
		},
		{
			name: "auth rejection",
			msg:  authResult(identity.Response{Message: identity.MsgCredentialMismatch}),
			want: `{"type":"authresponse","message":"Incorrect username or password.","success":false}`,
		},
		{
			name: "rename result",
			msg:  renameResult(identity.Response{Message: "bob", Success: true}),
			want: `{"type":"identityresponse","message":"bob","success":true}`,
		},
		{
			name: "identity notice",
			msg:  identity.IdentityNotice{Former: "guest1", Identity: "alice"},
			want: `{"type":"newidentity","former":"guest1","identity":"alice"}`,
		},
		{
			name: "rename notice",
			msg:  identity.RenameNotice{Former: "guest1", Identity: "alice"},
			want: `{"type":"roomchange","former":"guest1","identity":"alice"}`,
		},
		{
			name: "departure",
			msg:  departure{Identity: "alice"},
			want: `{"type":"roomchange","former":"alice","identity":""}`,
		},
		{
			name: "chat",
			msg:  chatMessage{Identity: "alice", Content: "hi"},
			want: `{"type":"message","identity":"alice","content":"hi"}`,
		},
		{
			name: "room contents",
			msg:  roomContents{Identities: []string{"alice", "guest2"}},
			want: `{"type":"roomcontents","identities":["alice","guest2"]}`,
		},
		{
			name: "error",
			msg:  errorMessage{Message: "Say what?"},
			want: `{"type":"error","message":"Say what?"}`,
		},
		{
			name: "goodbye",
			msg:  goodbyeMessage{},
			want: `{"type":"quit"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeJSON(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestEncodeText(t *testing.T) {
	tests := []struct {
		name string
		msg  any
		want string
	}{
		{"registered", authResult(identity.Response{Message: "alice", Success: true}), "Authenticated. You are alice."},
		{"authenticated", authResult(identity.Response{Success: true}), "Authenticated."},
		{"rejected", authResult(identity.Response{Message: identity.MsgInvalidName}), "Invalid username."},
		{"rename rejected", renameResult(identity.Response{Message: identity.MsgNameRegistered}), identity.MsgNameRegistered},
		{"identity notice", identity.IdentityNotice{Former: "guest1", Identity: "alice"}, "You are now known as alice."},
		{"rename notice", identity.RenameNotice{Former: "guest1", Identity: "alice"}, "guest1 is now known as alice."},
		{"departure", departure{Identity: "alice"}, "alice has left."},
		{"chat", chatMessage{Identity: "alice", Content: "hi"}, "alice: hi"},
		{"room contents", roomContents{Identities: []string{"alice", "bob"}}, "Connected: alice, bob"},
		{"goodbye", goodbyeMessage{}, "Goodbye!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeText(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncodeText_SuccessfulRenameIsSilent(t *testing.T) {
	got, err := encodeText(renameResult(identity.Response{Message: "bob", Success: true}))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEncode_UnknownMessage(t *testing.T) {
	_, err := encodeJSON(struct{}{})
	errutil.AssertErrorCode(t, err, "TELNET_UNKNOWN_MESSAGE")

	_, err = encodeText(42)
	errutil.AssertErrorCode(t, err, "TELNET_UNKNOWN_MESSAGE")
}
