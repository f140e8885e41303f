// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package telnet

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/chatd/internal/identity"
)

// Wire message types. Requests and responses share the "type" field.
const (
	TypeAuthenticate     = "authenticate"
	TypeIdentityChange   = "identitychange"
	TypeWho              = "who"
	TypeMessage          = "message"
	TypeQuit             = "quit"
	TypeAuthResponse     = "authresponse"
	TypeIdentityResponse = "identityresponse"
	TypeNewIdentity      = "newidentity"
	TypeRoomChange       = "roomchange"
	TypeRoomContents     = "roomcontents"
	TypeError            = "error"
)

// request is an inbound JSON line.
type request struct {
	Type     string `json:"type"`
	Hash     string `json:"hash,omitempty"`
	Identity string `json:"identity,omitempty"`
	Content  string `json:"content,omitempty"`
}

func decodeRequest(line string) (request, error) {
	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return request{}, oops.Code("TELNET_MALFORMED_REQUEST").Wrap(err)
	}
	if req.Type == "" {
		return request{}, oops.Code("TELNET_MALFORMED_REQUEST").Errorf("request type is required")
	}
	return req, nil
}

// Messages produced by the connection layer itself.
type (
	authResult     identity.Response
	renameResult   identity.Response
	chatMessage    struct{ Identity, Content string }
	roomContents   struct{ Identities []string }
	departure      struct{ Identity string }
	errorMessage   struct{ Message string }
	goodbyeMessage struct{}
)

type wireResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

type wireIdentity struct {
	Type     string `json:"type"`
	Former   string `json:"former"`
	Identity string `json:"identity"`
}

type wireChat struct {
	Type     string `json:"type"`
	Identity string `json:"identity"`
	Content  string `json:"content"`
}

type wireContents struct {
	Type       string   `json:"type"`
	Identities []string `json:"identities"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// encodeJSON renders msg as one JSON line without the trailing newline.
func encodeJSON(msg any) ([]byte, error) {
	var v any
	switch m := msg.(type) {
	case authResult:
		v = wireResponse{Type: TypeAuthResponse, Message: m.Message, Success: m.Success}
	case renameResult:
		v = wireResponse{Type: TypeIdentityResponse, Message: m.Message, Success: m.Success}
	case identity.IdentityNotice:
		v = wireIdentity{Type: TypeNewIdentity, Former: m.Former, Identity: m.Identity}
	case identity.RenameNotice:
		v = wireIdentity{Type: TypeRoomChange, Former: m.Former, Identity: m.Identity}
	case departure:
		v = wireIdentity{Type: TypeRoomChange, Former: m.Identity}
	case chatMessage:
		v = wireChat{Type: TypeMessage, Identity: m.Identity, Content: m.Content}
	case roomContents:
		v = wireContents{Type: TypeRoomContents, Identities: m.Identities}
	case errorMessage:
		v = wireError{Type: TypeError, Message: m.Message}
	case goodbyeMessage:
		v = struct {
			Type string `json:"type"`
		}{Type: TypeQuit}
	default:
		return nil, oops.Code("TELNET_UNKNOWN_MESSAGE").With("message_type", fmt.Sprintf("%T", msg)).
			Errorf("no wire encoding for message")
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, oops.With("operation", "marshal message").Wrap(err)
	}
	return b, nil
}

// encodeText renders msg for a human on a plain telnet client.
func encodeText(msg any) ([]byte, error) {
	var s string
	switch m := msg.(type) {
	case authResult:
		s = textResponse(identity.Response(m), "Authenticated.")
	case renameResult:
		// A successful rename is already announced by the identity notice.
		if m.Success {
			return nil, nil
		}
		s = m.Message
	case identity.IdentityNotice:
		s = "You are now known as " + m.Identity + "."
	case identity.RenameNotice:
		s = m.Former + " is now known as " + m.Identity + "."
	case departure:
		s = m.Identity + " has left."
	case chatMessage:
		s = m.Identity + ": " + m.Content
	case roomContents:
		s = "Connected: " + strings.Join(m.Identities, ", ")
	case errorMessage:
		s = m.Message
	case goodbyeMessage:
		s = "Goodbye!"
	default:
		return nil, oops.Code("TELNET_UNKNOWN_MESSAGE").With("message_type", fmt.Sprintf("%T", msg)).
			Errorf("no text rendering for message")
	}
	return []byte(s), nil
}

func textResponse(resp identity.Response, success string) string {
	if resp.Success {
		if resp.Message == "" {
			return success
		}
		return success + " You are " + resp.Message + "."
	}
	return resp.Message
}
