// Package rpc implements the daemon's single JSON-RPC-style method table
// (spec.md §4.6) and the transports that serve it (spec.md §6). It is
// grounded in shape on the teacher's internal/rpcserver (a generated
// connect-rpc service dispatching to the same handful of subsystems this
// router dispatches to) but hand-rolls a plain JSON envelope router instead
// of depending on protobuf-generated stubs, since spec.md §6 specifies the
// wire contract directly rather than a .proto schema.
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
)

// ProtocolVersion is the envelope's fixed protocol-version field (spec.md §6).
const ProtocolVersion = "2.0"

// Request is one call envelope, arriving on any transport.
type Request struct {
	ProtocolVersion string          `json:"protocol-version"`
	ID              json.RawMessage `json:"id"`
	Method          string          `json:"method"`
	Params          json.RawMessage `json:"params,omitempty"`
}

// Response is the matching reply envelope: exactly one of Result or Error
// is populated (spec.md §6).
type Response struct {
	ProtocolVersion string          `json:"protocol-version"`
	ID              json.RawMessage `json:"id"`
	Result          any             `json:"result,omitempty"`
	Error           *WireError      `json:"error,omitempty"`
}

// WireError is the RPC error taxonomy's wire shape (spec.md §7).
type WireError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Kind    string         `json:"kind"`
	Data    map[string]any `json:"data,omitempty"`
}

// errorResponse builds a Response carrying err translated via the apperr
// taxonomy, echoing id.
func errorResponse(id json.RawMessage, err error) Response {
	kind := apperr.KindOf(err)
	var data map[string]any
	var ae *apperr.Error
	if errors.As(err, &ae) {
		data = ae.Data
	}
	return Response{
		ProtocolVersion: ProtocolVersion,
		ID:              id,
		Error: &WireError{
			Code:    kind.Code(),
			Message: err.Error(),
			Kind:    kind.String(),
			Data:    data,
		},
	}
}

func resultResponse(id json.RawMessage, result any) Response {
	return Response{ProtocolVersion: ProtocolVersion, ID: id, Result: result}
}
