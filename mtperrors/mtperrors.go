// Package mtperrors defines the error taxonomy the session, RPC, and
// dispatcher layers surface to callers (spec.md §7). It mirrors
// pylogram's three-tier split of network failures, protocol-level
// violations, and RPC-level failures, plus a small set of internal
// control-flow signals the dispatcher uses that must never leak out of
// this module as user-visible errors.
package mtperrors

import (
	"errors"
	"fmt"
)

// Network errors: the transport never reached a point where MTProto
// framing applies.
var (
	ErrConnectionFailed = errors.New("mtproto: connection failed")
	ErrConnectionClosed = errors.New("mtproto: connection closed")
	ErrTimeout          = errors.New("mtproto: operation timed out")
)

// Protocol errors: the transport worked but the framing or session
// invariants were violated.
var (
	ErrBadFrame         = errors.New("mtproto: malformed frame")
	ErrAuthKeyMismatch  = errors.New("mtproto: auth_key_id mismatch")
	ErrMsgKeyMismatch   = errors.New("mtproto: msg_key mismatch")
	ErrSessionIDMismatch = errors.New("mtproto: session_id mismatch")
	// ErrInvalidatedByNewSession is returned to any pending Invoke waiter
	// whose msg_id fell below a new_session_created's first_msg_id: the
	// server has no memory of that request, so the caller must resend it
	// (spec.md §4.4 "new_session_created ... invalidate").
	ErrInvalidatedByNewSession = errors.New("mtproto: request invalidated by new_session_created, resend")
)

// BadMsgNotificationError wraps the numeric error_code a bad_msg_notification
// service message carries (spec.md §4.4), so callers can branch on known
// codes (16/17 clock skew, 32/33 msg-id out of window, ...).
type BadMsgNotificationError struct {
	Code int32
}

func (e *BadMsgNotificationError) Error() string {
	return fmt.Sprintf("mtproto: bad_msg_notification code %d", e.Code)
}

// RpcError is the typed form of an rpc_error service message. Code and
// Message are the raw (error_code, error_message) pair the server sent;
// FloodWaitSeconds is populated only when Message matches FLOOD_WAIT_<n>.
type RpcError struct {
	Code             int32
	Message          string
	FloodWaitSeconds int
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("mtproto: rpc error %d: %s", e.Code, e.Message)
}

// IsFloodWait reports whether this error represents a FLOOD_WAIT_N the
// caller should sleep out rather than treat as terminal.
func (e *RpcError) IsFloodWait() bool {
	return e.FloodWaitSeconds > 0
}

// Sentinel RPC error names the session layer and dispatcher special-case.
const (
	RpcAuthKeyUnregistered   = "AUTH_KEY_UNREGISTERED"
	RpcSessionPasswordNeeded = "SESSION_PASSWORD_NEEDED"
	RpcCdnFileHashMismatch   = "CDN_FILE_HASH_MISMATCH"
	RpcAuthKeyDuplicated     = "AUTH_KEY_DUPLICATED"
)

// Control signals: internal to the dispatcher's handler chain, never
// returned from a public API and never logged as failures.
var (
	// ErrStopPropagation tells the dispatcher to abort dispatch of this
	// update entirely: no further handler, in this group or any later
	// group, runs.
	ErrStopPropagation = errors.New("mtproto: stop propagation")
	// ErrContinuePropagation tells the dispatcher to go on to the next
	// matching handler in the same group. Returning nil instead ends the
	// current group.
	ErrContinuePropagation = errors.New("mtproto: continue propagation")
	// ErrStopTransmission is a stop-transmission control signal. No code
	// in this module currently returns or checks it.
	ErrStopTransmission = errors.New("mtproto: stop transmission")
)
