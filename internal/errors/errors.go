// Package errors defines the BFT2F protocol's error taxonomy and the
// structured ProtocolError used to carry it across package boundaries.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode represents an error code
type ErrorCode string

// Predefined error codes, one per failure class named in the protocol's
// message-validation and view-change rules.
const (
	// TransientDecode: a message failed to decode or its signature did
	// not verify — the sender may simply be byzantine, or the datagram
	// may have been corrupted in flight. Callers drop silently and do
	// not change protocol state.
	TransientDecode ErrorCode = "TRANSIENT_DECODE"
	// OutOfWindow: a PRE-PREPARE/PREPARE/COMMIT names a sequence number
	// outside the replica's current watermark window.
	OutOfWindow ErrorCode = "OUT_OF_WINDOW"
	// ConflictingPrePrepare: two PRE-PREPAREs for the same (view, seq)
	// carry different digests.
	ConflictingPrePrepare ErrorCode = "CONFLICTING_PRE_PREPARE"
	// ConflictingPrepare: two PREPAREs for the same (view, seq) from the
	// same replica carry different digests.
	ConflictingPrepare ErrorCode = "CONFLICTING_PREPARE"
	// StaleClientKnownState: a client's REQUEST carries a known_state
	// entry whose digest differs from the replica's current_system_state
	// at the same seq — the client is on a diverged fork.
	StaleClientKnownState ErrorCode = "STALE_CLIENT_KNOWN_STATE"
	// NotDominantPrimary: the elected primary for a view is not dominant
	// over the requesting replica's own log; a PRIMARY_NOT_DOMINANT
	// catch-up round is required before the view can proceed.
	NotDominantPrimary ErrorCode = "NOT_DOMINANT_PRIMARY"
	// ViewChangeFailed: a view-change round did not complete within its
	// (possibly backed-off) timeout.
	ViewChangeFailed ErrorCode = "VIEW_CHANGE_FAILED"
	// ChecksumMismatch: a hash-chain block's recomputed hash does not
	// match its stored hash, or version-vector entries disagree at a
	// (seq, digest) pair that should be unique — a detected fork.
	ChecksumMismatch ErrorCode = "CHECKSUM_MISMATCH"
	// InternalError: an invariant the protocol assumes always holds was
	// violated; not a byzantine-sender condition.
	InternalError ErrorCode = "INTERNAL_ERROR"
	// ConfigInvalid: the replica or client configuration failed
	// validation (e.g. N < 3f+1) before the engine ever started.
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// ProtocolError is a structured error carrying the protocol context a
// caller needs to decide what to log, what metric to bump, and what
// exit code to return.
type ProtocolError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Fields    map[string]string      `json:"fields,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	View      uint64                 `json:"view,omitempty"`
	Seq       uint64                 `json:"seq,omitempty"`
	ReplicaID uint32                 `json:"replica_id,omitempty"`
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ExitCode returns the CLI exit code for this error (§6): 0 success
// (never returned from an error), 1 timeout, 2 configuration error, 3
// detected fork. Every other code maps to 1, since from the operator's
// perspective a protocol error that doesn't indicate a fork or a config
// mistake is still some flavor of "didn't complete in time."
func (e *ProtocolError) ExitCode() int {
	switch e.Code {
	case ConfigInvalid:
		return 2
	case ChecksumMismatch:
		return 3
	case ViewChangeFailed:
		return 1
	default:
		return 1
	}
}

// WithField adds a field-specific detail
func (e *ProtocolError) WithField(field, message string) *ProtocolError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
	return e
}

// WithMetadata adds metadata to the error
func (e *ProtocolError) WithMetadata(key string, value interface{}) *ProtocolError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithView stamps the view the error occurred in.
func (e *ProtocolError) WithView(view uint64) *ProtocolError {
	e.View = view
	return e
}

// WithSeq stamps the sequence number the error occurred at.
func (e *ProtocolError) WithSeq(seq uint64) *ProtocolError {
	e.Seq = seq
	return e
}

// WithReplicaID stamps the replica that raised or is implicated by the
// error (e.g. the sender of a conflicting message).
func (e *ProtocolError) WithReplicaID(id uint32) *ProtocolError {
	e.ReplicaID = id
	return e
}

// New creates a new ProtocolError.
func New(code ErrorCode, message string) *ProtocolError {
	return &ProtocolError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewWithDetails creates a new ProtocolError with details.
func NewWithDetails(code ErrorCode, message, details string) *ProtocolError {
	return &ProtocolError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

// Predefined error constructors, one per code above.

func NewTransientDecodeError(message string) *ProtocolError {
	return New(TransientDecode, message)
}

func NewOutOfWindowError(message string) *ProtocolError {
	return New(OutOfWindow, message)
}

func NewConflictingPrePrepareError(message string) *ProtocolError {
	return New(ConflictingPrePrepare, message)
}

func NewConflictingPrepareError(message string) *ProtocolError {
	return New(ConflictingPrepare, message)
}

func NewStaleClientKnownStateError(message string) *ProtocolError {
	return New(StaleClientKnownState, message)
}

func NewNotDominantPrimaryError(message string) *ProtocolError {
	return New(NotDominantPrimary, message)
}

func NewViewChangeFailedError(message string) *ProtocolError {
	return New(ViewChangeFailed, message)
}

func NewChecksumMismatchError(message string) *ProtocolError {
	return New(ChecksumMismatch, message)
}

func NewInternalError(message string) *ProtocolError {
	return New(InternalError, message)
}

func NewConfigInvalidError(message string) *ProtocolError {
	return New(ConfigInvalid, message)
}

// IsProtocolError checks if an error is a ProtocolError and, if so,
// returns it.
func IsProtocolError(err error) (*ProtocolError, bool) {
	pErr, ok := err.(*ProtocolError)
	return pErr, ok
}

// Code returns the ErrorCode of err if it is a ProtocolError, or
// InternalError otherwise.
func Code(err error) ErrorCode {
	if pErr, ok := IsProtocolError(err); ok {
		return pErr.Code
	}
	return InternalError
}
