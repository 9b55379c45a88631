package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, 2, NewConfigInvalidError("bad N").ExitCode())
	assert.Equal(t, 3, NewChecksumMismatchError("fork").ExitCode())
	assert.Equal(t, 1, NewViewChangeFailedError("no quorum").ExitCode())
	assert.Equal(t, 1, NewOutOfWindowError("seq too high").ExitCode())
}

func TestBuilderChain(t *testing.T) {
	err := NewConflictingPrePrepareError("digest mismatch").
		WithView(3).WithSeq(42).WithReplicaID(1).
		WithField("digest", "mismatch").
		WithMetadata("received_from", uint32(2))

	assert.Equal(t, ConflictingPrePrepare, err.Code)
	assert.Equal(t, uint64(3), err.View)
	assert.Equal(t, uint64(42), err.Seq)
	assert.Equal(t, uint32(1), err.ReplicaID)
	assert.Equal(t, "mismatch", err.Fields["digest"])
	assert.Equal(t, uint32(2), err.Metadata["received_from"])
}

func TestIsProtocolErrorAndCode(t *testing.T) {
	var err error = NewOutOfWindowError("seq 500 outside window")
	pErr, ok := IsProtocolError(err)
	assert.True(t, ok)
	assert.Equal(t, OutOfWindow, pErr.Code)
	assert.Equal(t, OutOfWindow, Code(err))

	assert.Equal(t, InternalError, Code(assert.AnError))
}
