package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordDoesNotPanic(t *testing.T) {
	m := New()
	m.RecordRequest("accepted")
	m.RecordPrePrepare()
	m.RecordPrepare()
	m.RecordCommit(5 * time.Millisecond)
	m.RecordReply()
	m.RecordReplyCacheHit()
	m.RecordViewChange(3)
	m.RecordPrimaryNotDominant()
	m.RecordCheckpoint()
	m.RecordCheckpointStable()
	m.SetWatermark(100, 200)
	m.RecordForkDetected()
	m.RecordRejectedMessage("OUT_OF_WINDOW")

	assert.NotNil(t, m.Registry())
}
