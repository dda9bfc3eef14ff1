package rsihost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStateStoreSeedsMinResponseSentinel(t *testing.T) {
	s := newStateStore()
	assert.Equal(t, minResponseSentinel, s.snapshotStatistics().MinResponseTimeMs)
}

func TestApplyDatagramUpdatesCartesianOnly(t *testing.T) {
	s := newStateStore()
	cart := cartesianFields{X: 1, Y: 2, Z: 3, A: 4, B: 5, C: 6}
	_, cartParsed, jntParsed := s.applyDatagram(42, 1000, cart, true, jointFields{}, false)

	assert.True(t, cartParsed)
	assert.False(t, jntParsed)

	got := s.snapshotCartesian()
	assert.Equal(t, 1.0, got.X)
	assert.Equal(t, uint64(42), got.IPOC)
	assert.Equal(t, uint64(1000), got.TimestampUs)

	assert.Equal(t, JointPosition{}, s.snapshotJoints())
}

func TestSetCorrectionPersistsUntilOverwritten(t *testing.T) {
	s := newStateStore()
	s.setCorrection(CartesianCorrection{X: 1})
	_, _, _ = s.applyDatagram(1, 1, cartesianFields{}, true, jointFields{}, false)
	_, _, _ = s.applyDatagram(2, 2, cartesianFields{}, true, jointFields{}, false)

	correction, _, _ := s.applyDatagram(3, 3, cartesianFields{}, true, jointFields{}, false)
	assert.Equal(t, 1.0, correction.X)
}

func TestRecordSendTracksMinMaxAvg(t *testing.T) {
	s := newStateStore()
	s.recordSend(1.0)
	s.recordSend(3.0)
	s.recordSend(2.0)
	stats := s.snapshotStatistics()

	assert.Equal(t, uint64(3), stats.PacketsReceived)
	assert.Equal(t, uint64(3), stats.PacketsSent)
	assert.Equal(t, 1.0, stats.MinResponseTimeMs)
	assert.Equal(t, 3.0, stats.MaxResponseTimeMs)
	assert.InDelta(t, 2.0, stats.AvgResponseTimeMs, 0.001)
}

func TestRecordSendFlagsLateResponse(t *testing.T) {
	s := newStateStore()
	late := s.recordSend(5.0)
	assert.True(t, late)
	assert.Equal(t, uint64(1), s.snapshotStatistics().LateResponses)
}

func TestRecordSendNotLateUnderLimit(t *testing.T) {
	s := newStateStore()
	late := s.recordSend(3.9)
	assert.False(t, late)
	assert.Equal(t, uint64(0), s.snapshotStatistics().LateResponses)
}

func TestMarkConnectedOnlyTransitionsOnce(t *testing.T) {
	s := newStateStore()
	assert.True(t, s.markConnected())
	assert.False(t, s.markConnected())
	assert.True(t, s.isConnected())
}

func TestMarkDisconnectedCountsEachLoss(t *testing.T) {
	s := newStateStore()
	s.markConnected()
	assert.True(t, s.markDisconnected())
	assert.False(t, s.markDisconnected())

	s.markConnected()
	s.markDisconnected()
	assert.Equal(t, uint64(2), s.snapshotStatistics().ConnectionLostCount)
}
