package tracecap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorderSnapshotBeforeFull(t *testing.T) {
	r := New(4)
	r.Record(Sample{X: 1, IPOC: 1})
	r.Record(Sample{X: 2, IPOC: 2})

	got := r.Snapshot()
	assert.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].IPOC)
	assert.Equal(t, uint64(2), got[1].IPOC)
}

func TestRecorderOverwritesOldestOnceFull(t *testing.T) {
	r := New(3)
	for i := uint64(1); i <= 5; i++ {
		r.Record(Sample{IPOC: i})
	}

	got := r.Snapshot()
	assert.Len(t, got, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{got[0].IPOC, got[1].IPOC, got[2].IPOC})
}
