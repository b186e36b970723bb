// internal/storage/memory/memory_test.go
package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeroduel/plane/pkg/core"
)

func TestInitAndClose(t *testing.T) {
	b := New(0)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
}

func TestRecordAssignsIDs(t *testing.T) {
	b := New(0)

	c1 := &core.CombatRecord{Outcome: "hit_sent"}
	c2 := &core.CombatRecord{Outcome: "life_lost"}
	m1 := &core.MatchRecord{Active: true}

	require.NoError(t, b.RecordCombat(c1))
	require.NoError(t, b.RecordCombat(c2))
	require.NoError(t, b.RecordMatch(m1))

	assert.Equal(t, uint(1), c1.ID)
	assert.Equal(t, uint(2), c2.ID)
	assert.Equal(t, uint(1), m1.ID)
	assert.Equal(t, 3, b.Len())
}

func TestEvents_NewestFirst(t *testing.T) {
	b := New(0)
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, b.RecordMatch(&core.MatchRecord{Time: base, Active: true}))
	require.NoError(t, b.RecordCombat(&core.CombatRecord{Time: base.Add(time.Second), Outcome: "hit_sent"}))
	require.NoError(t, b.RecordCombat(&core.CombatRecord{Time: base.Add(2 * time.Second), Outcome: "ack_received"}))

	all, err := b.Events(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, core.KindCombat, all[0].Kind)
	assert.Equal(t, "ack_received", all[0].Combat.Outcome)
	assert.Equal(t, core.KindMatch, all[2].Kind)
	assert.True(t, all[2].Match.Active)
	assert.Nil(t, all[2].Combat)

	two, err := b.Events(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
	assert.Equal(t, "hit_sent", two[1].Combat.Outcome)
}

func TestEvents_Empty(t *testing.T) {
	events, err := New(0).Events(10)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestMaxEntries_DropsOldest(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordCombat(&core.CombatRecord{Seq: uint32(i)}))
	}

	events, err := b.Events(0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, uint32(4), events[0].Combat.Seq)
	assert.Equal(t, uint32(2), events[2].Combat.Seq)
}

func TestRecordCopiesRecord(t *testing.T) {
	b := New(0)
	rec := &core.CombatRecord{Outcome: "hit_sent"}
	require.NoError(t, b.RecordCombat(rec))

	rec.Outcome = "changed"

	events, _ := b.Events(1)
	assert.Equal(t, "hit_sent", events[0].Combat.Outcome)
}

func TestConcurrentRecording(t *testing.T) {
	b := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = b.RecordCombat(&core.CombatRecord{})
				_, _ = b.Events(5)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, b.Len())
}
