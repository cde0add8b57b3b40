package chaos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/internal/bus"
	"matchbook/internal/schema"
)

func event(seq uint64) bus.Event {
	return bus.Event{Header: schema.NewHeader(schema.EventTrade, 1, seq, int64(seq)*1000, 0)}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		desc string
		cfg  Config
	}{
		{"negative drop rate", Config{DropRate: -0.1, ReorderWindow: 1}},
		{"drop rate above one", Config{DropRate: 1.5, ReorderWindow: 1}},
		{"duplicate rate above one", Config{DuplicateRate: 2, ReorderWindow: 1}},
		{"negative delay", Config{MaxDelay: -time.Second, ReorderWindow: 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := NewEngine(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestPassThrough(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1})
	require.NoError(t, err)

	for seq := uint64(1); seq <= 10; seq++ {
		out := e.Process(event(seq))
		require.Len(t, out, 1)
		assert.Equal(t, seq, out[0].Header.Seq)
	}
	assert.Empty(t, e.Flush())
}

func TestDropRate(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, DropRate: 1})
	require.NoError(t, err)

	for seq := uint64(1); seq <= 100; seq++ {
		assert.Empty(t, e.Process(event(seq)))
	}
}

func TestDuplicateRate(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, DuplicateRate: 1})
	require.NoError(t, err)

	out := e.Process(event(7))
	require.Len(t, out, 2)
	assert.Equal(t, out[0].Header.Seq, out[1].Header.Seq)
}

func TestReorderWindowHoldsAndReleasesAll(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, ReorderWindow: 4})
	require.NoError(t, err)

	const total = 20
	seen := map[uint64]int{}
	for seq := uint64(1); seq <= total; seq++ {
		for _, out := range e.Process(event(seq)) {
			seen[out.Header.Seq]++
		}
	}
	for _, out := range e.Flush() {
		seen[out.Header.Seq]++
	}

	require.Len(t, seen, total)
	for seq := uint64(1); seq <= total; seq++ {
		assert.Equal(t, 1, seen[seq], "seq %d", seq)
	}
}

func TestDelayMovesOnlyRecvTime(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, MaxDelay: time.Second})
	require.NoError(t, err)

	in := event(1)
	in.Header.TsRecv = in.Header.TsEvent
	var moved bool
	for i := 0; i < 50 && !moved; i++ {
		out := e.Process(in)
		require.Len(t, out, 1)
		assert.Equal(t, in.Header.TsEvent, out[0].Header.TsEvent)
		assert.GreaterOrEqual(t, out[0].Header.TsRecv, in.Header.TsRecv)
		moved = out[0].Header.TsRecv > in.Header.TsRecv
	}
	assert.True(t, moved, "delay never applied across 50 events")
}

func TestSameSeedSameStream(t *testing.T) {
	cfg := Config{Seed: 99, DropRate: 0.3, DuplicateRate: 0.2, ReorderWindow: 3}
	a, err := NewEngine(cfg)
	require.NoError(t, err)
	b, err := NewEngine(cfg)
	require.NoError(t, err)

	for seq := uint64(1); seq <= 200; seq++ {
		require.Equal(t, a.Process(event(seq)), b.Process(event(seq)))
	}
	require.Equal(t, a.Flush(), b.Flush())
}
