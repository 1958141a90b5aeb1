package stream_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rill/stream"
	"github.com/roach88/rill/stream/streamtest"
)

type keyed = stream.Pair[string, int]

func parity(x int) string {
	if x%2 == 0 {
		return "even"
	}
	return "odd"
}

// groupSink subscribes to every group a grouped stream emits.
type groupSink struct {
	keys      []string
	values    map[string][]int
	terminals map[string]stream.Kind
	channels  map[string]stream.Channel[keyed]

	// onValue runs after a value is recorded.
	onValue func(key string, v int)
}

func newGroupSink() *groupSink {
	return &groupSink{
		values:    make(map[string][]int),
		terminals: make(map[string]stream.Kind),
		channels:  make(map[string]stream.Channel[keyed]),
	}
}

func (g *groupSink) attach(rec *streamtest.Recorder[stream.Channel[keyed]]) {
	rec.OnEvent(func(r streamtest.Recorded[stream.Channel[keyed]]) {
		if r.Event.Kind != stream.KindValue {
			return
		}
		ch := r.Event.Value
		var key string
		ch.Subscribe(func(e stream.Event[keyed]) {
			if e.Kind != stream.KindValue {
				g.terminals[key] = e.Kind
				return
			}
			if key == "" {
				key = e.Value.First
				g.keys = append(g.keys, key)
				g.channels[key] = ch
			}
			g.values[key] = append(g.values[key], e.Value.Second)
			if g.onValue != nil {
				g.onValue(key, e.Value.Second)
			}
		})
	})
}

func TestGroupBy(t *testing.T) {
	v, ctx := newVirtual(t)

	sink := newGroupSink()
	rec := streamtest.Record(v, ctx, stream.GroupBy(stream.Of(1, 2, 3, 4, 5), parity))
	sink.attach(rec)
	v.ConsumeAll()

	assert.Len(t, rec.Values(), 2, "one channel per key")
	assert.Equal(t, []string{"odd", "even"}, sink.keys)
	assert.Equal(t, []int{1, 3, 5}, sink.values["odd"])
	assert.Equal(t, []int{2, 4}, sink.values["even"])
	assert.Equal(t, stream.KindCompleted, sink.terminals["odd"])
	assert.Equal(t, stream.KindCompleted, sink.terminals["even"])
	assert.True(t, rec.Done())
	assert.Equal(t, 1, v.LiveContexts(), "group contexts are released")
}

func TestGroupBy_FailureReachesEveryGroup(t *testing.T) {
	v, ctx := newVirtual(t)

	sink := newGroupSink()
	src := stream.Concat(stream.Of(1, 2), stream.Fail[int](errBoom))
	rec := streamtest.Record(v, ctx, stream.GroupBy(src, parity))
	sink.attach(rec)
	v.ConsumeAll()

	assert.Equal(t, stream.KindFailure, sink.terminals["odd"])
	assert.Equal(t, stream.KindFailure, sink.terminals["even"])
	assert.ErrorIs(t, rec.Err(), errBoom)
}

func TestGroupBy_ClosedGroupDropsItsKey(t *testing.T) {
	v, ctx := newVirtual(t)

	sink := newGroupSink()
	sink.onValue = func(key string, _ int) {
		if key == "odd" {
			sink.channels[key].Close()
		}
	}
	rec := streamtest.Record(v, ctx, stream.GroupBy(stream.Of(1, 2, 3, 4, 5), parity))
	sink.attach(rec)
	v.ConsumeAll()

	assert.Equal(t, []int{1}, sink.values["odd"])
	assert.Equal(t, []int{2, 4}, sink.values["even"])
	assert.NotContains(t, sink.terminals, "odd", "a closed group gets no terminal")
	assert.True(t, rec.Done())
}

func TestGroupBy_CloseCompletesGroups(t *testing.T) {
	v, ctx := newVirtual(t)

	sink := newGroupSink()
	src := timed(step{0, 1}, step{5 * time.Second, 2})
	rec := streamtest.Record(v, ctx, stream.GroupBy(src, parity))
	sink.attach(rec)
	v.Advance(time.Second)
	require.Equal(t, []string{"odd"}, sink.keys)

	rec.Close()
	v.Advance(10 * time.Second)

	assert.Equal(t, stream.KindCompleted, sink.terminals["odd"])
	assert.NotContains(t, sink.values, "even")
	assert.Equal(t, 1, v.LiveContexts())
}
