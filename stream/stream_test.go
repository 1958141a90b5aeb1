package stream_test

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rill/sched"
	"github.com/roach88/rill/stream"
	"github.com/roach88/rill/stream/streamtest"
)

var errBoom = errors.New("boom")

type step struct {
	at time.Duration
	v  int
}

// timed emits each value at its offset from the open and completes with the
// last one.
func timed(steps ...step) stream.Stream[int] {
	return stream.New(func(d *stream.Dispatcher[int]) {
		ctx := d.Callee()
		for i, st := range steps {
			last := i == len(steps)-1
			ctx.Schedule(nil, st.at, func() {
				if d.IsClosed() {
					return
				}
				d.Next(st.v)
				if last {
					d.Complete()
				}
			})
		}
	})
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, streamtest.MustCollect(stream.Of(1, 2, 3)))
	assert.Equal(t, []int{4}, streamtest.MustCollect(stream.Pure(4)))
	assert.Equal(t, []int{0, 1, 2, 3}, streamtest.MustCollect(stream.Range(0, 4)))
	assert.Equal(t, []string{"a", "b"}, streamtest.MustCollect(stream.FromSlice([]string{"a", "b"})))
	assert.Equal(t, []int{42}, streamtest.MustCollect(stream.Exec(func() int { return 42 })))
	assert.Empty(t, streamtest.MustCollect(stream.Done[int]()))
	assert.Empty(t, streamtest.MustCollect(stream.Range(3, 3)))

	vs, err := streamtest.Collect(stream.Fail[int](errBoom))
	assert.Empty(t, vs)
	assert.ErrorIs(t, err, errBoom)
}

func TestNever(t *testing.T) {
	v, ctx := newVirtual(t)

	rec := streamtest.Record(v, ctx, stream.Never[int]())
	v.Advance(time.Hour)

	assert.Empty(t, rec.Events())
	assert.False(t, rec.Done())
}

func TestStream_IsRestartable(t *testing.T) {
	opens := 0
	s := stream.New(func(d *stream.Dispatcher[int]) {
		opens++
		d.Flush(opens)
	})

	assert.Equal(t, []int{1}, streamtest.MustCollect(s))
	assert.Equal(t, []int{2}, streamtest.MustCollect(s))
}

func TestMapFilter(t *testing.T) {
	s := stream.Map(stream.Range(0, 6).Filter(func(x int) bool { return x%2 == 0 }), strconv.Itoa)
	assert.Equal(t, []string{"0", "2", "4"}, streamtest.MustCollect(s))

	assert.Equal(t, []string{"x", "x"}, streamtest.MustCollect(stream.MapTo(stream.Of(1, 2), "x")))
}

func TestMap_ForwardsFailure(t *testing.T) {
	s := stream.Map(stream.Concat(stream.Of(1), stream.Fail[int](errBoom)), func(x int) int { return x * 10 })

	vs, err := streamtest.Collect(s)
	assert.Equal(t, []int{10}, vs)
	assert.ErrorIs(t, err, errBoom)
}

func TestTakeSkip(t *testing.T) {
	src := stream.Range(1, 6)

	assert.Equal(t, []int{1, 2}, streamtest.MustCollect(src.Take(2)))
	assert.Empty(t, streamtest.MustCollect(src.Take(0)))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, streamtest.MustCollect(src.Take(10)))
	assert.Equal(t, []int{4, 5}, streamtest.MustCollect(src.Skip(3)))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, streamtest.MustCollect(src.Skip(0)))
	assert.Equal(t, []int{1, 2}, streamtest.MustCollect(src.TakeWhile(func(x int) bool { return x < 3 })))
	assert.Equal(t, []int{3, 4, 5}, streamtest.MustCollect(src.SkipWhile(func(x int) bool { return x < 3 })))
}

func TestFlatMapConcatFlatten(t *testing.T) {
	s := stream.FlatMap(stream.Of(1, 2, 3), func(x int) stream.Stream[int] { return stream.Of(x, x*10) })
	assert.Equal(t, []int{1, 10, 2, 20, 3, 30}, streamtest.MustCollect(s))

	assert.Equal(t, []int{1, 2, 3}, streamtest.MustCollect(stream.Concat(stream.Of(1, 2), stream.Done[int](), stream.Of(3))))

	nested := stream.Of(stream.Of("a"), stream.Of("b", "c"))
	assert.Equal(t, []string{"a", "b", "c"}, streamtest.MustCollect(stream.Flatten(nested)))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, streamtest.MustCollect(stream.MergeAll(nested)))
}

func TestFlatMap_InnerFailureStopsMerge(t *testing.T) {
	s := stream.FlatMap(stream.Of(1, 2, 3), func(x int) stream.Stream[int] {
		if x == 2 {
			return stream.Fail[int](errBoom)
		}
		return stream.Pure(x)
	})

	vs, err := streamtest.Collect(s)
	assert.Equal(t, []int{1}, vs)
	assert.ErrorIs(t, err, errBoom)
}

func TestFlatMapN_LimitsOpenInnerStreams(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		afterOpen  []int
		afterFirst []int
	}{
		{name: "sequential", limit: 1, afterOpen: []int{1}, afterFirst: []int{1, 2}},
		{name: "two at a time", limit: 2, afterOpen: []int{1, 2}, afterFirst: []int{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ctx := newVirtual(t)

			inners := map[int]*stream.Dispatcher[int]{}
			s := stream.FlatMapN(stream.Of(1, 2, 3), tt.limit, func(x int) stream.Stream[int] {
				return stream.New(func(d *stream.Dispatcher[int]) {
					inners[x] = d
					d.Next(x)
				})
			})
			rec := streamtest.Record(v, ctx, s)

			v.ConsumeAll()
			assert.Equal(t, tt.afterOpen, rec.Values())
			assert.Len(t, inners, len(tt.afterOpen))

			inners[1].Complete()
			v.ConsumeAll()
			assert.Equal(t, tt.afterFirst, rec.Values())

			for x := 2; x <= 3; x++ {
				require.False(t, rec.Done())
				inners[x].Complete()
				v.ConsumeAll()
			}
			assert.Equal(t, []int{1, 2, 3}, rec.Values())
			assert.True(t, rec.Done())
			assert.NoError(t, rec.Err())
			assert.Equal(t, 1, v.LiveContexts())
		})
	}
}

func TestMerge_CloseClosesInnerStreams(t *testing.T) {
	v, ctx := newVirtual(t)

	closed := 0
	s := stream.MergeMap(stream.Of(1, 2), func(x int) stream.Stream[int] {
		return stream.Repeat(x, time.Second).OnClose(func() { closed++ })
	})
	rec := streamtest.Record(v, ctx, s)
	v.Advance(2 * time.Second)
	assert.ElementsMatch(t, []int{1, 2, 1, 2}, rec.Values())

	rec.Close()
	v.Advance(5 * time.Second)

	assert.Len(t, rec.Values(), 4)
	assert.Equal(t, 2, closed)
	assert.Equal(t, 1, v.LiveContexts())
}

func TestZip(t *testing.T) {
	tests := []struct {
		name string
		a    stream.Stream[int]
		b    stream.Stream[string]
		want []stream.Pair[int, string]
	}{
		{
			name: "equal length",
			a:    stream.Of(1, 2),
			b:    stream.Of("a", "b"),
			want: []stream.Pair[int, string]{stream.MakePair(1, "a"), stream.MakePair(2, "b")},
		},
		{
			name: "longer left is truncated",
			a:    stream.Of(1, 2, 3),
			b:    stream.Of("a"),
			want: []stream.Pair[int, string]{stream.MakePair(1, "a")},
		},
		{
			name: "longer right is truncated",
			a:    stream.Of(1),
			b:    stream.Of("a", "b"),
			want: []stream.Pair[int, string]{stream.MakePair(1, "a")},
		},
		{
			name: "empty side",
			a:    stream.Done[int](),
			b:    stream.Of("a"),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, streamtest.MustCollect(stream.Zip(tt.a, tt.b)))
		})
	}
}

func TestSeq(t *testing.T) {
	s := stream.Seq(stream.Of(1, 2), stream.Of(3, 4), stream.Of(5, 6, 7))
	assert.Equal(t, [][]int{{1, 3, 5}, {2, 4, 6}}, streamtest.MustCollect(s))

	assert.Equal(t, [][]int{{}}, streamtest.MustCollect(stream.Seq[int]()))
}

func TestCombineLatest(t *testing.T) {
	v, ctx := newVirtual(t)

	a := timed(step{time.Second, 1}, step{3 * time.Second, 3})
	b := timed(step{2 * time.Second, 2}, step{4 * time.Second, 4})
	rec := streamtest.Record(v, ctx, stream.CombineLatest(a, b))
	v.Advance(10 * time.Second)

	assert.Equal(t, []stream.Pair[int, int]{
		stream.MakePair(1, 2),
		stream.MakePair(3, 2),
		stream.MakePair(3, 4),
	}, rec.Values())
	assert.Equal(t, []stream.Pair[int, int]{stream.MakePair(3, 2)}, rec.ValuesAt(3*time.Second))

	last := rec.Events()[len(rec.Events())-1]
	assert.Equal(t, stream.KindCompleted, last.Event.Kind)
	assert.Equal(t, 4*time.Second, last.At)
}

func TestDistinctFoldCompact(t *testing.T) {
	assert.Equal(t, []int{1, 2, 1}, streamtest.MustCollect(stream.Distinct(stream.Of(1, 1, 2, 2, 1))))

	sum := stream.Fold(stream.Range(1, 5), 0, func(acc, x int) int { return acc + x })
	assert.Equal(t, []int{10}, streamtest.MustCollect(sum))

	joined := stream.Fold(stream.Done[string](), "init", func(acc, x string) string { return acc + x })
	assert.Equal(t, []string{"init"}, streamtest.MustCollect(joined))

	opts := stream.Of(stream.Some(1), stream.None[int](), stream.Some(3))
	assert.Equal(t, []int{1, 3}, streamtest.MustCollect(stream.Compact(opts)))
}

func TestFold_ForwardsFailure(t *testing.T) {
	s := stream.Fold(stream.Concat(stream.Of(1), stream.Fail[int](errBoom)), 0, func(acc, x int) int { return acc + x })

	vs, err := streamtest.Collect(s)
	assert.Empty(t, vs)
	assert.ErrorIs(t, err, errBoom)
}

func TestRace(t *testing.T) {
	vs := streamtest.MustCollect(stream.Race(stream.Of(1, 2), stream.Of("a")))
	require.Len(t, vs, 3)

	var lefts []int
	var rights []string
	for _, e := range vs {
		if r, ok := e.Right(); ok {
			rights = append(rights, r)
			continue
		}
		l, _ := e.Left()
		lefts = append(lefts, l)
	}
	assert.Equal(t, []int{1, 2}, lefts)
	assert.Equal(t, []string{"a"}, rights)
}

func TestRecoverContinueWith(t *testing.T) {
	failing := stream.Concat(stream.Of(1), stream.Fail[int](errBoom))

	recovered := failing.Recover(func(err error) stream.Stream[int] {
		assert.ErrorIs(t, err, errBoom)
		return stream.Of(9)
	})
	assert.Equal(t, []int{1, 9}, streamtest.MustCollect(recovered))

	// Completion passes through Recover untouched.
	assert.Equal(t, []int{1}, streamtest.MustCollect(stream.Of(1).Recover(func(error) stream.Stream[int] {
		return stream.Of(9)
	})))

	// Failures of the replacement are not recovered.
	_, err := streamtest.Collect(failing.Recover(func(error) stream.Stream[int] {
		return stream.Fail[int](errors.New("again"))
	}))
	assert.EqualError(t, err, "again")

	continued := stream.Of(1).ContinueWith(func() stream.Stream[int] { return stream.Of(2, 3) })
	assert.Equal(t, []int{1, 2, 3}, streamtest.MustCollect(continued))

	vs, err := streamtest.Collect(stream.Of(1).FailOnDone(errBoom))
	assert.Equal(t, []int{1}, vs)
	assert.ErrorIs(t, err, errBoom)
}

func TestOnCloseForeach_CountsPerRun(t *testing.T) {
	var passed1, passed2, closed1, closed2 int
	s := stream.Of(0, 1, 2, 3, 4, 5, 6, 7, 8, 9).
		Foreach(func(int) { passed1++ }).
		OnClose(func() { closed1++ }).
		Skip(2).
		Take(3).
		Foreach(func(int) { passed2++ }).
		OnClose(func() { closed2++ })

	for run := 1; run <= 2; run++ {
		passed1, passed2, closed1, closed2 = 0, 0, 0, 0

		assert.Equal(t, []int{2, 3, 4}, streamtest.MustCollect(s))
		// Take closes the upstream synchronously, so no value past 4 is pulled.
		assert.Equal(t, 5, passed1, "run %d", run)
		assert.Equal(t, 3, passed2, "run %d", run)
		assert.Equal(t, 1, closed1, "run %d", run)
		assert.Equal(t, 1, closed2, "run %d", run)
	}
}

func TestOnClose_RunsWhenConsumerCloses(t *testing.T) {
	v, ctx := newVirtual(t)

	closed := 0
	rec := streamtest.Record(v, ctx, stream.Never[int]().OnClose(func() { closed++ }))
	v.ConsumeAll()
	assert.Equal(t, 0, closed)

	rec.Close()
	v.ConsumeAll()
	assert.Equal(t, 1, closed)
}

func TestRepeat(t *testing.T) {
	v, ctx := newVirtual(t)

	rec := streamtest.Record(v, ctx, stream.Repeat(7, 2*time.Second))
	v.Advance(5 * time.Second)

	assert.Equal(t, []int{7, 7}, rec.Values())
	assert.Equal(t, []int{7}, rec.ValuesAt(2*time.Second))
	assert.Equal(t, []int{7}, rec.ValuesAt(4*time.Second))

	rec.Close()
	v.Advance(10 * time.Second)

	assert.Len(t, rec.Values(), 2)
	assert.False(t, rec.Done())
	assert.Equal(t, 0, v.Pending())
	assert.Equal(t, 1, v.LiveContexts())
}

func TestTake_ClosesInfiniteUpstream(t *testing.T) {
	v, ctx := newVirtual(t)

	upstreamClosed := 0
	s := stream.Repeat(1, 2*time.Second).OnClose(func() { upstreamClosed++ }).Take(3)
	rec := streamtest.Record(v, ctx, s)
	v.Advance(20 * time.Second)

	events := rec.Events()
	require.Len(t, events, 4)
	for i, want := range []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second} {
		assert.Equal(t, want, events[i].At)
		assert.Equal(t, stream.KindValue, events[i].Event.Kind)
	}
	assert.Equal(t, stream.KindCompleted, events[3].Event.Kind)
	assert.Equal(t, 6*time.Second, events[3].At)

	assert.Equal(t, 1, upstreamClosed)
	assert.Equal(t, 0, v.Pending())
	assert.Equal(t, 1, v.LiveContexts())
}

func TestTimeout(t *testing.T) {
	v, ctx := newVirtual(t)

	rec := streamtest.Record(v, ctx, stream.Timeout(3*time.Second, "late"))
	v.Advance(2 * time.Second)
	assert.Empty(t, rec.Values())

	v.Advance(time.Second)
	assert.Equal(t, []string{"late"}, rec.ValuesAt(3*time.Second))
	assert.True(t, rec.Done())
}

func TestDelay(t *testing.T) {
	v, ctx := newVirtual(t)

	rec := streamtest.Record(v, ctx, stream.Of(1, 2, 3).Delay(2*time.Second))
	v.Advance(time.Second)
	assert.Empty(t, rec.Values())

	v.Advance(5 * time.Second)
	assert.Equal(t, []int{1, 2, 3}, rec.ValuesAt(2*time.Second))
	require.True(t, rec.Done())
	assert.Equal(t, 2*time.Second, rec.Events()[3].At)
}

func TestThrottle(t *testing.T) {
	v, ctx := newVirtual(t)

	src := timed(step{0, 1}, step{time.Second, 2}, step{5 * time.Second, 3})
	rec := streamtest.Record(v, ctx, src.Throttle(2*time.Second))
	v.Advance(10 * time.Second)

	assert.Equal(t, []int{2, 3}, rec.Values())
	assert.Equal(t, []int{2}, rec.ValuesAt(3*time.Second))
	assert.Equal(t, []int{3}, rec.ValuesAt(7*time.Second))
	require.True(t, rec.Done())
	assert.Equal(t, 7*time.Second, rec.Events()[2].At)
	assert.Equal(t, 1, v.LiveContexts())
}

func TestSwitchMap_ForwardsLatestInner(t *testing.T) {
	v, ctx := newVirtual(t)

	src := timed(step{0, 1}, step{3 * time.Second, 2})
	s := stream.SwitchMap(src, func(x int) stream.Stream[int] {
		return stream.Map(stream.Repeat(x, 2*time.Second), func(y int) int { return y * 10 }).Take(2)
	})
	rec := streamtest.Record(v, ctx, s)
	v.Advance(20 * time.Second)

	// 10 at 2s; the second tick of 1 would land at 4s but 2 switched at 3s.
	assert.Equal(t, []int{10, 20, 20}, rec.Values())
	assert.Equal(t, []int{20}, rec.ValuesAt(5*time.Second))
	assert.Equal(t, []int{20}, rec.ValuesAt(7*time.Second))
	assert.True(t, rec.Done())
}

func TestSample(t *testing.T) {
	v, ctx := newVirtual(t)

	src := timed(step{3 * time.Second, 5}, step{9 * time.Second, 6})
	rec := streamtest.Record(v, ctx, stream.Sample(src, stream.Repeat(struct{}{}, 2*time.Second).Take(3)))
	v.Advance(20 * time.Second)

	assert.Equal(t, []stream.Option[int]{stream.None[int](), stream.Some(5), stream.Some(5)}, rec.Values())
	assert.True(t, rec.Done())
	assert.Equal(t, 1, v.LiveContexts(), "sampled stream closed with the tick")
}

func TestSampleEvery(t *testing.T) {
	v, ctx := newVirtual(t)

	src := timed(step{time.Second, 1}, step{3 * time.Second, 2})
	rec := streamtest.Record(v, ctx, stream.SampleEvery(src, 2*time.Second).Take(2))
	v.Advance(10 * time.Second)

	assert.Equal(t, []stream.Option[int]{stream.Some(1), stream.Some(2)}, rec.Values())
}

func TestTakeUntil(t *testing.T) {
	t.Run("notifier value completes", func(t *testing.T) {
		v, ctx := newVirtual(t)

		s := stream.TakeUntil(stream.Repeat(1, time.Second), stream.Timeout(3500*time.Millisecond, "stop"))
		rec := streamtest.Record(v, ctx, s)
		v.Advance(10 * time.Second)

		assert.Equal(t, []int{1, 1, 1}, rec.Values())
		require.True(t, rec.Done())
		assert.Equal(t, 3500*time.Millisecond, rec.Events()[3].At)
		assert.Equal(t, 0, v.Pending())
	})

	t.Run("notifier completion is ignored", func(t *testing.T) {
		assert.Equal(t, []int{1, 2}, streamtest.MustCollect(stream.TakeUntil(stream.Of(1, 2), stream.Done[string]())))
	})

	t.Run("notifier failure is forwarded", func(t *testing.T) {
		_, err := streamtest.Collect(stream.TakeUntil(stream.Never[int](), stream.Fail[int](errBoom)))
		assert.ErrorIs(t, err, errBoom)
	})
}

func TestPackUnpack(t *testing.T) {
	src := stream.Concat(stream.Of(1), stream.Fail[int](errBoom))

	packed := streamtest.MustCollect(stream.Pack(src))
	require.Len(t, packed, 2)
	assert.Equal(t, "value(1)", packed[0].String())
	assert.Equal(t, stream.KindFailure, packed[1].Kind)

	vs, err := streamtest.Collect(stream.Unpack(stream.Pack(src)))
	assert.Equal(t, []int{1}, vs)
	assert.ErrorIs(t, err, errBoom)
}

func TestIsolated_RunsEachValueOnItsOwnActor(t *testing.T) {
	s := stream.Isolated(stream.Of(1, 2), []sched.Property{sched.Isolated()},
		func(in stream.Stream[int]) stream.Stream[stream.Pair[int, sched.Context]] {
			return stream.WithContext(in)
		})

	pairs := streamtest.MustCollect(s)
	require.Len(t, pairs, 2)

	assert.Equal(t, 1, pairs[0].First)
	assert.Equal(t, 2, pairs[1].First)
	for _, p := range pairs {
		assert.True(t, strings.HasPrefix(p.Second.PID().Name, "iso"), p.Second.PID().Name)
		assert.NotEqual(t, sched.MainActor, p.Second.PID())
	}
	assert.NotEqual(t, pairs[0].Second.PID(), pairs[1].Second.PID())
}

func TestWithContext_RunsOnCallerActor(t *testing.T) {
	pairs := streamtest.MustCollect(stream.WithContext(stream.Of("x")))
	require.Len(t, pairs, 1)
	assert.Equal(t, sched.MainActor, pairs[0].Second.PID())
}

func TestParMap(t *testing.T) {
	vs := streamtest.MustCollect(stream.ParMap(stream.Of(1, 2, 3), func(x int) int { return x * x }))
	assert.ElementsMatch(t, []int{1, 4, 9}, vs)
}

func TestPipe_SeesCalleeContext(t *testing.T) {
	var seen sched.PID
	s := stream.Pipe(func(d *stream.Dispatcher[int]) stream.Stream[int] {
		seen = d.Callee().PID()
		return stream.Of(1)
	}, sched.Actor(sched.Named("pipe")))

	assert.Equal(t, []int{1}, streamtest.MustCollect(s))
	assert.Equal(t, sched.Named("pipe"), seen)
}

func TestZipWith(t *testing.T) {
	pairs := streamtest.MustCollect(stream.ZipWith(stream.Of(1, 2), "x"))
	assert.Equal(t, []stream.Pair[int, string]{stream.MakePair(1, "x"), stream.MakePair(2, "x")}, pairs)
}

func TestBarrier_DropsValuesWhileAGateIsOpen(t *testing.T) {
	v, ctx := newVirtual(t)

	src := timed(step{0, 1}, step{2 * time.Second, 2}, step{6 * time.Second, 3})
	gates := stream.Map(stream.Timeout(time.Second, 0), func(int) stream.Stream[int] {
		return stream.Timeout(3*time.Second, 100)
	})
	rec := streamtest.Record(v, ctx, stream.Barrier(src, gates))
	v.Advance(10 * time.Second)

	// The gate is open from 1s to 4s, so 2 is dropped.
	assert.Equal(t, []int{1, 100, 3}, rec.Values())
	assert.Equal(t, []int{100}, rec.ValuesAt(4*time.Second))
	require.True(t, rec.Done())
	assert.Equal(t, 6*time.Second, rec.Events()[3].At)
	assert.Equal(t, 1, v.LiveContexts())
}
