package stream_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rill/internal/testutil"
	"github.com/roach88/rill/sched"
	"github.com/roach88/rill/stream"
)

func newProduction(t *testing.T) (*sched.Executor, sched.Context) {
	t.Helper()
	e := sched.NewExecutor(sched.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e, e.NewContext()
}

// collectOn subscribes to s on ctx and waits for its terminal event. The
// handler runs on ctx's actor; the channel close publishes its results.
func collectOn[T any](t *testing.T, e *sched.Executor, ctx sched.Context, s stream.Stream[T]) ([]T, error) {
	t.Helper()
	var (
		vs  []T
		err error
	)
	done := make(chan struct{})
	require.NoError(t, e.Do(ctx, func() {
		s.Subscribe(ctx, func(ev stream.Event[T]) {
			ctx.AssertCurrent()
			switch ev.Kind {
			case stream.KindValue:
				vs = append(vs, ev.Value)
			case stream.KindFailure:
				err = ev.Err
				close(done)
			default:
				close(done)
			}
		})
	}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate")
	}
	return vs, err
}

func requireActorsSettle(t *testing.T, e *sched.Executor, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return e.Actors() == want }, 5*time.Second, 5*time.Millisecond,
		"derived contexts were not all closed")
}

func TestExecutor_FlatMapNWithParMap(t *testing.T) {
	e, ctx := newProduction(t)

	var calls atomic.Int32
	s := stream.FlatMapN(stream.Range(0, 20), 3, func(x int) stream.Stream[int] {
		return stream.ParMap(stream.Of(x, x+100), func(y int) int {
			calls.Add(1)
			return y * 2
		})
	})

	vs, err := collectOn(t, e, ctx, s)
	require.NoError(t, err)

	var want []int
	for x := 0; x < 20; x++ {
		want = append(want, 2*x, 2*(x+100))
	}
	assert.ElementsMatch(t, want, vs)
	assert.Equal(t, int32(40), calls.Load())
	requireActorsSettle(t, e, 1)
}

func TestExecutor_SwitchMapWithIsolatedInners(t *testing.T) {
	e, ctx := newProduction(t)

	var closedInners atomic.Int32
	s := stream.SwitchMap(stream.Of(1, 2, 3), func(x int) stream.Stream[int] {
		return stream.Pipe(func(*stream.Dispatcher[int]) stream.Stream[int] {
			if x < 3 {
				return stream.Never[int]().OnClose(func() { closedInners.Add(1) })
			}
			return stream.Of(x*10, x*10+1)
		}, sched.Isolated())
	})

	vs, err := collectOn(t, e, ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []int{30, 31}, vs)

	require.Eventually(t, func() bool { return closedInners.Load() == 2 }, 5*time.Second, 5*time.Millisecond)
	requireActorsSettle(t, e, 1)
}

func TestExecutor_IsolatedHopsBackToCaller(t *testing.T) {
	e, ctx := newProduction(t)

	s := stream.Isolated(stream.Of(1, 2, 3), []sched.Property{sched.Isolated()},
		func(in stream.Stream[int]) stream.Stream[stream.Pair[int, sched.Context]] {
			return stream.WithContext(in)
		})

	pairs, err := collectOn(t, e, ctx, s)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	for i, p := range pairs {
		assert.Equal(t, i+1, p.First, "isolated stages keep outer order")
		assert.NotEqual(t, ctx.PID(), p.Second.PID())
	}
}

func TestExecutor_Bimap(t *testing.T) {
	e, ctx := newProduction(t)

	a := stream.NewSubject(1)
	var b *stream.Subject[int]
	require.NoError(t, e.Do(ctx, func() {
		b = stream.Bimap(a, func(x int) int { return x * 2 }, func(y int) int { return y / 2 }, ctx)
	}))
	assert.Equal(t, 2, b.Value())

	a.Set(5)
	require.Eventually(t, func() bool { return b.Value() == 10 }, 5*time.Second, 5*time.Millisecond)

	b.Set(8)
	require.Eventually(t, func() bool { return a.Value() == 4 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 8, b.Value())
}

func TestExecutor_BimapOffActorIsViolation(t *testing.T) {
	_, ctx := newProduction(t)

	a := stream.NewSubject(1)
	testutil.RequireViolation(t, sched.ErrCodeActorMismatch, func() {
		stream.Bimap(a, func(x int) int { return x }, func(y int) int { return y }, ctx)
	})
}
