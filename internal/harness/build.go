package harness

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/rill/stream"
)

// builder turns scenario declarations into streams of int64. Durations in
// ticks are scaled by tick.
type builder struct {
	tick time.Duration
}

func (b builder) ticks(n int64) time.Duration {
	return time.Duration(n) * b.tick
}

// pipeline builds the source of s with every op applied.
func (b builder) pipeline(s *Scenario) (stream.Stream[int64], error) {
	out, err := b.source(s.Source)
	if err != nil {
		return out, fmt.Errorf("source: %w", err)
	}
	for i, op := range s.Ops {
		out, err = b.apply(out, op)
		if err != nil {
			return out, fmt.Errorf("ops[%d] %s: %w", i, op.Op, err)
		}
	}
	return out, nil
}

func (b builder) source(src SourceSpec) (stream.Stream[int64], error) {
	switch src.Kind {
	case SourceOf:
		return stream.FromSlice(append([]int64(nil), src.Values...)), nil
	case SourceRange:
		return stream.Range(src.From, src.To), nil
	case SourceRepeat:
		if len(src.Values) == 0 || src.Period <= 0 {
			return stream.Stream[int64]{}, errors.New("repeat needs a value and a positive period")
		}
		return stream.Repeat(src.Values[0], b.ticks(src.Period)), nil
	case SourceNever:
		return stream.Never[int64](), nil
	case SourceFail:
		return stream.Fail[int64](errors.New(src.Error)), nil
	case SourcePure:
		if len(src.Values) == 0 {
			return stream.Stream[int64]{}, errors.New("pure needs a value")
		}
		return stream.Pure(src.Values[0]), nil
	case SourceTimer:
		if len(src.Values) == 0 {
			return stream.Stream[int64]{}, errors.New("timer needs a value")
		}
		return stream.Timeout(b.ticks(src.Delay), src.Values[0]), nil
	case SourceConcat, SourceMix:
		children := make([]stream.Stream[int64], len(src.Sources))
		for i, child := range src.Sources {
			c, err := b.source(child)
			if err != nil {
				return stream.Stream[int64]{}, fmt.Errorf("sources[%d]: %w", i, err)
			}
			children[i] = c
		}
		if src.Kind == SourceConcat {
			return stream.Concat(children...), nil
		}
		return stream.Mix(children...), nil
	default:
		return stream.Stream[int64]{}, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

func (b builder) apply(s stream.Stream[int64], op OpSpec) (stream.Stream[int64], error) {
	switch op.Op {
	case OpMap:
		f, err := unaryFn(op.Fn, op.Arg)
		if err != nil {
			return s, err
		}
		return stream.Map(s, f), nil
	case OpFilter, OpTakeWhile, OpSkipWhile:
		pred, err := predicate(op.Fn, op.Arg)
		if err != nil {
			return s, err
		}
		switch op.Op {
		case OpFilter:
			return s.Filter(pred), nil
		case OpTakeWhile:
			return s.TakeWhile(pred), nil
		default:
			return s.SkipWhile(pred), nil
		}
	case OpTake:
		return s.Take(op.N), nil
	case OpSkip:
		return s.Skip(op.N), nil
	case OpDistinct:
		return stream.Distinct(s), nil
	case OpDelay:
		return s.Delay(b.ticks(op.Ticks)), nil
	case OpThrottle:
		return s.Throttle(b.ticks(op.Ticks)), nil
	case OpFold:
		f, err := binaryFn(op.Fn, true)
		if err != nil {
			return s, err
		}
		return stream.Fold(s, op.Init, f), nil
	case OpFlatMap, OpSwitchMap:
		if op.Inner == nil {
			return s, errors.New("inner is required")
		}
		inner := *op.Inner
		if _, err := b.source(inner); err != nil {
			return s, fmt.Errorf("inner: %w", err)
		}
		open := func(x int64) stream.Stream[int64] {
			in, _ := b.source(inner)
			return stream.Map(in, func(v int64) int64 { return v + x })
		}
		switch {
		case op.Op == OpSwitchMap:
			return stream.SwitchMap(s, open), nil
		case op.Limit > 0:
			return stream.FlatMapN(s, op.Limit, open), nil
		default:
			return stream.FlatMap(s, open), nil
		}
	}

	// The remaining ops combine s with a second stream.
	if op.With == nil {
		return s, errors.New("unknown op or missing with")
	}
	with, err := b.source(*op.With)
	if err != nil {
		return s, fmt.Errorf("with: %w", err)
	}
	switch op.Op {
	case OpRecover:
		return s.Recover(func(error) stream.Stream[int64] { return with }), nil
	case OpContinueWith:
		return s.ContinueWith(func() stream.Stream[int64] { return with }), nil
	case OpMerge:
		return stream.Mix(s, with), nil
	case OpConcat:
		return stream.Concat(s, with), nil
	case OpTakeUntil:
		return stream.TakeUntil(s, with), nil
	case OpZip, OpCombineLatest:
		f, err := binaryFn(op.Fn, false)
		if err != nil {
			return s, err
		}
		join := func(p stream.Pair[int64, int64]) int64 { return f(p.First, p.Second) }
		if op.Op == OpZip {
			return stream.Map(stream.Zip(s, with), join), nil
		}
		return stream.Map(stream.CombineLatest(s, with), join), nil
	default:
		return s, fmt.Errorf("unknown op %q", op.Op)
	}
}

func unaryFn(name string, arg int64) (func(int64) int64, error) {
	switch name {
	case "add":
		return func(v int64) int64 { return v + arg }, nil
	case "mul":
		return func(v int64) int64 { return v * arg }, nil
	case "neg":
		return func(v int64) int64 { return -v }, nil
	default:
		return nil, fmt.Errorf("unknown map fn %q", name)
	}
}

func predicate(name string, arg int64) (func(int64) bool, error) {
	switch name {
	case "even":
		return func(v int64) bool { return v%2 == 0 }, nil
	case "odd":
		return func(v int64) bool { return v%2 != 0 }, nil
	case "gt":
		return func(v int64) bool { return v > arg }, nil
	case "lt":
		return func(v int64) bool { return v < arg }, nil
	default:
		return nil, fmt.Errorf("unknown predicate %q", name)
	}
}

// binaryFn returns the combining function name. Fold accepts count, which
// ignores the value; zip and combine_latest accept first and second.
func binaryFn(name string, fold bool) (func(int64, int64) int64, error) {
	switch name {
	case "sum":
		return func(a, b int64) int64 { return a + b }, nil
	case "product":
		return func(a, b int64) int64 { return a * b }, nil
	}
	if fold {
		if name == "count" {
			return func(acc, _ int64) int64 { return acc + 1 }, nil
		}
	} else {
		switch name {
		case "first":
			return func(a, _ int64) int64 { return a }, nil
		case "second":
			return func(_, b int64) int64 { return b }, nil
		}
	}
	return nil, fmt.Errorf("unknown combining fn %q", name)
}
