package stream

import "github.com/roach88/rill/sched"

// GroupBy splits s into one channel per key. The first value of a key emits
// a new Channel that carries that key's values, tagged with the key.
//
// A group channel follows the Channel contract: subscribe to it on the
// context the grouped stream was opened with, from the handler that received
// it, or its first values are lost. A terminal event of s is forwarded to
// every group before the grouped stream itself. Closing the grouped stream
// completes every open group. Closing one group drops the later values of
// its key.
func GroupBy[T any, K comparable](s Stream[T], key func(T) K) Stream[Channel[Pair[K, T]]] {
	return New(func(d *Dispatcher[Channel[Pair[K, T]]]) {
		if d.IsClosed() {
			return
		}
		var (
			base   Channel[T]
			groups = make(map[K]*Dispatcher[Pair[K, T]])
			order  []K
		)
		// terminate ends every group in creation order.
		terminate := func(e Event[Pair[K, T]]) {
			for _, k := range order {
				groups[k].EmitIfOpen(e)
			}
			clear(groups)
			order = nil
		}
		d.SetCloseHandler(func() {
			if base != nil {
				base.Close()
				base = nil
			}
			terminate(DoneEvent[Pair[K, T]]())
		})

		s.OpenWith(d.Callee(), func(c Channel[T]) Handler[T] {
			base = c
			return func(e Event[T]) {
				if e.IsTerminal() {
					base = nil
					terminate(retype[T, Pair[K, T]](e))
					d.EmitIfOpen(retype[T, Channel[Pair[K, T]]](e))
					return
				}
				k := key(e.Value)
				g, ok := groups[k]
				if !ok {
					// Each group owns its producer context so that its close
					// never releases the grouped stream's own context.
					g = NewDispatcher[Pair[K, T]](d.Caller(), d.Callee().Derive())
					groups[k] = g
					order = append(order, k)
					d.EmitIfOpen(NextEvent[Channel[Pair[K, T]]](g))
				}
				g.EmitIfOpen(NextEvent(MakePair(k, e.Value)))
			}
		})
	}, sched.AllowSync())
}
