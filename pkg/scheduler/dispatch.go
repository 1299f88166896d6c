package scheduler

import (
	"context"
	"fmt"

	"github.com/cuemby/oneloop/pkg/errkind"
	"github.com/cuemby/oneloop/pkg/log"
	"github.com/cuemby/oneloop/pkg/metrics"
	"github.com/cuemby/oneloop/pkg/wire"
)

// inboundMsg tags a received envelope with the worker index it came
// from, or a transport error (observed as a worker crash).
type inboundMsg struct {
	worker int
	env    wire.Envelope
	err    error
}

// fanIn starts one receive goroutine per worker connection, funnelling
// every inbound envelope into a single channel the phase loop can
// select on regardless of which worker produced it.
func (s *Scheduler) fanIn(ctx context.Context) {
	for i, c := range s.conns {
		go func(i int, c wire.Conn) {
			for {
				env, err := c.Recv(ctx)
				select {
				case s.inbound <- inboundMsg{worker: i, env: env, err: err}:
				case <-ctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}(i, c)
	}
}

// lowestReady returns the smallest worker index present in ready.
func lowestReady(ready map[int]bool) int {
	w := -1
	for i := range ready {
		if w == -1 || i < w {
			w = i
		}
	}
	return w
}

// runPhase drives one phase's scatter/gather loop to completion: it
// broadcasts TASK_BEGIN, dispatches items to ready workers (favoring
// the lowest-numbered one), decodes and hands off each RESULT via
// handle, and broadcasts TASK_END once the queue is empty and every
// worker has gone idle. handle is expected to commit the result
// through pkg/storage before returning, satisfying the "commit before
// next dispatch" ordering guarantee for that worker.
func runPhase[Item any, Result any](ctx context.Context, s *Scheduler, phase wire.Phase, items []Item, handle func(Result) error) error {
	logger := log.WithPhase(phase.String())
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.PhaseDuration, phase.String())

	metrics.WorkListSize.WithLabelValues(phase.String()).Set(float64(len(items)))
	logger.Info().Int("items", len(items)).Msg("phase starting")

	for i, c := range s.conns {
		if err := c.Send(ctx, wire.Envelope{Tag: wire.TagTaskBegin, Phase: phase, Worker: i + 1}); err != nil {
			return errkind.Wrap(errkind.Protocol, fmt.Errorf("worker %d: task_begin: %w", i+1, err))
		}
	}

	pending := make([]Item, len(items))
	copy(pending, items)
	ready := make(map[int]bool)
	busy := make(map[int]bool)

	// Dispatch happens only on READY_FOR_WORK. The worker re-announces
	// readiness after every RESULT and its channel is FIFO, so by the
	// time a READY is handled the preceding RESULT has already been
	// committed: each result commits before the next item reaches that
	// worker.
	dispatchNext := func() error {
		for len(pending) > 0 && len(ready) > 0 {
			w := lowestReady(ready)
			delete(ready, w)
			metrics.WorkersReady.Dec()
			busy[w] = true

			item := pending[0]
			pending = pending[1:]
			payload, err := wire.Encode(item)
			if err != nil {
				return errkind.Wrap(errkind.Protocol, err)
			}
			metrics.TokensAssignedTotal.WithLabelValues(phase.String()).Inc()
			if err := s.conns[w].Send(ctx, wire.Envelope{Tag: wire.TagNewItem, Phase: phase, Worker: w + 1, Payload: payload}); err != nil {
				return errkind.Wrap(errkind.Protocol, fmt.Errorf("worker %d: new_item: %w", w+1, err))
			}
		}
		metrics.DispatchQueueDepth.WithLabelValues(phase.String()).Set(float64(len(pending)))
		return nil
	}

	// The phase is over when nothing is pending, nothing is in flight,
	// and every worker has checked back in as ready. The last condition
	// drains each worker's trailing READY_FOR_WORK so it cannot leak
	// into the next phase.
	for len(pending) > 0 || len(busy) > 0 || len(ready) < len(s.conns) {
		select {
		case msg := <-s.inbound:
			if msg.err != nil {
				return errkind.Wrap(errkind.Protocol, fmt.Errorf("worker %d: %w", msg.worker+1, msg.err))
			}
			switch msg.env.Tag {
			case wire.TagReadyForWork:
				ready[msg.worker] = true
				metrics.WorkersReady.Inc()
				if err := dispatchNext(); err != nil {
					return err
				}
			case wire.TagResult:
				var result Result
				if err := wire.Decode(msg.env.Payload, &result); err != nil {
					return errkind.Wrap(errkind.Protocol, err)
				}
				if err := handle(result); err != nil {
					return err
				}
				delete(busy, msg.worker)
			default:
				return errkind.Wrap(errkind.Protocol, fmt.Errorf("worker %d: unexpected tag %s mid-phase", msg.worker+1, msg.env.Tag))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	metrics.WorkersReady.Set(0)

	for i, c := range s.conns {
		if err := c.Send(ctx, wire.Envelope{Tag: wire.TagTaskEnd, Phase: phase, Worker: i + 1}); err != nil {
			return errkind.Wrap(errkind.Protocol, fmt.Errorf("worker %d: task_end: %w", i+1, err))
		}
	}
	logger.Info().Msg("phase complete")
	return nil
}
