package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/oneloop/pkg/cubature"
	"github.com/cuemby/oneloop/pkg/errkind"
	"github.com/cuemby/oneloop/pkg/growth"
	"github.com/cuemby/oneloop/pkg/log"
	"github.com/cuemby/oneloop/pkg/pkfilter"
	"github.com/cuemby/oneloop/pkg/types"
	"github.com/cuemby/oneloop/pkg/wire"
)

// Worker is one compute node in the pool: it holds a connection to
// the master, a cubature driver, and nothing else persistent.
type Worker struct {
	id     int
	conn   wire.Conn
	driver *cubature.Driver
	logger zerolog.Logger
}

// Config configures one worker instance.
type Config struct {
	ID      int
	Conn    wire.Conn
	Routine cubature.Routine
}

// NewWorker constructs a worker bound to one connection, using routine
// as its injected cubature capability.
func NewWorker(cfg Config) *Worker {
	return &Worker{
		id:     cfg.ID,
		conn:   cfg.Conn,
		driver: cubature.NewDriver(cfg.Routine),
		logger: log.WithWorker(cfg.ID),
	}
}

// Run drives the worker's state machine until TERMINATE is received or
// ctx is cancelled. It is IDLE between phases, waiting for TASK_BEGIN
// or TERMINATE; EXECUTING within a phase, processing NEW_ITEM until
// TASK_END.
func (w *Worker) Run(ctx context.Context) error {
	for {
		env, err := w.conn.Recv(ctx)
		if err != nil {
			return errkind.Wrap(errkind.Protocol, err)
		}
		switch env.Tag {
		case wire.TagTerminate:
			w.logger.Info().Msg("terminating")
			return nil
		case wire.TagTaskBegin:
			if err := w.runPhase(ctx, env.Phase); err != nil {
				return err
			}
		default:
			return errkind.Wrap(errkind.Protocol, fmt.Errorf("unexpected tag %s while idle", env.Tag))
		}
	}
}

// runPhase handles one TASK_BEGIN..TASK_END span: send READY_FOR_WORK,
// process whatever NEW_ITEM arrives, send RESULT, and repeat until
// TASK_END.
func (w *Worker) runPhase(ctx context.Context, phase wire.Phase) error {
	logger := w.logger.With().Str("phase", phase.String()).Logger()
	logger.Info().Msg("phase started")

	for {
		if err := w.conn.Send(ctx, wire.Envelope{Tag: wire.TagReadyForWork, Phase: phase, Worker: w.id}); err != nil {
			return errkind.Wrap(errkind.Protocol, err)
		}

		env, err := w.conn.Recv(ctx)
		if err != nil {
			return errkind.Wrap(errkind.Protocol, err)
		}

		switch env.Tag {
		case wire.TagNewItem:
			resultPayload, err := w.execute(phase, env.Payload)
			if err != nil {
				return err
			}
			if err := w.conn.Send(ctx, wire.Envelope{Tag: wire.TagResult, Phase: phase, Worker: w.id, Payload: resultPayload}); err != nil {
				return errkind.Wrap(errkind.Protocol, err)
			}
		case wire.TagTaskEnd:
			logger.Info().Msg("phase complete")
			return nil
		default:
			return errkind.Wrap(errkind.Protocol, fmt.Errorf("unexpected tag %s mid-phase", env.Tag))
		}
	}
}

// execute decodes one NEW_ITEM payload for phase, computes its result,
// and returns the encoded RESULT payload.
func (w *Worker) execute(phase wire.Phase, payload []byte) ([]byte, error) {
	switch phase {
	case wire.PhaseFilter:
		return w.executeFilter(payload)
	case wire.PhaseGrowth:
		return w.executeGrowth(payload)
	case wire.PhaseMatsubara:
		return w.executeMatsubara(payload)
	case wire.PhaseLoopKernel:
		return w.executeLoopKernel(payload)
	case wire.PhaseAssemble:
		return w.executeAssemble(payload)
	case wire.PhaseMultipole:
		return w.executeMultipole(payload)
	case wire.PhaseCounterterm:
		return w.executeCounterterm(payload)
	default:
		return nil, errkind.Wrap(errkind.Protocol, fmt.Errorf("unknown phase %d", phase))
	}
}

func (w *Worker) executeFilter(payload []byte) ([]byte, error) {
	var d wire.FilterDispatch
	if err := wire.Decode(payload, &d); err != nil {
		return nil, errkind.Wrap(errkind.Protocol, err)
	}
	wiggle, noWiggle, err := pkfilter.Filter(d.Model, d.Samples, d.Params, d.K)
	if err != nil {
		return nil, err
	}
	return wire.Encode(types.FilterResult{Item: d.Item, Wiggle: wiggle, NoWiggle: noWiggle})
}

func (w *Worker) executeGrowth(payload []byte) ([]byte, error) {
	var d wire.GrowthDispatch
	if err := wire.Decode(payload, &d); err != nil {
		return nil, errkind.Wrap(errkind.Protocol, err)
	}
	v := growth.Solve(d.Model, d.Params, d.Z)
	sample := types.GrowthSample{
		Model: d.Item.Model, GrowthParams: d.Item.Params, Z: d.Item.Z,
		G: v.G, A: v.A, B: v.B, D: v.D, E: v.E, F: v.F, Gr: v.Gr, J: v.J,
		FG: v.FG, FA: v.FA, FB: v.FB, FD: v.FD, FE: v.FE, FF: v.FF, FGr: v.FGr, FJ: v.FJ,
	}
	return wire.Encode(types.GrowthResult{Item: d.Item, Sample: sample})
}

func (w *Worker) executeMatsubara(payload []byte) ([]byte, error) {
	var d wire.MatsubaraDispatch
	if err := wire.Decode(payload, &d); err != nil {
		return nil, errkind.Wrap(errkind.Protocol, err)
	}
	x, y := computeMatsubaraXY(d.Samples, d.IRResum)
	xy := types.MatsubaraXY{ID: types.MatsubaraXYID{Model: d.Item.Model, Params: d.Item.Params, Pk: d.Item.Pk, IRResum: d.Item.IRResum}, X: x, Y: y}
	return wire.Encode(types.MatsubaraResult{Item: d.Item, XY: xy})
}

func (w *Worker) executeLoopKernel(payload []byte) ([]byte, error) {
	var d wire.LoopKernelDispatch
	if err := wire.Decode(payload, &d); err != nil {
		return nil, errkind.Wrap(errkind.Protocol, err)
	}
	integrand, dim := buildIntegrand(d)
	absTol, relTol := d.Params.AbsTol13, d.Params.RelTol13
	if d.Item.ID.Kind == types.KernelTwentyTwo {
		absTol, relTol = d.Params.AbsTol22, d.Params.RelTol22
	}
	res := w.driver.Integrate(d.Item.ID.Kind, integrand, dim, absTol, relTol)
	result := types.LoopKernelResult{
		ID: d.Item.ID, Value: res.Value, Error: res.Error,
		Regions: res.Regions, Evaluations: res.Evaluations,
		WallTime: res.WallTime, Converged: res.Converged,
		FinalAbsTol: absTol, FinalRelTol: res.FinalRelTol,
	}
	return wire.Encode(types.LoopKernelWorkResult{Item: d.Item, Result: result})
}

func (w *Worker) executeAssemble(payload []byte) ([]byte, error) {
	var d wire.AssembleDispatch
	if err := wire.Decode(payload, &d); err != nil {
		return nil, errkind.Wrap(errkind.Protocol, err)
	}
	return wire.Encode(types.AssembleResult{Item: types.AssembleWorkItem{ID: d.Item.ID}, Entry: assembleEntry(d)})
}

func (w *Worker) executeMultipole(payload []byte) ([]byte, error) {
	var d wire.MultipoleDispatch
	if err := wire.Decode(payload, &d); err != nil {
		return nil, errkind.Wrap(errkind.Protocol, err)
	}
	return wire.Encode(types.MultipoleResult{Item: d.Item, Pk: computeMultipolePk(d)})
}

func (w *Worker) executeCounterterm(payload []byte) ([]byte, error) {
	var d wire.CountertermDispatch
	if err := wire.Decode(payload, &d); err != nil {
		return nil, errkind.Wrap(errkind.Protocol, err)
	}
	return wire.Encode(types.CountertermWorkResult{Item: d.Item, Result: computeCountertermResult(d)})
}
