package cubature

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/oneloop/pkg/metrics"
	"github.com/cuemby/oneloop/pkg/types"
)

// Integrand is an opaque real-valued function of a sample in
// [0,1]^d. Auxiliary state is captured by the closure itself.
type Integrand func(x []float64) float64

// Routine is the injected cubature capability. It must
// converge when the reported error estimate satisfies
// err <= max(absTol, relTol*|value|), and report a non-nil err
// otherwise.
type Routine func(integrand Integrand, dim int, absTol, relTol float64) (value, errEst float64, regions, evaluations int, err error)

// Result is the outcome of one Integrate call: the last attempt's
// diagnostic tuple, whether or not it ultimately converged. A failed
// integration still carries its final value and error estimate so the
// caller can log and store them.
type Result struct {
	Value       float64
	Error       float64
	Regions     int
	Evaluations int
	WallTime    time.Duration
	Converged   bool
	Attempts    int
	FinalRelTol float64
}

// attemptBudget is the retry policy's asymmetric per-kind budget.
func attemptBudget(kind types.LoopKernelKind) int {
	if kind == types.KernelThirteen {
		return 5
	}
	return 3
}

// Driver wraps an injected Routine with the retry-on-failure,
// tolerance-relaxation policy.
type Driver struct {
	Routine Routine
}

// NewDriver constructs a Driver around the given cubature routine.
func NewDriver(routine Routine) *Driver {
	return &Driver{Routine: routine}
}

// Integrate runs the retry loop for one integrand, returning the
// final attempt's diagnostics regardless of whether it converged.
func (d *Driver) Integrate(kind types.LoopKernelKind, integrand Integrand, dim int, absTol, relTol float64) Result {
	start := time.Now()
	maxAttempts := attemptBudget(kind)
	curRelTol := relTol

	var last Result
	attempt := 0

	op := func() error {
		attempt++
		value, errEst, regions, evaluations, convErr := d.Routine(integrand, dim, absTol, curRelTol)
		last = Result{
			Value:       value,
			Error:       errEst,
			Regions:     regions,
			Evaluations: evaluations,
			Converged:   convErr == nil,
			Attempts:    attempt,
			FinalRelTol: curRelTol,
		}

		outcome := "converged"
		if convErr != nil {
			outcome = "retried"
		}
		metrics.IntegrationAttemptsTotal.WithLabelValues(kind.String(), outcome).Inc()

		if convErr == nil {
			return nil
		}
		curRelTol *= 4
		return convErr
	}

	// A zero-duration constant backoff turns backoff.Retry into a
	// pure attempt-bounded loop: there is no real waiting between
	// attempts, only the rel_tol relaxation above.
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), uint64(maxAttempts-1))
	_ = backoff.Retry(op, policy)

	if !last.Converged {
		metrics.IntegrationAttemptsTotal.WithLabelValues(kind.String(), "exhausted").Inc()
	}

	last.WallTime = time.Since(start)
	metrics.IntegrationDuration.WithLabelValues(kind.String()).Observe(last.WallTime.Seconds())
	return last
}
