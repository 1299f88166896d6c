// Package cubature implements the adaptive integration driver: given
// an opaque integrand over the unit hyper-cube and an
// (abs_tol, rel_tol) pair, it drives a retry loop. On failure, rel_tol
// is multiplied by 4 and the integrand is re-evaluated, up to 5
// attempts for 13-type kernels and 3 for 22-type kernels, built on
// cenkalti/backoff/v4's attempt-bounded Retry.
//
// The driver does not implement the cubature algorithm itself; the
// algorithm is injected as a Routine capability. DefaultRoutine
// supplies a concrete adaptive midpoint-doubling implementation;
// callers needing a different algorithm supply their own Routine.
package cubature
