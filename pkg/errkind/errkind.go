// Package errkind classifies errors so the log sink can route them
// to {info, warn, fatal} consistently across the data manager,
// scheduler, and worker.
package errkind

import "errors"

// Kind is one of the six error categories this system distinguishes.
type Kind int

const (
	Unknown Kind = iota
	Configuration
	Database
	TransactionMisuse
	NonConvergence
	Protocol
	Consistency
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Database:
		return "database"
	case TransactionMisuse:
		return "transaction-misuse"
	case NonConvergence:
		return "non-convergence"
	case Protocol:
		return "protocol"
	case Consistency:
		return "consistency"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this kind must abort the current
// phase and propagate to process exit. Everything except
// NonConvergence is fatal.
func (k Kind) Fatal() bool {
	return k != NonConvergence
}

// classified wraps an error with a Kind, recoverable via As.
type classified struct {
	kind Kind
	err  error
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// Wrap tags err with kind so a later Classify call recovers it.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kind, err: err}
}

// Classify recovers the Kind attached by Wrap, or Unknown if err was
// never classified.
func Classify(err error) Kind {
	var c *classified
	if errors.As(err, &c) {
		return c.kind
	}
	return Unknown
}
