package storage

import (
	"sync"

	"github.com/cuemby/oneloop/pkg/errkind"
)

// txGuard enforces the at-most-one-open-write-transaction invariant
// independently of BoltDB's own
// single-writer serialization, so a caller that opens a second write
// transaction before the first commits observes a fatal
// TransactionMisuse error rather than merely blocking on BoltDB's
// internal writer lock.
type txGuard struct {
	mu   sync.Mutex
	open bool
}

func (g *txGuard) acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return errkind.Wrap(errkind.TransactionMisuse, errTxAlreadyOpen)
	}
	g.open = true
	return nil
}

func (g *txGuard) release() {
	g.mu.Lock()
	g.open = false
	g.mu.Unlock()
}

var errTxAlreadyOpen = txMisuseError("a write transaction is already open on this store")

type txMisuseError string

func (e txMisuseError) Error() string { return string(e) }
