// Package cancel provides the cooperative cancellation token shared by the
// crawler and the query engine. A token is a single atomic flag: the owner
// flips it, workers poll it at a bounded cadence (between directory jobs,
// between scan chunks) and exit promptly.
package cancel

import "sync/atomic"

// Token is an atomically observable abort flag. The zero value is ready to
// use and not cancelled. A nil *Token is never cancelled, so callers that
// do not need cancellation can pass nil.
type Token struct {
	flag atomic.Bool
}

// Cancel flips the token. Idempotent.
func (t *Token) Cancel() {
	t.flag.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.flag.Load()
}
