package recommend

import (
	"context"
	"sync"
	"time"

	"cohortlens/internal/errors"
)

// DefaultDebounce is the quiet period before a call proceeds
const DefaultDebounce = 500 * time.Millisecond

// ErrSuperseded is returned to calls overtaken by a newer call for the same key
var ErrSuperseded = errors.NewValidationError(errors.ErrCodeRequestSuperseded, "request superseded by a newer one", nil)

type pending struct {
	ticket     uint64
	superseded chan struct{}
}

// Debouncer lets only the last issued call per key proceed. A call waits for
// the quiet period and is dropped if a newer call arrives meanwhile; a call
// overtaken while running has its result discarded.
type Debouncer struct {
	quiet time.Duration

	mu      sync.Mutex
	next    uint64
	pending map[string]*pending
}

// NewDebouncer creates a debouncer; a non-positive quiet period uses DefaultDebounce
func NewDebouncer(quiet time.Duration) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultDebounce
	}
	return &Debouncer{quiet: quiet, pending: make(map[string]*pending)}
}

// Do runs fn once key has been quiet, unless a newer call for key arrives first
func (d *Debouncer) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	p := d.issue(key)

	timer := time.NewTimer(d.quiet)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		d.release(key, p)
		return ctx.Err()
	case <-p.superseded:
		return ErrSuperseded
	case <-timer.C:
	}

	err := fn(ctx)
	if !d.release(key, p) {
		return ErrSuperseded
	}
	return err
}

func (d *Debouncer) issue(key string) *pending {
	d.mu.Lock()
	defer d.mu.Unlock()

	if previous, ok := d.pending[key]; ok {
		close(previous.superseded)
	}
	d.next++
	p := &pending{ticket: d.next, superseded: make(chan struct{})}
	d.pending[key] = p
	return p
}

// release reports whether p is still the latest call for key, forgetting it if so
func (d *Debouncer) release(key string, p *pending) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, ok := d.pending[key]
	if !ok || current.ticket != p.ticket {
		return false
	}
	delete(d.pending, key)
	return true
}
