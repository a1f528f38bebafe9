package portguard

import (
	"errors"
	"sync"
	"sync/atomic"
)

// CloseOptions configures a single Close call.
type CloseOptions struct {
	// SkipReleaseCheck suppresses the diagnostic release-check inspection for
	// this call. Set it when the caller can assert the port was never
	// actually bound by anything, making the inspection pointless.
	SkipReleaseCheck bool
}

// closeAction is one step of a handle's close-chain: a release action taking
// the reserved port and the options passed to Close.
type closeAction func(port int, opts CloseOptions) error

// PortRef is a live port reservation returned by a successful Engine.Reserve,
// ReserveAny, or ReserveMany call. The zero value is not usable.
type PortRef struct {
	port   int
	closed atomic.Bool

	mu    sync.Mutex
	chain []closeAction
}

func newPortRef(port int) *PortRef {
	return &PortRef{port: port}
}

// Port returns the reserved port number.
func (p *PortRef) Port() int { return p.port }

// Closed reports whether Close has already run for this handle.
func (p *PortRef) Closed() bool { return p.closed.Load() }

// pushCloseAction prepends action to the close-chain, so that at Close time
// actions run in reverse-of-registration order.
func (p *PortRef) pushCloseAction(action closeAction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chain = append([]closeAction{action}, p.chain...)
}

// Close runs the close-chain exactly once; subsequent calls are no-ops
// (spec's release-idempotence invariant). Errors from individual actions do
// not stop later actions; they are joined into the returned error.
func (p *PortRef) Close(opts CloseOptions) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.mu.Lock()
	chain := p.chain
	p.chain = nil
	p.mu.Unlock()

	var errs []error
	for _, action := range chain {
		if err := action(p.port, opts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
