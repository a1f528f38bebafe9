// Package portguard coordinates TCP port reservations for tests and tooling
// that must start listening processes on known-free ports. It guards against
// two reservations of the same port both within the current process and
// across cooperating processes on the same host.
package portguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/devtoolkit/portguard/internal/bitset"
	"github.com/devtoolkit/portguard/internal/busyport"
	"github.com/devtoolkit/portguard/internal/levels"
	"github.com/devtoolkit/portguard/internal/lockfile"
	"github.com/devtoolkit/portguard/internal/metrics"
	"github.com/devtoolkit/portguard/internal/probe"
)

const (
	minPort  = 0
	maxPort  = 65535
	numPorts = maxPort + 1

	// systemPortCeiling is the top of the never-reservable system-port band
	// [0, 1024].
	systemPortCeiling = 1024

	// connectProbeTimeout bounds the vet protocol's connect-refusal probe.
	connectProbeTimeout = 50 * time.Millisecond

	envDisableReleaseCheck = "DISABLE_PORT_RELEASE_CHECK"
)

// releaseCheckDisabled is the process-wide switch for the release-time
// diagnostic check, rechecked on every close rather than only at Engine
// construction. It is the idiomatic Go substitute for a mutable system
// property: any goroutine can flip it between reservations.
var releaseCheckDisabled atomic.Bool

// SetReleaseCheckDisabled turns the release-time diagnostic check on or off
// for every Engine in the process. It takes effect on the next Close call.
func SetReleaseCheckDisabled(disabled bool) {
	releaseCheckDisabled.Store(disabled)
}

// registryEntry is the handle registry's bookkeeping for one reserved port.
// It is the reclaimable unit the orphan reaper acts on: it outlives the
// PortRef itself (which the registry only references weakly) and carries
// everything release needs without touching the handle.
type registryEntry struct {
	engine  *Engine
	port    int
	weakRef weak.Pointer[PortRef]

	once sync.Once

	// set during vet's preliminary step (always) and promote step (lockTok,
	// runDiagnostic); see Engine.vet.
	lockTok       *lockfile.Token
	runDiagnostic bool
}

// release performs the registry entry's release actions exactly once,
// regardless of whether it is triggered by an explicit Close, a dropped
// handle reaped later, or the same handle closed twice. It is safe to call
// from any of those paths concurrently.
func (e *registryEntry) release(opts CloseOptions) error {
	var err error
	e.once.Do(func() {
		e.engine.mu.Lock()
		if e.engine.registry[e.port] == e {
			delete(e.engine.registry, e.port)
			e.engine.bitmap.Clear(e.port)
		}
		e.engine.mu.Unlock()

		if e.lockTok != nil {
			if lerr := e.lockTok.Release(); lerr != nil {
				err = fmt.Errorf("portguard: release lock for port %d: %w", e.port, lerr)
			}
		}

		slog.Info("released port", "port", e.port)

		if e.runDiagnostic && !opts.SkipReleaseCheck {
			e.engine.diagnosticReleaseCheck(e.port)
		}

		// Only promoted entries were counted by vet.
		if e.runDiagnostic {
			metrics.ReservationsActive.Dec()
		}
	})
	return err
}

// Engine is the reservation engine: a per-process reservation bitmap,
// handle registry, and cross-process locker, composed behind a vetting
// protocol that proves a candidate port is actually free before handing
// out a handle to it.
//
// All consumers within one process should share a single Engine instance;
// the engine only coordinates with other Engines (in this or other
// processes) through the shared lock file, never through any process-wide
// state of its own.
type Engine struct {
	mu sync.Mutex

	// bitmap tracks the union of the restricted set and this process's
	// current reservations; it is what the bit-scan in ReserveAny walks.
	bitmap *bitset.Set

	// restricted holds only the system/ephemeral/OS-reserved ranges fixed at
	// construction. It never changes after New returns, and is the set
	// IsReservable answers against: a port can be "restricted" or
	// "already reserved" and those are different things, so reservation
	// state lives in bitmap alone, not here.
	restricted *bitset.Set

	registry map[int]*registryEntry
	locker   *lockfile.Locker
	rng      *rand.Rand

	orphaned chan *registryEntry

	releaseCheckDisabledByEnv bool
	releaseCheckBroken        atomic.Bool
}

// engineConfig accumulates New's options before the engine is built.
type engineConfig struct {
	probesOverridden bool
	ephemeral        probe.Range
	reserved         []probe.Range
}

// Option configures a newly constructed Engine.
type Option func(*engineConfig)

// WithProbes injects precomputed restricted ranges instead of running the
// platform probes. Intended for tests that need a small, deterministic
// reservable window.
func WithProbes(ephemeral probe.Range, reserved []probe.Range) Option {
	return func(c *engineConfig) {
		c.probesOverridden = true
		c.ephemeral = ephemeral
		c.reserved = reserved
	}
}

// New constructs an Engine backed by a shared lock file at lockFilePath
// (typically the path returned by lockfile.Bootstrap). Unless WithProbes is
// given, the platform probes run eagerly, so construction may block briefly
// on a subprocess call.
func New(lockFilePath string, opts ...Option) *Engine {
	var cfg engineConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		bitmap:     bitset.New(numPorts),
		restricted: bitset.New(numPorts),
		registry:   make(map[int]*registryEntry),
		locker:     lockfile.New(lockFilePath),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		orphaned:   make(chan *registryEntry, 256),

		releaseCheckDisabledByEnv: parseBoolEnv(envDisableReleaseCheck),
	}

	e.markRestricted(minPort, systemPortCeiling)

	if cfg.probesOverridden {
		e.markRestricted(cfg.ephemeral.Lo, cfg.ephemeral.Hi)
		for _, r := range cfg.reserved {
			e.markRestricted(r.Lo, r.Hi)
		}
	} else {
		ctx := context.Background()
		ephemeral := probe.EphemeralRange(ctx)
		e.markRestricted(ephemeral.Lo, ephemeral.Hi)
		for _, r := range probe.OSReservedRanges(ctx) {
			e.markRestricted(r.Lo, r.Hi)
		}
	}

	if clear := e.restricted.CountClear(); clear < 1024 {
		slog.Warn("reservable port space is unusually small", "clear", clear)
	}

	slog.Info("port reservation engine created", "lockFile", lockFilePath)
	return e
}

// markRestricted adds [lo, hi] to both the restricted set and the scan
// bitmap; every restricted range is permanent for the life of the Engine.
func (e *Engine) markRestricted(lo, hi int) {
	e.bitmap.SetRange(lo, hi)
	e.restricted.SetRange(lo, hi)
}

func parseBoolEnv(name string) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false
	}
	switch v {
	case "1", "t", "T", "true", "TRUE", "True":
		return true
	default:
		return false
	}
}

// IsReservable reports whether port is in [0,65535] and outside the
// restricted set. It says nothing about whether port is currently reserved:
// an already-reserved port is still reservable in this sense, and Reserve
// relies on that distinction to tell "restricted" apart from "in use".
func (e *Engine) IsReservable(port int) bool {
	if port < minPort || port > maxPort {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.restricted.Test(port)
}

// GetHandle returns the live handle for port, if one exists and has not been
// closed. The result may be stale the instant it is returned.
func (e *Engine) GetHandle(port int) (*PortRef, error) {
	if port < minPort || port > maxPort {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidArgument, port)
	}
	e.mu.Lock()
	entry, ok := e.registry[port]
	e.mu.Unlock()
	if !ok {
		return nil, nil
	}
	ref := entry.weakRef.Value()
	if ref == nil || ref.Closed() {
		return nil, nil
	}
	return ref, nil
}

// Reserve attempts to reserve a specific port. It returns (nil, nil) if the
// port is already reserved in this process; it runs the full vet protocol
// otherwise.
func (e *Engine) Reserve(port int) (*PortRef, error) {
	e.reapOrphans()

	if port < minPort || port > maxPort || !e.IsReservable(port) {
		return nil, fmt.Errorf("%w: port %d is not reservable", ErrInvalidArgument, port)
	}

	e.mu.Lock()
	if e.bitmap.Test(port) {
		e.mu.Unlock()
		return nil, nil
	}
	e.mu.Unlock()

	ref, err := e.vet(port)
	if err != nil {
		if errors.Is(err, errTransientVet) {
			return nil, nil
		}
		return nil, err
	}
	return ref, nil
}

// ReserveAny picks and reserves an arbitrary reservable port using the
// two-direction bit-scan vetting protocol.
func (e *Engine) ReserveAny() (*PortRef, error) {
	e.reapOrphans()

	start := e.randomReservablePort()
	ascending := e.rng.Intn(2) == 0

	slog.Log(context.Background(), levels.LevelTrace, "bit-scan start",
		"start", start, "ascending", ascending)

	idx := start
	triedBothDirections := false

	for {
		next := e.nextClear(idx, ascending)
		if next < 0 {
			if triedBothDirections {
				metrics.ReservationsTotal.WithLabelValues("exhausted").Inc()
				return nil, ErrExhausted
			}
			ascending = !ascending
			idx = start
			triedBothDirections = true
			next = e.nextClear(idx, ascending)
			if next < 0 {
				metrics.ReservationsTotal.WithLabelValues("exhausted").Inc()
				return nil, ErrExhausted
			}
		}

		timer := metrics.NewTimer()
		ref, err := e.vet(next)
		timer.ObserveDuration()
		if err == nil {
			metrics.ReservationsTotal.WithLabelValues("reserved").Inc()
			return ref, nil
		}
		if !errors.Is(err, errTransientVet) {
			metrics.ReservationsTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		if ascending {
			idx = next + 1
		} else {
			idx = next - 1
		}
	}
}

// ReserveMany reserves n arbitrary ports. On any failure it releases every
// handle acquired so far and propagates the error.
func (e *Engine) ReserveMany(n int) ([]*PortRef, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", ErrInvalidArgument, n)
	}

	refs := make([]*PortRef, 0, n)
	for i := 0; i < n; i++ {
		ref, err := e.ReserveAny()
		if err != nil {
			// Close in LIFO order, mirroring the close-chain's own
			// reverse-of-registration discipline.
			for i := len(refs) - 1; i >= 0; i-- {
				refs[i].Close(CloseOptions{})
			}
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// List returns the ports of all currently live handles. It does not mutate
// the bitmap or run the orphan reaper, so it may include ports whose last
// strong reference has already been dropped but not yet reclaimed.
func (e *Engine) List() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	ports := make([]int, 0, len(e.registry))
	for port, entry := range e.registry {
		if ref := entry.weakRef.Value(); ref != nil && !ref.Closed() {
			ports = append(ports, port)
		}
	}
	return ports
}

// randomReservablePort draws a uniformly random port, redrawing while it
// lies in the restricted set.
func (e *Engine) randomReservablePort() int {
	for {
		p := e.rng.Intn(numPorts)
		e.mu.Lock()
		restricted := e.restricted.Test(p)
		e.mu.Unlock()
		if !restricted {
			return p
		}
	}
}

func (e *Engine) nextClear(from int, ascending bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ascending {
		return e.bitmap.NextClear(from)
	}
	return e.bitmap.PrevClear(from)
}

// vet performs the candidate validation protocol:
// tentative reservation, bind, cross-process lock, connect-refusal probe,
// promotion. Any failure along the way unwinds via the handle's close-chain
// and returns errTransientVet so the caller's scan can continue, except an
// I/O error from the cross-process locker, which returns ErrPermanentFailure.
func (e *Engine) vet(candidate int) (*PortRef, error) {
	ref := newPortRef(candidate)
	entry := &registryEntry{engine: e, port: candidate, weakRef: weak.Make(ref)}

	e.mu.Lock()
	if e.bitmap.Test(candidate) {
		e.mu.Unlock()
		return nil, errTransientVet
	}
	e.bitmap.Set(candidate)
	e.registry[candidate] = entry
	e.mu.Unlock()

	ref.pushCloseAction(func(port int, opts CloseOptions) error {
		return entry.release(opts)
	})

	metrics.VetAttemptsTotal.Inc()
	slog.Log(context.Background(), levels.LevelTrace, "vetting candidate port", "port", candidate)

	abort := func(reason string, cause error) (*PortRef, error) {
		ref.Close(CloseOptions{SkipReleaseCheck: true})
		slog.Debug("candidate failed vetting", "port", candidate, "reason", reason, "error", cause)
		return nil, errTransientVet
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", candidate))
	if err != nil {
		return abort("bind", err)
	}

	tok, lockErr := e.locker.TryLock(candidate)
	if lockErr != nil {
		ln.Close()
		ref.Close(CloseOptions{SkipReleaseCheck: true})
		return nil, fmt.Errorf("%w: %v", ErrPermanentFailure, lockErr)
	}
	if tok == nil {
		ln.Close()
		return abort("cross-process lock held", nil)
	}

	ln.Close()

	if portAnswersConnect(candidate) {
		tok.Release()
		return abort("connect-refusal probe saw an answer", nil)
	}

	entry.lockTok = tok
	entry.runDiagnostic = true

	// If the caller drops every strong reference to ref without an explicit
	// Close, this cleanup enqueues entry for the reaper. The cleanup closure
	// must not reference ref itself (that would keep it alive forever), so
	// it carries only entry, which holds everything release needs.
	runtime.AddCleanup(ref, func(ent *registryEntry) {
		select {
		case ent.engine.orphaned <- ent:
		default:
			slog.Warn("orphan cleanup queue full, dropping reclaim", "port", ent.port)
		}
	}, entry)

	metrics.ReservationsActive.Inc()
	slog.Info("reserved port", "port", candidate)
	return ref, nil
}

// portAnswersConnect implements the connect-refusal probe: a port some process answers without
// actually listening (as observed historically on Windows) is treated as
// busy even though the bind above briefly succeeded.
func portAnswersConnect(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), connectProbeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// reapOrphans drains handles whose last strong reference was dropped without
// an explicit Close, running their release actions. Called opportunistically at the start of every public
// mutator.
func (e *Engine) reapOrphans() {
	for {
		select {
		case entry := <-e.orphaned:
			entry.release(CloseOptions{})
		default:
			return
		}
	}
}

// diagnosticReleaseCheck asks the busy-port inspector whether anything is
// still bound to port after releasing it, and logs loudly if so. It never
// fails the close; all errors are swallowed after logging.
func (e *Engine) diagnosticReleaseCheck(port int) {
	if e.releaseCheckDisabledByEnv || releaseCheckDisabled.Load() || e.releaseCheckBroken.Load() {
		return
	}

	all, err := busyport.All(context.Background())
	if err != nil {
		slog.Warn("release-check inspection failed", "port", port, "error", err)
		return
	}
	if len(all) == 0 {
		slog.Warn("release-check inspector returned no results; disabling further checks", "port", port)
		e.releaseCheckBroken.Store(true)
		return
	}

	for _, bp := range all {
		if bp.LocalEndpoint.Port != port {
			continue
		}
		slog.Error("port still in use after release",
			"port", port, "pid", bp.PID, "command", bp.ShortCommand, "state", bp.State.String())
		metrics.ReleaseCheckFindingsTotal.WithLabelValues(bp.State.String()).Inc()
	}
}
