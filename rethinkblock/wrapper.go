package rethinkblock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type wrapperState int

const (
	stateEmpty wrapperState = iota
	stateBuilding
	stateReady
)

func (s wrapperState) String() string {
	switch s {
	case stateBuilding:
		return "building"
	case stateReady:
		return "ready"
	default:
		return "empty"
	}
}

// BlocklistWrapperOptions configures the build-coalescing policy around a
// BlocklistLoader (spec §4.F, §5).
type BlocklistWrapperOptions struct {
	// DownloadTimeout bounds a single build attempt, including every
	// waiter coalesced onto it. Defaults to 5s.
	DownloadTimeout time.Duration

	// ForceRebuildAfter triggers a background rebuild of an already-Ready
	// filter once it's this old; callers keep receiving the stale filter
	// until the rebuild completes. 0 disables this entirely, which is
	// the default (see DESIGN.md, "rebuild on staleness").
	ForceRebuildAfter time.Duration

	Logger logrus.FieldLogger
}

func (o BlocklistWrapperOptions) withDefaults() BlocklistWrapperOptions {
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	return o
}

// blocklistSource is the subset of BlocklistLoader the wrapper depends
// on, narrowed to an interface so tests can substitute a fake build
// without a network fetch.
type blocklistSource interface {
	Load(ctx context.Context) (*BlocklistFilter, error)
}

// BlocklistWrapper is the Empty/Building/Ready state machine around a
// BlocklistLoader (spec §4.F). Concurrent callers that arrive while a
// build is in flight are coalesced onto it via a completion channel
// rather than polling (spec §9 prefers this over the source's 50ms
// sleep loop). At most one build runs at a time.
type BlocklistWrapper struct {
	id     string
	loader blocklistSource
	opt    BlocklistWrapperOptions
	log    logrus.FieldLogger

	metrics *wrapperMetrics

	mu      sync.Mutex
	state   wrapperState
	filter  *BlocklistFilter
	lastErr error
	done    chan struct{}
	builtAt time.Time
}

// NewBlocklistWrapper returns a wrapper in the Empty state. No build is
// attempted until the first Get call.
func NewBlocklistWrapper(id string, loader *BlocklistLoader, opt BlocklistWrapperOptions) *BlocklistWrapper {
	return newBlocklistWrapper(id, loader, opt)
}

func newBlocklistWrapper(id string, source blocklistSource, opt BlocklistWrapperOptions) *BlocklistWrapper {
	opt = opt.withDefaults()
	return &BlocklistWrapper{
		id:      id,
		loader:  source,
		opt:     opt,
		log:     opt.Logger.WithField("id", id),
		metrics: newWrapperMetrics(id),
	}
}

// Get returns the current BlocklistFilter, building it first if this is
// the first call, or waiting for an in-flight build started by another
// caller. ctx bounds only this caller's wait, not the shared build: if
// ctx is cancelled the build continues in the background for other
// waiters and for the next Get call.
func (w *BlocklistWrapper) Get(ctx context.Context) (*BlocklistFilter, error) {
	w.mu.Lock()
	switch w.state {
	case stateReady:
		if w.shouldForceRebuildLocked() {
			w.startBuildLocked()
		}
		filter := w.filter
		w.mu.Unlock()
		return filter, nil
	case stateBuilding:
		if w.filter != nil {
			filter := w.filter
			w.mu.Unlock()
			return filter, nil
		}
	case stateEmpty:
		w.startBuildLocked()
	}
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrBuildTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == stateReady {
		return w.filter, nil
	}
	if errors.Is(w.lastErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", ErrBuildTimeout, w.lastErr)
	}
	return nil, w.lastErr
}

// State reports the wrapper's current state, mainly for diagnostics.
func (w *BlocklistWrapper) State() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.String()
}

func (w *BlocklistWrapper) shouldForceRebuildLocked() bool {
	if w.opt.ForceRebuildAfter <= 0 {
		return false
	}
	return time.Since(w.builtAt) >= w.opt.ForceRebuildAfter
}

// startBuildLocked transitions to Building and starts the single build
// goroutine for this generation. Callers must hold w.mu.
func (w *BlocklistWrapper) startBuildLocked() {
	if w.state == stateBuilding {
		return
	}
	w.state = stateBuilding
	w.done = make(chan struct{})
	done := w.done
	w.metrics.attempted.Add(1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.opt.DownloadTimeout)
		defer cancel()

		start := time.Now()
		filter, err := w.loader.Load(ctx)
		elapsed := time.Since(start)

		w.mu.Lock()
		if err != nil {
			w.log.WithError(err).Error("blocklist build failed, returning to empty")
			w.state = stateEmpty
			w.lastErr = err
			w.metrics.failed.Add(1)
		} else {
			w.log.WithField("elapsed", elapsed).Debug("blocklist build ready")
			w.state = stateReady
			w.filter = filter
			w.lastErr = nil
			w.builtAt = time.Now()
			w.metrics.succeeded.Add(1)
			w.metrics.lastBuildMillis.Set(elapsed.Milliseconds())
		}
		w.metrics.state.Set(w.state.String())
		close(done)
		w.mu.Unlock()
	}()
}
