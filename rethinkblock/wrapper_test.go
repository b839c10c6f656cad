package rethinkblock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSource is a blocklistSource whose Load blocks until release is
// closed, counting how many times it was invoked, for exercising the
// wrapper's coalescing behavior without a network fetch.
type fakeSource struct {
	calls   int32
	release chan struct{}
	err     error
	filter  *BlocklistFilter
}

func newFakeSource() *fakeSource {
	return &fakeSource{release: make(chan struct{})}
}

func (f *fakeSource) Load(ctx context.Context) (*BlocklistFilter, error) {
	atomic.AddInt32(&f.calls, 1)
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.filter, nil
}

func emptyFilter() *BlocklistFilter {
	return NewBlocklistFilter(NewBuilder().Build(), FileTags{})
}

func TestBlocklistWrapperCoalescesConcurrentBuilds(t *testing.T) {
	src := newFakeSource()
	src.filter = emptyFilter()
	w := newBlocklistWrapper("test", src, BlocklistWrapperOptions{DownloadTimeout: time.Second})

	const n = 20
	var wg sync.WaitGroup
	results := make([]*BlocklistFilter, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			results[i], errs[i] = w.Get(ctx)
		}(i)
	}

	// Give every goroutine a chance to arrive at Get before unblocking
	// the single build.
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&src.calls), "only one build should run for coalesced callers")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Same(t, src.filter, results[i])
	}
	require.Equal(t, "ready", w.State())
}

func TestBlocklistWrapperReturnsToEmptyOnFailure(t *testing.T) {
	src := newFakeSource()
	src.err = ErrNotReady
	w := newBlocklistWrapper("test", src, BlocklistWrapperOptions{DownloadTimeout: time.Second})
	close(src.release)

	_, err := w.Get(context.Background())
	require.Error(t, err)
	require.Eventually(t, func() bool { return w.State() == "empty" }, time.Second, time.Millisecond)

	src2 := newFakeSource()
	src2.filter = emptyFilter()
	close(src2.release)
	w.loader = src2

	filter, err := w.Get(context.Background())
	require.NoError(t, err)
	require.Same(t, src2.filter, filter)
}

func TestBlocklistWrapperCallerTimeoutDoesNotAbortBuild(t *testing.T) {
	src := newFakeSource()
	src.filter = emptyFilter()
	w := newBlocklistWrapper("test", src, BlocklistWrapperOptions{DownloadTimeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := w.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(src.release)
	filter, err := w.Get(context.Background())
	require.NoError(t, err)
	require.Same(t, src.filter, filter)
	require.Equal(t, int32(1), atomic.LoadInt32(&src.calls), "the original build should still be reused, not restarted")
}
