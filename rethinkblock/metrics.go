package rethinkblock

import "expvar"

// wrapperMetrics tracks build activity for a BlocklistWrapper, exposed
// via expvar the way the teacher's BlocklistMetrics does for query
// counts (spec's Supplemented Features, SPEC_FULL.md §4).
type wrapperMetrics struct {
	attempted       *expvar.Int
	succeeded       *expvar.Int
	failed          *expvar.Int
	state           *expvar.String
	lastBuildMillis *expvar.Int
}

func newWrapperMetrics(id string) *wrapperMetrics {
	return &wrapperMetrics{
		attempted:       getVarInt(id, "build_attempted"),
		succeeded:       getVarInt(id, "build_succeeded"),
		failed:          getVarInt(id, "build_failed"),
		state:           getVarString(id, "state"),
		lastBuildMillis: getVarInt(id, "last_build_ms"),
	}
}

// Stats is a point-in-time snapshot of a wrapper's build metrics,
// convenient for tests and admin endpoints that don't want to scrape
// expvar's global registry directly.
type Stats struct {
	BuildsAttempted int64
	BuildsSucceeded int64
	BuildsFailed    int64
	State           string
	LastBuildMillis int64
}

// Stats returns a snapshot of this wrapper's metrics.
func (w *BlocklistWrapper) Stats() Stats {
	return Stats{
		BuildsAttempted: w.metrics.attempted.Value(),
		BuildsSucceeded: w.metrics.succeeded.Value(),
		BuildsFailed:    w.metrics.failed.Value(),
		State:           w.metrics.state.Value(),
		LastBuildMillis: w.metrics.lastBuildMillis.Value(),
	}
}
