package rdns

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/rethinkdns/doh-blocklist/rethinkblock"
)

// RethinkBlocklistDB adapts a rethinkblock.BlocklistWrapper to the
// BlocklistDB interface, so a succinct-trie blocklist can be plugged
// into Blocklist, MultiDB, and the other resolvers in this package
// unchanged.
type RethinkBlocklistDB struct {
	name         string
	wrapper      *rethinkblock.BlocklistWrapper
	queryTimeout time.Duration
}

var _ BlocklistDB = &RethinkBlocklistDB{}

// RethinkBlocklistDBOptions configures a RethinkBlocklistDB.
type RethinkBlocklistDBOptions struct {
	// BlocklistURL, LatestTimestamp, NodeCount, and TDParts locate and
	// describe the trie artifact to fetch.
	BlocklistURL    string
	LatestTimestamp string
	NodeCount       uint64
	TDParts         int32

	// DownloadTimeout bounds a single build attempt. Defaults to 5s.
	DownloadTimeout time.Duration

	// QueryTimeout bounds how long Match waits for a build already in
	// flight before failing open. Defaults to DownloadTimeout.
	QueryTimeout time.Duration

	// ForceRebuildAfter periodically refreshes a Ready filter in the
	// background. 0 (default) disables this.
	ForceRebuildAfter time.Duration

	HTTPClient *http.Client
}

// NewRethinkBlocklistDB constructs a RethinkBlocklistDB in the Empty
// state; the first Match call triggers the initial fetch.
func NewRethinkBlocklistDB(name string, opt RethinkBlocklistDBOptions) *RethinkBlocklistDB {
	log := Log.WithField("id", name)
	loader := rethinkblock.NewBlocklistLoader(rethinkblock.BlocklistLoaderOptions{
		BlocklistURL:    opt.BlocklistURL,
		LatestTimestamp: opt.LatestTimestamp,
		NodeCount:       opt.NodeCount,
		TDParts:         opt.TDParts,
		HTTPClient:      opt.HTTPClient,
		Logger:          log,
	})
	wrapper := rethinkblock.NewBlocklistWrapper(name, loader, rethinkblock.BlocklistWrapperOptions{
		DownloadTimeout:   opt.DownloadTimeout,
		ForceRebuildAfter: opt.ForceRebuildAfter,
		Logger:            log,
	})
	qt := opt.QueryTimeout
	if qt <= 0 {
		qt = opt.DownloadTimeout
	}
	if qt <= 0 {
		qt = 5 * time.Second
	}
	return &RethinkBlocklistDB{name: name, wrapper: wrapper, queryTimeout: qt}
}

// Reload is a no-op: the wrapper manages its own rebuild cadence via
// ForceRebuildAfter rather than the refreshLoop ticker pattern used by
// the other BlocklistDB implementations in this package.
func (r *RethinkBlocklistDB) Reload() (BlocklistDB, error) {
	return r, nil
}

// Match classifies the query name against the succinct trie. If no
// filter is available yet (first build still running, or the last
// build failed) the query fails open rather than blocking everything
// while the blocklist warms up.
func (r *RethinkBlocklistDB) Match(msg *dns.Msg) ([]net.IP, []string, *BlocklistMatch, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.queryTimeout)
	defer cancel()

	filter, err := r.wrapper.Get(ctx)
	if err != nil {
		Log.WithFields(logrus.Fields{"id": r.name}).WithError(err).Debug("blocklist not ready, failing open")
		return nil, nil, nil, false
	}

	q := msg.Question[0]
	verdict := filter.ClassifyName(q.Name, nil)
	if !verdict.Blocked {
		return nil, nil, nil, false
	}
	return nil, nil, &BlocklistMatch{
		List: r.name,
		Rule: strings.Join(verdict.MatchedListIDs, ","),
	}, true
}

func (r *RethinkBlocklistDB) String() string {
	return "Rethink(" + r.name + ")"
}
