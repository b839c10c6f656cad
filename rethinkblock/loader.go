package rethinkblock

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// defaultBlocklistURL is the default base URL prefix (spec §6).
const defaultBlocklistURL = "https://dist.rethinkdns.com/blocklists/"

// BlocklistLoaderOptions configures a single build attempt (spec §4.E,
// §6 "Configuration").
type BlocklistLoaderOptions struct {
	// BlocklistURL is the base URL prefix. Defaults to defaultBlocklistURL.
	BlocklistURL string

	// LatestTimestamp selects a versioned bundle; appended to BlocklistURL.
	LatestTimestamp string

	// NodeCount is the declared trie node count (basic config).
	NodeCount uint64

	// TDParts is -1 for a single td.txt file, or the largest part index
	// (inclusive) otherwise.
	TDParts int32

	// CacheTTL is a seconds hint passed as a Cache-Control max-age on
	// requests, since artifacts are content-addressed by timestamp and
	// safe to cache for a long time (spec §4.E).
	CacheTTL time.Duration

	// HTTPClient is used for all fetches; defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives build-progress messages; defaults to a disabled
	// logger so the core never writes to stderr on its own (spec §9:
	// env/log become explicit constructor dependencies, not globals).
	Logger logrus.FieldLogger
}

func (o *BlocklistLoaderOptions) withDefaults() BlocklistLoaderOptions {
	out := *o
	if out.BlocklistURL == "" {
		out.BlocklistURL = defaultBlocklistURL
	}
	if out.HTTPClient == nil {
		out.HTTPClient = http.DefaultClient
	}
	if out.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		out.Logger = l
	}
	return out
}

// BlocklistLoader fetches the multi-part trie blob, rank-directory blob,
// and file-tag manifest, then assembles and constructs a BlocklistFilter
// (spec §4.E). Each Load call performs one build attempt;
// BlocklistWrapper owns the retry/coalescing policy around it.
type BlocklistLoader struct {
	opt BlocklistLoaderOptions
}

// NewBlocklistLoader returns a loader for the given options.
func NewBlocklistLoader(opt BlocklistLoaderOptions) *BlocklistLoader {
	return &BlocklistLoader{opt: opt.withDefaults()}
}

// Load performs the full fetch-assemble-construct sequence. All three
// top-level fetches run concurrently; any failure aborts the whole build
// (spec §4.E, step 3: "All fetches MUST succeed").
func (l *BlocklistLoader) Load(ctx context.Context) (*BlocklistFilter, error) {
	baseURL := l.opt.BlocklistURL + l.opt.LatestTimestamp
	log := l.opt.Logger.WithFields(logrus.Fields{"baseurl": baseURL})
	log.Debug("starting blocklist build")

	var fileTags FileTags
	var rdBytes []byte
	var tdBytes []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := l.fetch(gctx, baseURL+"/filetag.json")
		if err != nil {
			return err
		}
		ft, err := DecodeFileTags(raw)
		if err != nil {
			return err
		}
		fileTags = ft
		return nil
	})
	g.Go(func() error {
		raw, err := l.fetch(gctx, baseURL+"/rd.txt")
		if err != nil {
			return err
		}
		rdBytes = raw
		return nil
	})
	g.Go(func() error {
		raw, err := l.fetchTD(gctx, baseURL)
		if err != nil {
			return err
		}
		tdBytes = raw
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("blocklist build failed")
		return nil, err
	}

	trie, err := DecodeTD(tdBytes, rdBytes, BasicConfig{NodeCount: l.opt.NodeCount, TDParts: l.opt.TDParts})
	if err != nil {
		log.WithError(err).Warn("blocklist build failed to assemble trie")
		return nil, err
	}

	log.WithFields(logrus.Fields{"lists": fileTags.Len()}).Debug("blocklist build succeeded")
	return NewBlocklistFilter(trie, fileTags), nil
}

// fetchTD fetches either the single td.txt file or all td parts
// concurrently, then concatenates them in order (spec §4.E step 2, §6's
// minimumIntegerDigits=2 formatting).
func (l *BlocklistLoader) fetchTD(ctx context.Context, baseURL string) ([]byte, error) {
	if l.opt.TDParts <= -1 {
		return l.fetch(ctx, baseURL+"/td.txt")
	}

	n := int(l.opt.TDParts) + 1
	parts := make([][]byte, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			url := fmt.Sprintf("%s/td%02d.txt", baseURL, i)
			raw, err := l.fetch(gctx, url)
			if err != nil {
				return err
			}
			parts[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

func (l *BlocklistLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, wrapFetch(url, err)
	}
	if l.opt.CacheTTL > 0 {
		req.Header.Set("Cache-Control", fmt.Sprintf("max-age=%d", int(l.opt.CacheTTL.Seconds())))
	}
	resp, err := l.opt.HTTPClient.Do(req)
	if err != nil {
		return nil, wrapFetch(url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ArtifactFetchError{URL: url, Status: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}
