package main

import (
	"bytes"
	"io"
	"net"
	"os"

	"github.com/BurntSushi/toml"
	rdns "github.com/rethinkdns/doh-blocklist"
)

type config struct {
	Title             string
	BootstrapResolver resolver `toml:"bootstrap-resolver"`
	Listeners         map[string]listener
	Resolvers         map[string]resolver
	Groups            map[string]group
	Routers           map[string]router
}

type listener struct {
	Address    string
	Protocol   string
	IPVersion  int `toml:"ip-version"` // 4 = IPv4, 6 = IPv6
	Transport  string
	Resolver   string
	CA         string
	ServerKey  string   `toml:"server-key"`
	ServerCrt  string   `toml:"server-crt"`
	MutualTLS  bool     `toml:"mutual-tls"`
	NoTLS      bool     `toml:"no-tls"` // Disable TLS in DoH servers
	AllowedNet []string `toml:"allowed-net"`
	Frontend   dohFrontend
}

// DoH listener frontend options
type dohFrontend struct {
	HTTPProxyNet string `toml:"trusted-proxy"`
}

type resolver struct {
	Address       string
	Protocol      string
	Transport     string
	DoH           doh
	CA            string
	ClientKey     string `toml:"client-key"`
	ClientCrt     string `toml:"client-crt"`
	ServerName    string `toml:"server-name"` // TLS server name presented in the server certificate
	BootstrapAddr string `toml:"bootstrap-address"`
	LocalAddr     string `toml:"local-address"`
	EDNS0UDPSize  uint16 `toml:"edns0-udp-size"` // UDP resolver option
	QueryTimeout  int    `toml:"query-timeout"`  // Query timeout in seconds

	//QUIC and DoH/3 configuration
	Use0RTT bool `toml:"enable-0rtt"`
}

// DoH-specific resolver options
type doh struct {
	Method string
}

// Cache backend options
type cacheBackend struct {
	Type         string // Cache backend type. Defaults to "memory"
	Size         int    // Max number of items to keep in the cache. Default 0 == unlimited. Deprecated, use backend
	GCPeriod     int    `toml:"gc-period"` // Time-period (seconds) used to expire cached items
	Filename     string // File to load/store cache content, optional, for "memory" type cache
	SaveInterval int    `toml:"save-interval"` // Seconds to write the cache to file
}

type group struct {
	Resolvers  []string
	Type       string
	Replace    []rdns.ReplaceOperation // only used by "replace" type
	ECSOp      string                  `toml:"ecs-op"`      // ECS modifier operation, "add", "delete", "privacy"
	ECSAddress net.IP                  `toml:"ecs-address"` // ECS address. If empty for "add", uses the client IP. Ignored for "privacy" and "delete"
	ECSPrefix4 uint8                   `toml:"ecs-prefix4"` // ECS IPv4 address prefix, 0-32. Used for "add" and "privacy"
	ECSPrefix6 uint8                   `toml:"ecs-prefix6"` // ECS IPv6 address prefix, 0-128. Used for "add" and "privacy"
	TTLMin     uint32                  `toml:"ttl-min"`     // TTL minimum to apply to responses in the TTL-modifier
	TTLMax     uint32                  `toml:"ttl-max"`     // TTL maximum to apply to responses in the TTL-modifier
	TTLSelect  string                  `toml:"ttl-select"`  // Modifier selection function, "lowest", "highest", "average", "first", "last", "random"
	EDNS0Op    string                  `toml:"edns0-op"`    // EDNS0 modifier operation, "add" or "delete"
	EDNS0Code  uint16                  `toml:"edns0-code"`  // EDNS0 modifier option code
	EDNS0Data  []byte                  `toml:"edns0-data"`  // EDNS0 modifier option data

	// Failover/Failback options
	ResetAfter    int  `toml:"reset-after"`    // Time in seconds after which to reset resolvers in fail-back and random groups, default 60.
	ServfailError bool `toml:"servfail-error"` // If true, SERVFAIL responses are considered errors and cause failover etc.

	// Cache options
	Backend                  *cacheBackend
	GCPeriod                 int               `toml:"gc-period"`                   // Time-period (seconds) used to expire cached items in the "cache" type. Deprecated, use backend
	CacheSize                int               `toml:"cache-size"`                  // Max number of items to keep in the cache. Default 0 == unlimited. Deprecated, use backend
	CacheNegativeTTL         uint32            `toml:"cache-negative-ttl"`          // TTL to apply to negative responses, default 60.
	CacheAnswerShuffle       string            `toml:"cache-answer-shuffle"`        // Algorithm to use for modifying the response order of cached items
	CacheHardenBelowNXDOMAIN bool              `toml:"cache-harden-below-nxdomain"` // Return NXDOMAIN if an NXDOMAIN is cached for a parent domain
	CacheFlushQuery          string            `toml:"cache-flush-query"`           // Flush the cache when a query for this name is received
	PrefetchTrigger          uint32            `toml:"cache-prefetch-trigger"`      // Prefetch when the TTL of a query has fallen below this value
	PrefetchEligible         uint32            `toml:"cache-prefetch-eligible"`     // Only records with TTL greater than this are considered for prefetch
	CacheRcodeMaxTTL         map[string]uint32 `toml:"cache-rcode-max-ttl"`         // Rcode specific max TTL to keep in the cache

	// Blocklist options
	Blocklist []string // Blocklist rules, only used by "blocklist" type
	Format    string   // Blocklist input format: "regexp" (default), "domain", or "hosts"
	Source    string   // Location of external blocklist, can be a local path or remote URL
	Refresh   int      // Blocklist refresh when using an external source, in seconds

	// Blocklist-v2 options
	Filter            bool     // Filter response records rather than return NXDOMAIN
	BlockListResolver string   `toml:"blocklist-resolver"`
	AllowListResolver string   `toml:"allowlist-resolver"`
	BlocklistFormat   string   `toml:"blocklist-format"` // only used for static blocklists in the config
	BlocklistSource   []list   `toml:"blocklist-source"`
	BlocklistRefresh  int      `toml:"blocklist-refresh"`
	Allowlist         []string // Rules to override the blocklist rules
	AllowlistFormat   string   `toml:"allowlist-format"` // only used for static allowlists in the config
	AllowlistSource   []list   `toml:"allowlist-source"`
	AllowlistRefresh  int      `toml:"allowlist-refresh"`
	Inverted          bool     // Only allow names on the blocklist. Supported in response-blocklist-name

	// Rethink-blocklist options, only used by "rethink-blocklist" type
	RethinkBlocklistURL     string `toml:"rethink-blocklist-url"`     // Base URL the trie artifacts are served from
	RethinkLatestTimestamp  string `toml:"rethink-latest-timestamp"`  // Versioned bundle path appended to the base URL
	RethinkNodeCount        uint64 `toml:"rethink-td-nodecount"`      // Declared trie node count from the bundle's basic config
	RethinkTDParts          int32  `toml:"rethink-td-parts"`          // -1 for a single td.txt, else the largest part index
	RethinkDownloadTimeout  int    `toml:"rethink-download-timeout"`  // Seconds, default 5
	RethinkForceRebuildSecs int    `toml:"rethink-force-rebuild"`     // Seconds, 0 disables background rebuild

	// Static responder options
	Answer   []string
	NS       []string
	Extra    []string
	RCode    int
	EDNS0EDE struct {
		Code uint16 `toml:"code"` // Code defined in https://datatracker.ietf.org/doc/html/rfc8914
		Text string `toml:"text"` // Extra text containing additional information
	} `toml:"edns0-ede"` // Extended DNS Errors
	Truncate bool `toml:"truncate"` // When true, TC-Bit is set

	// Response Collapse options
	NullRCode int `toml:"null-rcode"` // Response code if after collapsing, no answers are left

	// Truncate-Retry options
	RetryResolver string `toml:"retry-resolver"`
}

// Block/Allowlist items for blocklist-v2
type list struct {
	Name         string
	Format       string
	Source       string
	CacheDir     string `toml:"cache-dir"`     // Where to store copies of remote blocklists for faster startup
	AllowFailure bool   `toml:"allow-failure"` // Don't fail on error and keep using the prior ruleset
}

type router struct {
	Routes []route
}

type route struct {
	Type          string // Deprecated, use "Types" instead
	Types         []string
	Class         string
	Name          string
	Source        string
	Weekdays      []string // 'mon', 'tue', 'wed', 'thu', 'fri', 'sat', 'sun'
	After, Before string   // Hour:Minute in 24h format, for example "14:30"
	Invert        bool     // Invert the result of the match
	DoHPath       string   `toml:"doh-path"` // DoH query path if received over DoH (regexp)
	Resolver      string
	Listener      string // ID of the listener that received the original request
	TLSServerName string `toml:"servername"` // TLS servername
}

// loadConfig reads a config file and returns the decoded structure.
func loadConfig(name ...string) (config, error) {
	b := new(bytes.Buffer)
	var c config
	for _, fn := range name {
		if err := loadFile(b, fn); err != nil {
			return c, err
		}
		b.WriteString("\n")
	}
	_, err := toml.DecodeReader(b, &c)
	return c, err
}

func loadFile(w io.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func parseCIDRList(networks []string) ([]*net.IPNet, error) {
	var out []*net.IPNet
	for _, s := range networks {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return out, err
		}
		out = append(out, n)
	}
	return out, nil
}
