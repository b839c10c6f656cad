package rdns

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// BlocklistMatch carries the identity of the rule that matched, for
// logging and for EDNS0 extended-error templates.
type BlocklistMatch struct {
	List string
	Rule string
}

type BlocklistDB interface {
	// Match returns true if the query matches a record. ips and names
	// are optional spoofed answers (names for PTR queries); when neither
	// is given, the caller responds with NXDOMAIN.
	Match(q *dns.Msg) (ips []net.IP, names []string, match *BlocklistMatch, ok bool)

	// Reload returns a fresh instance of the same database, used during
	// a refresh cycle. Implementations with nothing to reload may return
	// themselves.
	Reload() (BlocklistDB, error)

	fmt.Stringer
}
