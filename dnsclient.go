package rdns

import (
	"crypto/tls"
	"fmt"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// DNSClient represents a simple DNS resolver for UDP or TCP.
type DNSClient struct {
	endpoint string
	net      string
	client   *dns.Client
}

var _ Resolver = &DNSClient{}

// NewDNSClient returns a new instance of DNSClient which is a plain DNS resolver.
func NewDNSClient(endpoint, net string) *DNSClient {
	return &DNSClient{
		net:      net,
		endpoint: endpoint,
		client: &dns.Client{
			Net:       net,
			TLSConfig: &tls.Config{},
		},
	}
}

// Resolve a DNS query.
func (d *DNSClient) Resolve(q *dns.Msg, ci ClientInfo) (*dns.Msg, error) {
	Log.WithFields(logrus.Fields{
		"client":   ci.SourceIP,
		"qname":    qName(q),
		"resolver": d.endpoint,
		"protocol": d.net,
	}).Debug("querying upstream resolver")

	// Remove padding before sending over the wire in plain
	stripPadding(q)
	r, _, err := d.client.Exchange(q, d.endpoint)
	return r, err
}

func (d *DNSClient) String() string {
	return fmt.Sprintf("DNS(%s)", d.endpoint)
}
