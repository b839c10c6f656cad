package rdns

import (
	"net"
	"strings"

	tld "github.com/jpillora/go-tld"
	"github.com/miekg/dns"
)

// TLDDomainBlockListItem groups a DomainDB-style rule tree under the
// public suffix (TLD) its rules belong to, so a query can be rejected
// immediately on TLD mismatch before walking the rule tree.
type TLDDomainBlockListItem struct {
	tld     string
	domains node
	loader  BlocklistLoader
}

var _ BlocklistDB = &TLDDomainBlockListItem{}

// NewTLDDomainBlockListItem returns a grouping for the given TLD and its
// already-built rule tree.
func NewTLDDomainBlockListItem(tld string, domains node) *TLDDomainBlockListItem {
	return &TLDDomainBlockListItem{tld: tld, domains: domains}
}

func (t *TLDDomainBlockListItem) Reload() (BlocklistDB, error) {
	if t.loader == nil {
		return t, nil
	}
	rules, err := t.loader.Load()
	if err != nil {
		return nil, err
	}
	grouped, err := groupRulesByTLD(rules)
	if err != nil {
		return nil, err
	}
	for _, item := range grouped {
		if item.tld == t.tld {
			item.loader = t.loader
			return item, nil
		}
	}
	return NewTLDDomainBlockListItem(t.tld, make(node)), nil
}

func (t *TLDDomainBlockListItem) Match(msg *dns.Msg) ([]net.IP, []string, *BlocklistMatch, bool) {
	q := msg.Question[0]
	if GetTLDFromDomain(q.Name) != t.tld {
		return nil, nil, nil, false
	}

	s := strings.TrimSuffix(q.Name, ".")
	var matched []string
	parts := strings.Split(s, ".")
	n := t.domains
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		subNode, ok := n[part]
		if !ok {
			return nil, nil, nil, false
		}
		matched = append(matched, part)
		if _, ok := subNode[""]; ok {
			return nil, nil, &BlocklistMatch{List: t.String(), Rule: matchedDomainParts(".", matched)}, true
		}
		if _, ok := subNode["*"]; ok && i > 0 {
			return nil, nil, &BlocklistMatch{List: t.String(), Rule: matchedDomainParts("*.", matched)}, true
		}
		n = subNode
	}
	if len(n) == 0 {
		return nil, nil, &BlocklistMatch{List: t.String(), Rule: matchedDomainParts("", matched)}, true
	}
	return nil, nil, nil, false
}

func (t *TLDDomainBlockListItem) String() string {
	return "TLDDomain(" + t.tld + ")"
}

// GetTLDFromDomain returns the public-suffix portion of domain, or "" if
// it cannot be parsed.
func GetTLDFromDomain(domain string) string {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	u, err := tld.Parse("http://" + domain)
	if err != nil || u == nil {
		return ""
	}
	return u.TLD
}

// GetTLDsFromDomains returns the distinct set of TLDs found across
// domains, preserving first-seen order.
func GetTLDsFromDomains(domains []string) []string {
	seen := make(map[string]bool)
	var tlds []string
	for _, domain := range domains {
		t := GetTLDFromDomain(domain)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tlds = append(tlds, t)
	}
	return tlds
}

// groupRulesByTLD partitions a flat rule list into one
// TLDDomainBlockListItem per distinct TLD, each with its own rule tree
// built the same way DomainDB builds its single tree.
func groupRulesByTLD(rules []string) ([]*TLDDomainBlockListItem, error) {
	byTLD := make(map[string]node)
	for _, r := range rules {
		r = strings.TrimSpace(r)
		if r == "" || strings.HasPrefix(r, "#") {
			continue
		}
		r = strings.TrimSuffix(r, ".")
		t := GetTLDFromDomain(r)
		root, ok := byTLD[t]
		if !ok {
			root = make(node)
			byTLD[t] = root
		}
		addDomainRule(root, r)
	}
	items := make([]*TLDDomainBlockListItem, 0, len(byTLD))
	for t, root := range byTLD {
		items = append(items, NewTLDDomainBlockListItem(t, root))
	}
	return items, nil
}

// addDomainRule inserts rule into root using the same backwards-label
// graph layout as DomainDB.
func addDomainRule(root node, rule string) {
	parts := strings.Split(rule, ".")
	n := root
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		subNode, ok := n[part]
		if !ok {
			subNode = make(node)
			n[part] = subNode
		}
		n = subNode
	}
}
