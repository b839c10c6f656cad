package rethinkblock

import (
	"strings"

	tld "github.com/jpillora/go-tld"
)

// sentinelByte separates reversed domain labels in a trie key (spec §9):
// using a byte outside the label alphabet keeps "ab.c" and "a.bc" from
// sharing a trie path.
const sentinelByte = 0x00

// BlocklistFilter is the public query surface over a constructed trie
// and file-tags manifest (spec §4.D). Once built it is immutable and
// safe for unsynchronized concurrent use (spec §5): classify_* never
// suspends and never mutates shared state.
type BlocklistFilter struct {
	trie     *FrozenTrie
	fileTags FileTags
}

// NewBlocklistFilter wraps an already-built trie and manifest. Used by
// BlocklistLoader once assembly and structural validation succeed.
func NewBlocklistFilter(trie *FrozenTrie, fileTags FileTags) *BlocklistFilter {
	return &BlocklistFilter{trie: trie, fileTags: fileTags}
}

// canonicalizeName lowercases ASCII, strips a trailing dot, and rejects
// empty names (spec §4.D). Non-ASCII bytes pass through unchanged:
// callers are expected to supply A-labels/punycode (spec §8).
func canonicalizeName(name string) (string, bool) {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return "", false
	}
	b := []byte(name)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b), true
}

// reversedLabels splits name on '.' and returns the labels in reversed
// (root-first) order, per spec §9.
func reversedLabels(name string) []string {
	parts := strings.Split(name, ".")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}

// ClassifyName implements spec §4.D's classify_name. It walks the trie
// once, label by label from the root side, remembering the deepest
// terminal encountered — this realizes the "for each non-empty suffix,
// progressively longer from the root side" lookup without re-walking the
// trie per suffix.
func (f *BlocklistFilter) ClassifyName(name string, bitmap *UserBitmap) Verdict {
	canon, ok := canonicalizeName(name)
	if !ok {
		return Verdict{Blocked: false, Reason: "empty name"}
	}
	labels := reversedLabels(canon)

	cur := uint64(0)
	var deepest []uint32
	found := false
	for li, label := range labels {
		if label == "" {
			break
		}
		if li > 0 {
			next, ok := f.trie.Step(cur, sentinelByte)
			if !ok {
				break
			}
			cur = next
		}
		ok := true
		for i := 0; i < len(label); i++ {
			next, stepOK := f.trie.Step(cur, label[i])
			if !stepOK {
				ok = false
				break
			}
			cur = next
		}
		if !ok {
			break
		}
		if f.trie.IsTerminal(cur) {
			deepest = f.trie.Value(cur)
			found = true
		}
	}

	if !found {
		return Verdict{Blocked: false, Reason: "no match"}
	}

	matched, blocked := evaluateWithBitmap(deepest, bitmap)
	reason := "matched blocklist"
	if !blocked {
		reason = "matched but allowed"
	}
	return Verdict{
		Blocked:        blocked,
		MatchedListIDs: idsToStrings(matched),
		Reason:         reason,
	}
}

// ClassifyAnswers implements spec §4.D's classify_answers: the query
// name and every answer name are each classified; the aggregate is
// blocked if any individual verdict is, and matched sets are unioned.
func (f *BlocklistFilter) ClassifyAnswers(queryName string, answerNames []string, bitmap *UserBitmap) AggregateVerdict {
	agg := AggregateVerdict{Per: make(map[string]Verdict, 1+len(answerNames))}

	union := NewListIDSet()
	record := func(name string) {
		v := f.ClassifyName(name, bitmap)
		agg.Per[name] = v
		if v.Blocked {
			agg.Blocked = true
		}
		for _, idStr := range v.MatchedListIDs {
			union.Add(parseID(idStr))
		}
	}
	record(queryName)
	for _, a := range answerNames {
		record(a)
	}
	agg.MatchedListIDs = union.IDs()
	return agg
}

func parseID(s string) uint32 {
	var n uint32
	for i := 0; i < len(s); i++ {
		n = n*10 + uint32(s[i]-'0')
	}
	return n
}

// DomainInfo is the result of the debug/inspection helper
// lookup_domain_info (spec §4.D) — never used on the hot path.
type DomainInfo struct {
	ListIDs           []string
	TagEntries        map[string]TagRecord
	RegistrableDomain string // e.g. "example.co.uk"; "" if undetermined
}

// LookupDomainInfo implements spec §4.D's lookup_domain_info, enriched
// with the registrable-domain helper described in SPEC_FULL.md.
func (f *BlocklistFilter) LookupDomainInfo(name string) DomainInfo {
	v := f.ClassifyName(name, nil)
	info := DomainInfo{
		ListIDs:    v.MatchedListIDs,
		TagEntries: make(map[string]TagRecord, len(v.MatchedListIDs)),
	}
	for _, id := range v.MatchedListIDs {
		if rec, ok := f.fileTags[id]; ok {
			info.TagEntries[id] = rec
		}
	}
	if u, err := tld.Parse("http://" + strings.TrimSuffix(strings.ToLower(name), ".")); err == nil && u != nil {
		if u.Domain != "" && u.TLD != "" {
			info.RegistrableDomain = u.Domain + "." + u.TLD
		}
	}
	return info
}

// FileTags exposes the immutable manifest backing this filter.
func (f *BlocklistFilter) FileTags() FileTags { return f.fileTags }
