package rethinkblock

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// trieKey mirrors the reversed-label, sentinel-joined encoding
// ClassifyName uses internally (spec §9), so fixtures built here exercise
// the same key space the production filter walks.
func trieKey(name string) string {
	parts := strings.Split(strings.TrimSuffix(name, "."), ".")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, string([]byte{sentinelByte}))
}

func TestClassifyNameSubdomainInheritance(t *testing.T) {
	b := NewBuilder()
	b.Add(trieKey("example.com"), 1)
	filter := NewBlocklistFilter(b.Build(), FileTags{})

	v := filter.ClassifyName("example.com", nil)
	require.True(t, v.Blocked)
	require.Equal(t, []string{"1"}, v.MatchedListIDs)

	v = filter.ClassifyName("a.b.example.com", nil)
	require.True(t, v.Blocked)
	require.Equal(t, []string{"1"}, v.MatchedListIDs)

	v = filter.ClassifyName("notexample.com", nil)
	require.False(t, v.Blocked)

	v = filter.ClassifyName("example.com.evil.test", nil)
	require.False(t, v.Blocked)
}

func TestClassifyNameEmptyBlocklist(t *testing.T) {
	b := NewBuilder()
	filter := NewBlocklistFilter(b.Build(), FileTags{})

	v := filter.ClassifyName("anything.test", nil)
	require.False(t, v.Blocked)
	require.Empty(t, v.MatchedListIDs)
}

func TestClassifyNameDenyWins(t *testing.T) {
	b := NewBuilder()
	b.Add(trieKey("ads.test"), 1, 2)
	filter := NewBlocklistFilter(b.Build(), FileTags{})

	bitmap := &UserBitmap{
		Allow: NewListIDSet(1),
		Deny:  NewListIDSet(1, 2),
	}
	v := filter.ClassifyName("ads.test", bitmap)
	require.True(t, v.Blocked, "list 2 is denied and not allowed, so the match still blocks")
	require.Equal(t, []string{"1", "2"}, v.MatchedListIDs)

	bitmap = &UserBitmap{
		Allow: NewListIDSet(1, 2),
		Deny:  NewListIDSet(1, 2),
	}
	v = filter.ClassifyName("ads.test", bitmap)
	require.False(t, v.Blocked, "every denied list is also allowed")
}

func TestClassifyNameNoFalsePositives(t *testing.T) {
	b := NewBuilder()
	blocked := make(map[string]bool)
	for i := 0; i < 2000; i++ {
		name := fmt.Sprintf("host%d.blocked.test", i)
		b.Add(trieKey(name), uint32(i))
		blocked[name] = true
	}
	filter := NewBlocklistFilter(b.Build(), FileTags{})

	for name := range blocked {
		v := filter.ClassifyName(name, nil)
		require.True(t, v.Blocked, "expected %s to match", name)
	}

	for i := 0; i < 2000; i++ {
		name := fmt.Sprintf("host%d.safe.test", i)
		v := filter.ClassifyName(name, nil)
		require.False(t, v.Blocked, "unexpected match for %s", name)
	}
}

func TestClassifyAnswersUnion(t *testing.T) {
	b := NewBuilder()
	b.Add(trieKey("query.test"), 1)
	b.Add(trieKey("cname-target.test"), 2)
	filter := NewBlocklistFilter(b.Build(), FileTags{})

	agg := filter.ClassifyAnswers("query.test", []string{"cname-target.test", "safe.test"}, nil)
	require.True(t, agg.Blocked)
	require.ElementsMatch(t, []string{"1", "2"}, agg.MatchedListIDs)
	require.True(t, agg.Per["query.test"].Blocked)
	require.True(t, agg.Per["cname-target.test"].Blocked)
	require.False(t, agg.Per["safe.test"].Blocked)
}

func TestLookupDomainInfoRegistrableDomain(t *testing.T) {
	b := NewBuilder()
	b.Add(trieKey("ads.example.co.uk"), 3)
	filter := NewBlocklistFilter(b.Build(), FileTags{
		"3": {Value: 3, Uname: "ads-list", Group: "ads"},
	})

	info := filter.LookupDomainInfo("tracker.ads.example.co.uk")
	require.Equal(t, []string{"3"}, info.ListIDs)
	require.Contains(t, info.TagEntries, "3")
	require.Equal(t, "example.co.uk", info.RegistrableDomain)
}
