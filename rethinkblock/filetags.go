package rethinkblock

import "encoding/json"

// TagRecord is one entry of the `file-tags` manifest (spec §3): metadata
// describing a single source blocklist.
type TagRecord struct {
	Value   int    `json:"value"`
	Uname   string `json:"uname"`
	Vname   string `json:"vname"`
	Group   string `json:"group"`
	Subg    string `json:"subg"`
	URL     string `json:"url"`
	Show    int    `json:"show"`
	Entries int    `json:"entries"`
}

// FileTags is the decoded `filetag.json` manifest: decimal-string list-ID
// to its record. Immutable after load (spec §3, invariant 1).
type FileTags map[string]TagRecord

// DecodeFileTags parses the `filetag.json` response body.
func DecodeFileTags(raw []byte) (FileTags, error) {
	var ft FileTags
	if err := json.Unmarshal(raw, &ft); err != nil {
		return nil, &ArtifactAssemblyError{Reason: "invalid filetag.json: " + err.Error()}
	}
	return ft, nil
}

// Len returns N, the number of known list-IDs (spec §3, invariant 3).
func (ft FileTags) Len() int { return len(ft) }
