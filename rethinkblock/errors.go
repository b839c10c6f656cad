package rethinkblock

import (
	"fmt"

	"github.com/pkg/errors"
)

// ArtifactFetchError is returned when a build-time fetch of one of the
// trie/rank-directory/file-tag artifacts returns a non-2xx status.
type ArtifactFetchError struct {
	URL    string
	Status int
}

func (e *ArtifactFetchError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

// ArtifactAssemblyError is returned when the multi-part td blob can't be
// assembled: a part count mismatch, a truncated part, or a concatenation
// failure.
type ArtifactAssemblyError struct {
	Reason string
}

func (e *ArtifactAssemblyError) Error() string {
	return "assemble blocklist artifact: " + e.Reason
}

// TrieFormatError is returned when the assembled bitstream fails a
// structural invariant: rank inconsistency, invalid child-count unary
// coding, or an out-of-range label.
type TrieFormatError struct {
	Reason string
}

func (e *TrieFormatError) Error() string {
	return "malformed trie: " + e.Reason
}

// ErrBuildTimeout is returned to a waiter whose build ran past
// DownloadTimeout, or whose own context deadline passed while a build was
// in progress. It wraps the underlying context.DeadlineExceeded.
var ErrBuildTimeout = errors.New("rethinkblock: blocklist build timed out")

// ErrNotReady names the condition where a rebuild is in progress and no
// previous snapshot exists. BlocklistLoader and BlocklistWrapper do not
// produce it; BlocklistWrapper.Get waits for the in-flight build instead.
var ErrNotReady = errors.New("rethinkblock: blocklist filter not ready")

// wrapFetch annotates a low-level transport error with the URL that
// failed, preserving the original error for errors.Is/As callers.
func wrapFetch(url string, err error) error {
	return errors.Wrapf(err, "fetch %s", url)
}
