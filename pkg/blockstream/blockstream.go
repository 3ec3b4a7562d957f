// Package blockstream implements the block metadata iterator (C1): a lazy,
// paginated walk over a revision's block listing that yields blocks in
// strictly increasing index order, plus single-block token refresh for the
// retry path in pkg/pipeline.
package blockstream

import (
	"context"
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/kraklabs/drivedl/pkg/direrrors"
	"github.com/kraklabs/drivedl/pkg/protonapi"
	"github.com/kraklabs/drivedl/pkg/providers"
	"github.com/kraklabs/drivedl/pkg/revision"
)

// estimatedBlocks sizes the duplicate-index bloom filter for a typical
// large revision; a false positive only adds one redundant fatal-invariant
// check, it never causes a real duplicate to go undetected, so the
// estimate does not need to be exact.
const estimatedBlocks = 200_000

// Iterator walks a revision's block listing one page at a time, fetching
// the next page only once the current one is exhausted.
type Iterator struct {
	svc providers.RevisionsService
	uid protonapi.RevisionUID

	buf    []revision.BlockMetadata
	pos    int
	anchor string
	more   bool
	started bool

	lastIndex int
	haveLast  bool
	seen      *bloom.BloomFilter
}

// NewIterator builds an Iterator over uid's block listing, fetched through
// svc.
func NewIterator(svc providers.RevisionsService, uid protonapi.RevisionUID) *Iterator {
	return &Iterator{
		svc:  svc,
		uid:  uid,
		seen: bloom.NewWithEstimates(estimatedBlocks, 0.001),
	}
}

// Next returns the next block in index order, or ok=false once the
// listing is exhausted. It fetches a new page transparently when the
// buffered page runs out.
func (it *Iterator) Next(ctx context.Context) (meta revision.BlockMetadata, ok bool, err error) {
	for it.pos >= len(it.buf) {
		if it.started && !it.more {
			return revision.BlockMetadata{}, false, nil
		}
		if err := it.fetchPage(ctx); err != nil {
			return revision.BlockMetadata{}, false, err
		}
	}
	meta = it.buf[it.pos]
	it.pos++

	if err := it.checkMonotonic(meta.Index); err != nil {
		return revision.BlockMetadata{}, false, err
	}
	return meta, true, nil
}

func (it *Iterator) fetchPage(ctx context.Context) error {
	page, nextAnchor, err := it.svc.ListBlocks(ctx, it.uid, it.anchor)
	if err != nil {
		return direrrors.Wrap(direrrors.Transport, "list blocks", err)
	}
	it.buf = page.Blocks
	it.pos = 0
	it.more = page.More
	it.anchor = nextAnchor
	it.started = true
	return nil
}

// checkMonotonic asserts the listing never re-yields or regresses an
// index, using the bloom filter as a cheap first check before the
// authoritative strict-increase comparison.
func (it *Iterator) checkMonotonic(index int) error {
	key := []byte(fmt.Sprintf("%d", index))
	if it.seen.Test(key) && it.haveLast && index <= it.lastIndex {
		return direrrors.Fatalf("block index %d yielded more than once by listing for revision %s", index, it.uid)
	}
	it.seen.Add(key)

	if it.haveLast && index <= it.lastIndex {
		return direrrors.Fatalf("block index %d did not strictly increase after %d for revision %s", index, it.lastIndex, it.uid)
	}
	it.lastIndex = index
	it.haveLast = true
	return nil
}

// GetBlockToken refreshes a single block's fetch URL, token, and hash after
// its original token expired. The returned metadata never carries
// signature fields: callers must merge it into the originally listed
// BlockMetadata rather than replace it outright.
func GetBlockToken(ctx context.Context, svc providers.RevisionsService, uid protonapi.RevisionUID, blockIndex int) (revision.BlockMetadata, error) {
	meta, err := svc.GetBlockToken(ctx, uid, blockIndex)
	if err != nil {
		return revision.BlockMetadata{}, direrrors.Wrap(direrrors.Transport, "refresh block token", err)
	}
	return meta, nil
}

// MergeRefreshedToken returns a copy of original with BareURL, Token, and
// Hash replaced by refreshed, preserving every other field (signature,
// signer email, size) from the originally listed block.
func MergeRefreshedToken(original, refreshed revision.BlockMetadata) revision.BlockMetadata {
	merged := original
	merged.BareURL = refreshed.BareURL
	merged.Token = refreshed.Token
	merged.Hash = refreshed.Hash
	return merged
}
