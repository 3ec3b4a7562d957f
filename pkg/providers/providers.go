// Package providers declares the seam between the download core and the
// remote object-store API: an HTTP transport for blobs and JSON, and the
// four domain services (nodes, revisions, thumbnails, account) the core calls to learn
// what to fetch and how to unlock it. Concrete implementations live in
// pkg/transport (HTTPClient) and are otherwise supplied by the embedding
// application; pkg/providers/providerstest supplies fakes for tests.
package providers

import (
	"context"
	"io"

	"github.com/kraklabs/drivedl/pkg/protonapi"
	"github.com/kraklabs/drivedl/pkg/revision"
)

// HTTPClient is the transport seam used to fetch block ciphertext and
// paginated JSON listings. Implementations classify failures per
// pkg/direrrors (AuthExpired on a 404, Transport on anything else
// retryable).
type HTTPClient interface {
	// FetchBlob retrieves the raw bytes at url, reporting progress via
	// onProgress as bytes arrive. onProgress may be nil.
	FetchBlob(ctx context.Context, url string, onProgress func(n int64)) ([]byte, error)
	// FetchJSON retrieves and unmarshals a JSON document at url into out.
	FetchJSON(ctx context.Context, url string, out any) error
	// PostJSON sends body as a JSON request to url and unmarshals the
	// response into out. Used only by the thumbnail-token batch endpoint,
	// the one write-shaped call the download core otherwise-read-only
	// transport makes.
	PostJSON(ctx context.Context, url string, body, out any) error
}

// BlockPage is one page of a revision's block listing, ready for the
// pipeline to consume.
type BlockPage struct {
	Blocks []revision.BlockMetadata
	More   bool
}

// RevisionsService lists block metadata and individual block tokens for a
// revision, and resolves the revision itself.
type RevisionsService interface {
	// GetRevision fetches revision metadata, including its manifest
	// signature and thumbnail list.
	GetRevision(ctx context.Context, uid protonapi.RevisionUID) (revision.Revision, error)
	// ListBlocks fetches one page of block metadata for a revision.
	// anchorID is empty for the first page; subsequent calls pass back the
	// anchor returned alongside the previous page.
	ListBlocks(ctx context.Context, uid protonapi.RevisionUID, anchorID string) (page BlockPage, nextAnchor string, err error)
	// GetBlockToken refreshes a single expired block's fetch URL and
	// token, identified by its index within the revision. The returned
	// metadata carries only BareURL/Token/Hash; signature fields are not
	// reissued and must be merged from the originally listed block.
	GetBlockToken(ctx context.Context, uid protonapi.RevisionUID, blockIndex int) (revision.BlockMetadata, error)
}

// NodesService resolves the key material needed to unlock a node's content
// session key.
type NodesService interface {
	// GetNode resolves a node's type and active revision, the
	// precondition check file_downloader runs before it ever derives keys
	// or touches block material.
	GetNode(ctx context.Context, uid protonapi.NodeUID) (revision.NodeInfo, error)
	// GetNodeKeys fetches the node's armored key, passphrase, and
	// passphrase signature.
	GetNodeKeys(ctx context.Context, uid protonapi.NodeUID) (protonapi.NodeKeysDTO, error)
	// GetNodeContentKey fetches the content key packet guarding uid's own
	// content session key, independent of any specific revision. Used by
	// the thumbnail batcher, which addresses thumbnails by node rather
	// than by revision.
	GetNodeContentKey(ctx context.Context, uid protonapi.NodeUID) (contentKeyPacket []byte, err error)
}

// ThumbnailToken is the fetch URL and token for one resolved thumbnail, as
// returned by a batch call to the thumbnail-token API.
type ThumbnailToken struct {
	BareURL string
	Token   string
	Hash    string
}

// ThumbnailsService resolves node UIDs to thumbnail UIDs and batches
// thumbnail-token fetches via a POST to /drive/volumes/{v}/thumbnails.
type ThumbnailsService interface {
	// ResolveThumbnail finds nodeUID's thumbnail of the given kind. Errors
	// (missing node, not a file, no matching thumbnail) are reported back
	// to the caller as a per-node failure rather than aborting the batch.
	ResolveThumbnail(ctx context.Context, uid protonapi.NodeUID, kind revision.ThumbnailType) (thumbnailUID string, err error)
	// GetThumbnailTokens fetches fetch URLs/tokens for up to
	// MAX_CONCURRENT_THUMBNAILS thumbnail UIDs in one batch call. A UID the
	// API silently drops (absent from both the returned tokens and errs)
	// is reported "not found" by the caller.
	GetThumbnailTokens(ctx context.Context, thumbnailUIDs []string) (tokens map[string]ThumbnailToken, errs map[string]error, err error)
}

// AccountService resolves the account's own key material, used to verify
// the manifest signature and to unwrap node passphrases encrypted to the
// account's address keys. Block signatures are not verified.
type AccountService interface {
	// ListKeys returns every armored private key belonging to the
	// account, primary key first.
	ListKeys(ctx context.Context) ([]protonapi.AccountKeyDTO, error)
}

// Sink is the destination a reassembly engine flushes decrypted plaintext
// to, in strictly increasing block order.
type Sink interface {
	io.Writer
}
