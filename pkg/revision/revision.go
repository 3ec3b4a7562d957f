// Package revision models the download core's domain types: a file
// Revision, its Block metadata, its Manifest signature, and the progress
// events the reassembly engine emits as it works through a revision.
package revision

import "time"

// ContentAuthor identifies the account whose key signed a block or the
// revision manifest, as carried on the wire alongside the signature itself.
type ContentAuthor struct {
	Email        string
	Fingerprint  string
	Unverifiable bool
}

// BlockMetadata describes one encrypted block of a revision: where to fetch
// it, what to check it against, and how to decrypt it.
type BlockMetadata struct {
	// Index is the block's 1-based position in the revision. Strictly
	// monotonic across a single listing pass.
	Index int
	// BareURL is the object-store URL to fetch the ciphertext from.
	BareURL string
	// Token authorizes BareURL and expires independently of the listing.
	Token string
	// Hash is the expected SHA-256 (hex) of the ciphertext bytes as
	// fetched, checked before decryption is attempted.
	Hash string
	// EncSignature is the block's detached OpenPGP signature, armored.
	EncSignature string
	// SignatureEmail identifies the signer, when known.
	SignatureEmail string
	// Size is the expected ciphertext size in bytes, or 0 if unknown.
	Size int64
}

// Manifest is the revision-level content manifest: the session key material
// and the detached signature over the plaintext digest, used once after all
// blocks have been decrypted.
type Manifest struct {
	ArmoredSignature string
	SignatureEmail   string
	ContentKeyPacket []byte
}

// Thumbnail describes one thumbnail attached to a revision.
type Thumbnail struct {
	ThumbnailID  string
	BareURL      string
	Token        string
	Hash         string
	EncSignature string
	Size         int64
}

// ThumbnailType selects which rendition of a node's thumbnail to resolve;
// Proton Drive nodes may carry more than one (a general preview and, for
// photos, a photo-specific rendition).
type ThumbnailType int

const (
	// ThumbnailTypeDefault is the general-purpose preview rendition.
	ThumbnailTypeDefault ThumbnailType = 1
	// ThumbnailTypePhoto is the photo-specific rendition.
	ThumbnailTypePhoto ThumbnailType = 2
)

// NodeType distinguishes a file node (which has revisions to download) from
// a folder node (which does not).
type NodeType int

const (
	// NodeTypeFile is a node with downloadable revisions.
	NodeTypeFile NodeType = iota
	// NodeTypeFolder is a container node; file_downloader rejects it.
	NodeTypeFolder
)

func (t NodeType) String() string {
	if t == NodeTypeFolder {
		return "folder"
	}
	return "file"
}

// ActiveRevision is a node's current revision, resolved either to a usable
// UID or to an error carrying the claimed value, the same
// "verified-or-claimed" shape used for revision content attribution.
type ActiveRevision struct {
	UID string
	Err error
}

// OK reports whether the node's active revision resolved successfully.
func (a ActiveRevision) OK() bool { return a.Err == nil && a.UID != "" }

// NodeInfo is the subset of node metadata the download core needs to
// validate a file_downloader call before it ever touches block or key
// material: what kind of node this is, and which revision is active.
type NodeInfo struct {
	UID            string
	Type           NodeType
	ActiveRevision ActiveRevision
}

// Revision is the top-level download unit: a node's content at a point in
// time, with its block list (fetched lazily through the iterator in
// pkg/blockstream) and optional thumbnails.
type Revision struct {
	UID               string
	NodeUID           string
	VolumeID          string
	Size              int64
	// ClaimedBlockSizes is the uploader-declared ordered list of per-block
	// plaintext sizes, advisory and optional. Used only by pkg/seekable to
	// translate an offset into a block index without assuming a uniform
	// block size; absent when empty.
	ClaimedBlockSizes []int64
	ManifestSignature Manifest
	Thumbnails        []Thumbnail
	Author            ContentAuthor
	CreatedAt         time.Time
}

// EventKind enumerates the stages a reassembly engine can report progress
// for. pkg/pipeline.Engine publishes only EventBlockFlushed; no code in this
// module emits the other kinds.
type EventKind int

const (
	// EventBlockFetched fires once a block's ciphertext has been retrieved
	// and hash-verified, before decryption.
	EventBlockFetched EventKind = iota
	// EventBlockDecrypted fires once a block has been decrypted and is
	// ready to be flushed in order.
	EventBlockDecrypted
	// EventBlockFlushed fires once a block's plaintext has been emitted to
	// the sink, in index order.
	EventBlockFlushed
	// EventBlockRetried fires when a block is retried after a failure that
	// did not consume the pipeline's abort budget.
	EventBlockRetried
	// EventManifestVerified fires once, after the last block is flushed,
	// if the revision carries a manifest signature.
	EventManifestVerified
	// EventDone fires once after every block is flushed and any manifest
	// check completes.
	EventDone
)

// Event is one progress notification emitted by the reassembly engine.
type Event struct {
	Kind         EventKind
	BlockIndex   int
	BytesFlushed int64
	TotalFlushed int64
	Err          error
}
