// Package drivecore is the integrative module (C10): it wires the block
// iterator, transport, crypto service, controller, admission queue, and
// telemetry sink together behind three entry points an embedding
// application actually calls — downloading a whole revision, opening a
// seekable stream over one, and iterating thumbnails for a list of nodes.
// Config follows
// a plain ClientConfig/NewClient factory pattern: a struct of knobs plus a
// constructor, rather than a builder or options soup.
package drivecore

import (
	"context"
	"encoding/hex"
	"io"
	"time"

	"github.com/kraklabs/drivedl/pkg/admission"
	"github.com/kraklabs/drivedl/pkg/blockstream"
	"github.com/kraklabs/drivedl/pkg/control"
	"github.com/kraklabs/drivedl/pkg/direrrors"
	"github.com/kraklabs/drivedl/pkg/pipeline"
	"github.com/kraklabs/drivedl/pkg/protonapi"
	"github.com/kraklabs/drivedl/pkg/providers"
	"github.com/kraklabs/drivedl/pkg/revcrypto"
	"github.com/kraklabs/drivedl/pkg/revision"
	"github.com/kraklabs/drivedl/pkg/seekable"
	"github.com/kraklabs/drivedl/pkg/telemetry"
	"github.com/kraklabs/drivedl/pkg/thumbnails"
	"github.com/kraklabs/drivedl/pkg/transport"
)

// defaultBlockSize is the plaintext size of every block except
// possibly the last, used to translate a seek offset into a block index.
const defaultBlockSize = 4 * 1024 * 1024

// Config holds the knobs an embedding application can override; the zero
// value is not meant to be used directly, construct one with DefaultConfig.
type Config struct {
	// BaseURL is the object-store API's base URL.
	BaseURL string
	// Language is the client's locale tag. No request made by this module
	// carries it.
	Language string
	// ClientUID identifies the calling application/session. No request
	// made by this module carries it.
	ClientUID string
	// MaxConcurrency bounds how many whole-file downloads this Module runs
	// at once (the capacity of its admission queue). Block and thumbnail
	// fetch concurrency is fixed inside pkg/pipeline and pkg/thumbnails.
	MaxConcurrency int
	// HTTPTimeout bounds each HTTP attempt of the default transport built
	// when Dependencies.HTTP is nil; it does not bound retries as a whole.
	HTTPTimeout time.Duration
	// BlockSize is the plaintext size of a full block, used only for
	// seekable-stream offset translation.
	BlockSize int64
}

// DefaultConfig returns the knobs used when an embedder supplies its own
// Config built from it via field overrides. MaxConcurrency defaults to
// admission.DefaultCapacity (MAX_CONCURRENT_DOWNLOADS): the number of
// whole-file downloads this Module admits at once, unrelated to the fixed
// per-file block concurrency pkg/pipeline enforces internally.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://drive-api.proton.me",
		Language:       "en",
		MaxConcurrency: admission.DefaultCapacity,
		HTTPTimeout:    2 * time.Minute,
		BlockSize:      defaultBlockSize,
	}
}

// Dependencies are the provider-side collaborators a Module is built
// against; HTTP and Telemetry are optional and default to pkg/transport's
// retrying client and a discard sink respectively.
type Dependencies struct {
	Revisions  providers.RevisionsService
	Nodes      providers.NodesService
	Account    providers.AccountService
	Thumbnails providers.ThumbnailsService
	HTTP       providers.HTTPClient
	Telemetry  *telemetry.Sink
}

// Module is the embedding application's entry point into the download
// core.
type Module struct {
	cfg  Config
	deps Dependencies

	queue *admission.Queue
}

// New builds a Module from cfg and deps. Panics are never used for
// misconfiguration; callers that omit a required service will see errors
// surface from the first call that needs it.
func New(cfg Config, deps Dependencies) *Module {
	if deps.HTTP == nil {
		tc := transport.DefaultConfig()
		if cfg.HTTPTimeout > 0 {
			tc.Timeout = cfg.HTTPTimeout
		}
		deps.HTTP = transport.New(tc)
	}
	return &Module{
		cfg:   cfg,
		deps:  deps,
		queue: admission.New(cfg.MaxConcurrency),
	}
}

// unlockRevision resolves a revision's metadata and derives its content
// session key, the work every entry point needs before it can do anything
// with the revision's blocks or thumbnails.
func (m *Module) unlockRevision(ctx context.Context, revisionUID string) (revision.Revision, protonapi.RevisionUID, revcrypto.RevisionKeys, error) {
	uid, err := protonapi.ParseRevisionUID(revisionUID)
	if err != nil {
		return revision.Revision{}, protonapi.RevisionUID{}, revcrypto.RevisionKeys{}, direrrors.Wrap(direrrors.Validation, "parse revision UID", err)
	}

	rev, err := m.deps.Revisions.GetRevision(ctx, uid)
	if err != nil {
		return revision.Revision{}, uid, revcrypto.RevisionKeys{}, direrrors.Wrap(direrrors.Transport, "get revision", err)
	}

	nodeKeys, err := m.deps.Nodes.GetNodeKeys(ctx, uid.NodeUID())
	if err != nil {
		return revision.Revision{}, uid, revcrypto.RevisionKeys{}, direrrors.Wrap(direrrors.Transport, "get node keys", err)
	}

	accountKeys, err := m.deps.Account.ListKeys(ctx)
	if err != nil {
		return revision.Revision{}, uid, revcrypto.RevisionKeys{}, direrrors.Wrap(direrrors.Transport, "list account keys", err)
	}

	keys, err := revcrypto.DeriveRevisionKeys(nodeKeys, accountKeys, rev.ManifestSignature.ContentKeyPacket)
	if err != nil {
		return revision.Revision{}, uid, revcrypto.RevisionKeys{}, err
	}

	return rev, uid, keys, nil
}

// DownloadRevision fetches, verifies, and decrypts every block of the
// named revision, flushing plaintext to sink in order, and verifies the
// manifest signature once reassembly completes. ctrl governs pause/resume;
// pass control.New() for a fresh, unpaused controller if the caller does
// not need to pause this particular download. Plaintext is written as it
// becomes available rather than buffered and returned as a separate step.
func (m *Module) DownloadRevision(ctx context.Context, revisionUID string, sink io.Writer, ctrl *control.Controller) error {
	return m.downloadRevision(ctx, revisionUID, sink, ctrl, false)
}

// UnsafeDownloadRevision is DownloadRevision's unsafe_write_to_sink
// counterpart: it skips per-block hash verification and the final manifest
// signature check entirely. Only appropriate when the caller has already
// established trust in the ciphertext by some other means.
func (m *Module) UnsafeDownloadRevision(ctx context.Context, revisionUID string, sink io.Writer, ctrl *control.Controller) error {
	return m.downloadRevision(ctx, revisionUID, sink, ctrl, true)
}

// DownloadFile resolves nodeUID's active revision, rejects folders and
// nodes without a usable revision, then downloads exactly as
// DownloadRevision would.
func (m *Module) DownloadFile(ctx context.Context, nodeUID string, sink io.Writer, ctrl *control.Controller) error {
	revisionUID, err := m.resolveFileRevision(ctx, nodeUID)
	if err != nil {
		if sinkTelemetry := m.revisionTelemetryForNode(nodeUID); sinkTelemetry != nil {
			sinkTelemetry.InitFailed(err)
		}
		return err
	}
	return m.downloadRevision(ctx, revisionUID, sink, ctrl, false)
}

// UnsafeDownloadFile is DownloadFile's unsafe_write_to_sink counterpart.
func (m *Module) UnsafeDownloadFile(ctx context.Context, nodeUID string, sink io.Writer, ctrl *control.Controller) error {
	revisionUID, err := m.resolveFileRevision(ctx, nodeUID)
	if err != nil {
		if sinkTelemetry := m.revisionTelemetryForNode(nodeUID); sinkTelemetry != nil {
			sinkTelemetry.InitFailed(err)
		}
		return err
	}
	return m.downloadRevision(ctx, revisionUID, sink, ctrl, true)
}

// resolveFileRevision enforces a file download's preconditions: the node
// must be a file with an ok-result active revision. Precondition failures
// are Validation errors, never retried.
func (m *Module) resolveFileRevision(ctx context.Context, nodeUID string) (string, error) {
	uid, err := protonapi.ParseNodeUID(nodeUID)
	if err != nil {
		return "", direrrors.Wrap(direrrors.Validation, "parse node UID", err)
	}

	node, err := m.deps.Nodes.GetNode(ctx, uid)
	if err != nil {
		return "", direrrors.Wrap(direrrors.Transport, "get node", err)
	}
	if node.Type == revision.NodeTypeFolder {
		return "", direrrors.Validationf("node %s is a folder, not a file", nodeUID)
	}
	if !node.ActiveRevision.OK() {
		if node.ActiveRevision.Err != nil {
			return "", direrrors.Wrap(direrrors.Validation, "node has no usable active revision", node.ActiveRevision.Err)
		}
		return "", direrrors.Validationf("node %s has no active revision", nodeUID)
	}

	return uid.Revision(node.ActiveRevision.UID).String(), nil
}

func (m *Module) revisionTelemetryForNode(nodeUID string) *telemetry.Sink {
	if m.deps.Telemetry == nil {
		return nil
	}
	return m.deps.Telemetry.ForRevision(nodeUID)
}

func (m *Module) downloadRevision(ctx context.Context, revisionUID string, sink io.Writer, ctrl *control.Controller, unsafe bool) error {
	if err := m.queue.Acquire(ctx); err != nil {
		return direrrors.Wrap(direrrors.Cancellation, "admission queue", err)
	}
	defer m.queue.Release()

	rev, uid, keys, err := m.unlockRevision(ctx, revisionUID)
	if err != nil {
		if sinkTelemetry := m.revisionTelemetry(uid); sinkTelemetry != nil {
			sinkTelemetry.InitFailed(err)
		}
		return err
	}

	sinkTelemetry := m.revisionTelemetry(uid)
	engine := pipeline.New(pipeline.Config{
		Revisions:   m.deps.Revisions,
		HTTP:        m.httpClient(),
		Ctrl:        ctrl,
		Telemetry:   sinkTelemetry,
		Unsafe:      unsafe,
		ClaimedSize: rev.Size,
	}, uid, keys)

	it := blockstream.NewIterator(m.deps.Revisions, uid)
	if err := engine.Run(ctx, it, sink); err != nil {
		return err
	}

	if unsafe {
		return nil
	}

	// Manifest verification runs once, after every block has already been
	// individually hash-verified and decrypted; a failure here is always
	// reported even though bytes have already reached sink.
	digest := allBlockHashesInOrder(rev, engine)
	if err := revcrypto.VerifyManifest(digest, rev.ManifestSignature.ArmoredSignature, keys); err != nil {
		if sinkTelemetry != nil {
			sinkTelemetry.ManifestVerified(false, err)
		}
		return err
	}
	if sinkTelemetry != nil {
		sinkTelemetry.ManifestVerified(true, nil)
	}
	return nil
}

// allBlockHashesInOrder rebuilds the exact plaintext the manifest signature
// was computed over: the concatenation of raw SHA-256 digests in the order
// they were yielded by the block metadata iterator — every thumbnail in its
// listed order, then every data block in index order.
func allBlockHashesInOrder(rev revision.Revision, engine *pipeline.Engine) []byte {
	var out []byte
	for _, thumb := range rev.Thumbnails {
		raw, err := hex.DecodeString(thumb.Hash)
		if err != nil {
			continue
		}
		out = append(out, raw...)
	}
	out = append(out, engine.OrderedBlockHashes()...)
	return out
}

// revisionDigestProducer wraps the module's block-fetch/decrypt path as a
// seekable.BlockProducer by first materializing the revision's full block
// metadata list, since random access needs to address any index directly
// rather than walking the listing in order.
type revisionDigestProducer struct {
	m    *Module
	uid  protonapi.RevisionUID
	keys revcrypto.RevisionKeys

	byIndex map[int]revision.BlockMetadata
}

func (p *revisionDigestProducer) GetBlock(ctx context.Context, index int) ([]byte, error) {
	meta, ok := p.byIndex[index]
	if !ok {
		return nil, direrrors.Validationf("block index %d out of range", index)
	}

	ciphertext, err := p.m.httpClient().FetchBlob(ctx, meta.BareURL, nil)
	if err != nil {
		if direrrors.IsAuthExpired(err) {
			refreshed, rerr := blockstream.GetBlockToken(ctx, p.m.deps.Revisions, p.uid, index)
			if rerr != nil {
				return nil, rerr
			}
			meta = blockstream.MergeRefreshedToken(meta, refreshed)
			p.byIndex[index] = meta
			ciphertext, err = p.m.httpClient().FetchBlob(ctx, meta.BareURL, nil)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := revcrypto.VerifyBlockIntegrity(ciphertext, meta.Hash); err != nil {
		return nil, err
	}
	return revcrypto.DecryptBlock(ciphertext, p.keys)
}

// OpenSeekableStream returns an io.ReadSeeker over the named revision's
// plaintext, fetching and decrypting only the blocks a caller actually
// reads.
func (m *Module) OpenSeekableStream(ctx context.Context, revisionUID string) (*seekable.Stream, error) {
	rev, uid, keys, err := m.unlockRevision(ctx, revisionUID)
	if err != nil {
		return nil, err
	}

	producer := &revisionDigestProducer{m: m, uid: uid, keys: keys, byIndex: make(map[int]revision.BlockMetadata)}
	it := blockstream.NewIterator(m.deps.Revisions, uid)
	for {
		meta, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		producer.byIndex[meta.Index] = meta
	}

	blockSize := m.cfg.BlockSize
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	return seekable.New(ctx, producer, rev.Size, rev.ClaimedBlockSizes, blockSize, 0)
}

// IterateThumbnails resolves, fetches, and decrypts one thumbnail per node
// in nodeUIDs, streaming a result per node as it completes. Unlike block
// reassembly, thumbnails carry no ordering requirement and are bounded by
// their own concurrency cap (pkg/thumbnails.MaxConcurrentThumbnails), not
// by this Module's file-level admission queue.
func (m *Module) IterateThumbnails(ctx context.Context, nodeUIDs []string, kind revision.ThumbnailType) (<-chan thumbnails.Result, error) {
	uids := make([]protonapi.NodeUID, len(nodeUIDs))
	for i, raw := range nodeUIDs {
		uid, err := protonapi.ParseNodeUID(raw)
		if err != nil {
			return nil, direrrors.Wrap(direrrors.Validation, "parse node UID", err)
		}
		uids[i] = uid
	}
	batcher := thumbnails.New(m.httpClient(), m.deps.Nodes, m.deps.Thumbnails, m.deps.Account)
	return batcher.Iterate(ctx, uids, kind), nil
}

func (m *Module) httpClient() providers.HTTPClient {
	return m.deps.HTTP
}

func (m *Module) revisionTelemetry(uid protonapi.RevisionUID) *telemetry.Sink {
	if m.deps.Telemetry == nil {
		return nil
	}
	return m.deps.Telemetry.ForRevision(uid.String())
}
