// Package thumbnails implements the thumbnail batcher (C7): given a list of
// node UIDs and a thumbnail type, it resolves each node to a thumbnail UID,
// batches thumbnail-token lookups, and fetches/verifies/decrypts each
// thumbnail under bounded concurrency, delivering results as they become
// ready (no ordering requirement, unlike pkg/pipeline's strictly-ordered
// block reassembly) while preserving exactly one result per input node UID.
package thumbnails

import (
	"context"
	"sync"

	"github.com/kraklabs/drivedl/pkg/direrrors"
	"github.com/kraklabs/drivedl/pkg/protonapi"
	"github.com/kraklabs/drivedl/pkg/providers"
	"github.com/kraklabs/drivedl/pkg/revcrypto"
	"github.com/kraklabs/drivedl/pkg/revision"
)

// MaxConcurrentThumbnails bounds both the batch size of a single
// thumbnail-token request and the number of decrypt tasks in flight at
// once.
const MaxConcurrentThumbnails = 10

// MaxThumbnailAttempts is the number of retries on top of the initial
// fetch-and-decrypt attempt, for three total attempts per thumbnail.
const MaxThumbnailAttempts = 2

// Result is one node UID's thumbnail fetch-and-decrypt outcome.
type Result struct {
	NodeUID string
	OK      bool
	Bytes   []byte
	Err     error
}

// Batcher drives the three-stage pipeline (resolve, batch-token, decrypt)
// over an arbitrary list of node UIDs.
type Batcher struct {
	http    providers.HTTPClient
	nodes   providers.NodesService
	thumbs  providers.ThumbnailsService
	account providers.AccountService
}

// New builds a Batcher using the given collaborators.
func New(http providers.HTTPClient, nodes providers.NodesService, thumbs providers.ThumbnailsService, account providers.AccountService) *Batcher {
	return &Batcher{http: http, nodes: nodes, thumbs: thumbs, account: account}
}

type resolved struct {
	nodeUID     protonapi.NodeUID
	thumbnailID string
}

// Iterate resolves, batches, and decrypts thumbnails for every node in
// uids, streaming a Result per node as it completes. The channel is closed
// once every node has produced exactly one Result or ctx is canceled.
func (b *Batcher) Iterate(ctx context.Context, uids []protonapi.NodeUID, kind revision.ThumbnailType) <-chan Result {
	out := make(chan Result, len(uids))

	go func() {
		defer close(out)

		accountKeys, err := b.account.ListKeys(ctx)
		if err != nil {
			for _, uid := range uids {
				emit(ctx, out, Result{NodeUID: uid.String(), OK: false, Err: direrrors.Wrap(direrrors.Transport, "list account keys", err)})
			}
			return
		}

		resolvedList, unresolved := b.resolveAll(ctx, uids, kind)
		for _, r := range unresolved {
			emit(ctx, out, r)
		}

		sem := make(chan struct{}, MaxConcurrentThumbnails)
		var wg sync.WaitGroup

		for batchStart := 0; batchStart < len(resolvedList); batchStart += MaxConcurrentThumbnails {
			end := batchStart + MaxConcurrentThumbnails
			if end > len(resolvedList) {
				end = len(resolvedList)
			}
			batch := resolvedList[batchStart:end]
			ids := make([]string, len(batch))
			for i, r := range batch {
				ids[i] = r.thumbnailID
			}

			tokens, errs, err := b.thumbs.GetThumbnailTokens(ctx, ids)
			if err != nil {
				for _, r := range batch {
					emit(ctx, out, Result{NodeUID: r.nodeUID.String(), OK: false, Err: direrrors.Wrap(direrrors.Transport, "fetch thumbnail tokens", err)})
				}
				continue
			}

			for _, r := range batch {
				if tokErr, ok := errs[r.thumbnailID]; ok {
					emit(ctx, out, Result{NodeUID: r.nodeUID.String(), OK: false, Err: tokErr})
					continue
				}
				token, ok := tokens[r.thumbnailID]
				if !ok {
					emit(ctx, out, Result{NodeUID: r.nodeUID.String(), OK: false, Err: direrrors.Validationf("thumbnail %s not found", r.thumbnailID)})
					continue
				}

				sem <- struct{}{}
				wg.Add(1)
				go func(r resolved, token providers.ThumbnailToken) {
					defer wg.Done()
					defer func() { <-sem }()
					bytes, err := b.decryptWithRetry(ctx, r.nodeUID, token, accountKeys)
					if err != nil {
						emit(ctx, out, Result{NodeUID: r.nodeUID.String(), OK: false, Err: err})
						return
					}
					emit(ctx, out, Result{NodeUID: r.nodeUID.String(), OK: true, Bytes: bytes})
				}(r, token)
			}
		}

		wg.Wait()
	}()

	return out
}

// resolveAll resolves every node UID to a thumbnail UID, returning the
// successes and a Result for every node that failed resolution.
func (b *Batcher) resolveAll(ctx context.Context, uids []protonapi.NodeUID, kind revision.ThumbnailType) (resolvedList []resolved, failures []Result) {
	for _, uid := range uids {
		thumbnailID, err := b.thumbs.ResolveThumbnail(ctx, uid, kind)
		if err != nil {
			failures = append(failures, Result{NodeUID: uid.String(), OK: false, Err: err})
			continue
		}
		resolvedList = append(resolvedList, resolved{nodeUID: uid, thumbnailID: thumbnailID})
	}
	return resolvedList, failures
}

// decryptWithRetry fetches the node's content session key and the
// thumbnail ciphertext in parallel, then decrypts, retrying the whole
// chain up to MaxThumbnailAttempts times before surfacing the error.
func (b *Batcher) decryptWithRetry(ctx context.Context, nodeUID protonapi.NodeUID, token providers.ThumbnailToken, accountKeys []protonapi.AccountKeyDTO) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= MaxThumbnailAttempts; attempt++ {
		bytes, err := b.decryptOnce(ctx, nodeUID, token, accountKeys)
		if err == nil {
			return bytes, nil
		}
		if direrrors.IsCancellation(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

type keyFetchResult struct {
	keys revcrypto.RevisionKeys
	err  error
}

type blobFetchResult struct {
	bytes []byte
	err   error
}

func (b *Batcher) decryptOnce(ctx context.Context, nodeUID protonapi.NodeUID, token providers.ThumbnailToken, accountKeys []protonapi.AccountKeyDTO) ([]byte, error) {
	keyCh := make(chan keyFetchResult, 1)
	blobCh := make(chan blobFetchResult, 1)

	go func() {
		keys, err := b.nodeContentKey(ctx, nodeUID, accountKeys)
		keyCh <- keyFetchResult{keys: keys, err: err}
	}()
	go func() {
		raw, err := b.http.FetchBlob(ctx, token.BareURL, nil)
		blobCh <- blobFetchResult{bytes: raw, err: err}
	}()

	keyRes := <-keyCh
	blobRes := <-blobCh
	if keyRes.err != nil {
		return nil, keyRes.err
	}
	if blobRes.err != nil {
		return nil, blobRes.err
	}

	if token.Hash != "" {
		if err := revcrypto.VerifyBlockIntegrity(blobRes.bytes, token.Hash); err != nil {
			return nil, err
		}
	}
	return revcrypto.DecryptThumbnail(blobRes.bytes, keyRes.keys)
}

func (b *Batcher) nodeContentKey(ctx context.Context, nodeUID protonapi.NodeUID, accountKeys []protonapi.AccountKeyDTO) (revcrypto.RevisionKeys, error) {
	nodeKeys, err := b.nodes.GetNodeKeys(ctx, nodeUID)
	if err != nil {
		return revcrypto.RevisionKeys{}, direrrors.Wrap(direrrors.Transport, "get node keys", err)
	}
	contentKeyPacket, err := b.nodes.GetNodeContentKey(ctx, nodeUID)
	if err != nil {
		return revcrypto.RevisionKeys{}, direrrors.Wrap(direrrors.Transport, "get node content key", err)
	}
	return revcrypto.DeriveRevisionKeys(nodeKeys, accountKeys, contentKeyPacket)
}

// emit sends res on out unless ctx has already been canceled.
func emit(ctx context.Context, out chan<- Result, res Result) {
	select {
	case out <- res:
	case <-ctx.Done():
	}
}
