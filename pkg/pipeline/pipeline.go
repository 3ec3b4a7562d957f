// Package pipeline implements the ordered reassembly engine (C5): it pulls
// block metadata lazily from pkg/blockstream, fetches and decrypts blocks
// under a bounded number of concurrent block tasks, and flushes decrypted
// plaintext to a sink strictly in block-index order regardless of the
// order the underlying fetches complete in.
package pipeline

import (
	"context"
	"encoding/hex"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kraklabs/drivedl/pkg/blockstream"
	"github.com/kraklabs/drivedl/pkg/control"
	"github.com/kraklabs/drivedl/pkg/direrrors"
	"github.com/kraklabs/drivedl/pkg/protonapi"
	"github.com/kraklabs/drivedl/pkg/providers"
	"github.com/kraklabs/drivedl/pkg/revcrypto"
	"github.com/kraklabs/drivedl/pkg/revision"
	"github.com/kraklabs/drivedl/pkg/telemetry"
)

// maxBlockConcurrency bounds how many block tasks a single Engine keeps in
// flight at once. It is independent of the admission.Queue's global cap on
// whole-file downloads; the two are unrelated dimensions of concurrency.
const maxBlockConcurrency = 10

// Engine is the ordered reassembly engine for one revision download. An
// Engine may be run exactly once: a second call to Run fails with a
// Validation error rather than silently re-downloading.
type Engine struct {
	revisions providers.RevisionsService
	http      providers.HTTPClient
	ctrl      *control.Controller
	sink      telemetry.Sink
	unsafe    bool

	uid  protonapi.RevisionUID
	keys revcrypto.RevisionKeys

	localCap int
	started  int32

	mu           sync.Mutex
	pending      map[int][]byte
	nextFlush    int
	totalFlushed int64
	blockHashes  map[int][]byte

	fetchedBytes int64
	claimedSize  int64

	events chan revision.Event
}

// Config bundles the collaborators an Engine needs, grounded on the
// provider interfaces and supporting services built elsewhere in this
// module.
type Config struct {
	Revisions providers.RevisionsService
	HTTP      providers.HTTPClient
	Ctrl      *control.Controller
	Telemetry *telemetry.Sink
	// Unsafe skips per-block hash verification (the manifest signature
	// check, performed one layer up once Run returns, is skipped by the
	// caller instead).
	Unsafe bool
	// ClaimedSize is the revision's uploader-declared total plaintext size,
	// reported alongside a fatal failure's transferred-byte count. Zero if
	// the revision did not declare one.
	ClaimedSize int64
}

// New builds an Engine for one revision, ready to run against out. Block
// concurrency is always bounded by maxBlockConcurrency: it is local to one
// Engine and unrelated to the caller's admission.Queue, which bounds how
// many whole-file downloads (not blocks) run at once.
func New(cfg Config, uid protonapi.RevisionUID, keys revcrypto.RevisionKeys) *Engine {
	sink := telemetry.Sink{}
	if cfg.Telemetry != nil {
		sink = *cfg.Telemetry
	} else {
		sink = *telemetry.New(io.Discard, zerolog.Disabled)
	}
	return &Engine{
		revisions:   cfg.Revisions,
		http:        cfg.HTTP,
		ctrl:        cfg.Ctrl,
		sink:        sink,
		unsafe:      cfg.Unsafe,
		claimedSize: cfg.ClaimedSize,
		uid:         uid,
		keys:        keys,
		localCap:    maxBlockConcurrency,
		pending:     make(map[int][]byte),
		nextFlush:   1,
		blockHashes: make(map[int][]byte),
		events:      make(chan revision.Event, 16),
	}
}

// Events returns the channel Run publishes progress on. Run closes it when
// it returns.
func (e *Engine) Events() <-chan revision.Event {
	return e.events
}

type taskOutcome struct {
	index     int
	plaintext []byte
	err       error
}

// Run drives the iterator to completion, fetching and decrypting blocks
// under bounded concurrency and flushing plaintext to sink strictly in
// index order. It returns the first fatal error encountered, or nil once
// every block has been flushed.
func (e *Engine) Run(ctx context.Context, it *blockstream.Iterator, sink providers.Sink) error {
	if !atomic.CompareAndSwapInt32(&e.started, 0, 1) {
		return direrrors.Validationf("Download already started")
	}
	defer close(e.events)

	done := make(chan taskOutcome, e.localCap)
	inFlight := 0
	exhausted := false
	var firstErr error

	for {
		if firstErr == nil && !exhausted && inFlight+e.pendingCount() < e.localCap {
			if err := e.ctrl.WaitWhilePaused(ctx); err != nil {
				firstErr = err
			} else {
				meta, ok, err := it.Next(ctx)
				switch {
				case err != nil:
					firstErr = err
				case !ok:
					exhausted = true
				default:
					inFlight++
					go e.runBlockTask(ctx, meta, done)
					continue
				}
			}
		}

		if inFlight == 0 && (exhausted || firstErr != nil) {
			break
		}

		select {
		case res := <-done:
			inFlight--
			if res.err != nil {
				if firstErr == nil {
					firstErr = res.err
				}
				continue
			}
			if flushErr := e.accept(res.index, res.plaintext, sink); flushErr != nil && firstErr == nil {
				firstErr = flushErr
			}
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		}
	}

	if firstErr == nil {
		if err := e.drainStrict(); err != nil {
			firstErr = err
		}
	}

	transferred := atomic.LoadInt64(&e.fetchedBytes)
	if firstErr != nil {
		e.sink.Failed(firstErr, transferred, e.claimedSize)
	} else {
		e.sink.Finished(transferred)
	}
	e.ctrl.Finish(firstErr)
	return firstErr
}

// runBlockTask fetches, hash-verifies, and decrypts one block, retrying
// transient failures once and refreshing an expired token transparently
// without consuming that retry budget.
func (e *Engine) runBlockTask(ctx context.Context, meta revision.BlockMetadata, done chan<- taskOutcome) {
	plaintext, err := e.fetchAndDecrypt(ctx, meta)
	done <- taskOutcome{index: meta.Index, plaintext: plaintext, err: err}
}

func (e *Engine) fetchAndDecrypt(ctx context.Context, meta revision.BlockMetadata) ([]byte, error) {
	retried := false
	for {
		var attemptBytes int64
		onProgress := func(n int64) {
			atomic.AddInt64(&attemptBytes, n)
			atomic.AddInt64(&e.fetchedBytes, n)
		}

		ciphertext, err := e.http.FetchBlob(ctx, meta.BareURL, onProgress)
		if err == nil {
			if e.unsafe {
				err = nil
			} else {
				err = revcrypto.VerifyBlockIntegrity(ciphertext, meta.Hash)
			}
			if err == nil {
				var plain []byte
				plain, err = revcrypto.DecryptBlock(ciphertext, e.keys)
				if err == nil {
					e.sink.BlockFetched(meta.Index, int64(len(ciphertext)))
					e.recordBlockHash(meta.Index, meta.Hash)
					return plain, nil
				}
			}
		}

		// Compensate any progress the failed attempt reported before
		// either refreshing the token or retrying the whole block.
		atomic.AddInt64(&e.fetchedBytes, -atomic.LoadInt64(&attemptBytes))

		if direrrors.IsAuthExpired(err) {
			refreshed, rerr := blockstream.GetBlockToken(ctx, e.revisions, e.uid, meta.Index)
			if rerr != nil {
				return nil, rerr
			}
			meta = blockstream.MergeRefreshedToken(meta, refreshed)
			e.sink.BlockRetried(meta.Index, "auth_expired")
			continue
		}

		if direrrors.IsCancellation(err) {
			return nil, err
		}

		if retried {
			return nil, err
		}
		retried = true
		e.sink.BlockRetried(meta.Index, direrrors.ClassOf(err).String())
	}
}

// pendingCount returns the number of completed-but-unflushed blocks
// currently buffered, so the dispatch loop can bound the true ongoing set
// (in-flight plus buffered) rather than in-flight fetches alone.
func (e *Engine) pendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// accept buffers a completed block and flushes every strictly-ordered
// prefix of pending blocks that is now contiguous, guarding the shared
// state with a mutex never held across a write to sink.
func (e *Engine) accept(index int, plaintext []byte, sink providers.Sink) error {
	e.mu.Lock()
	e.pending[index] = plaintext
	e.mu.Unlock()
	return e.flushReady(sink)
}

func (e *Engine) flushReady(sink providers.Sink) error {
	for {
		e.mu.Lock()
		data, ok := e.pending[e.nextFlush]
		if !ok {
			e.mu.Unlock()
			return nil
		}
		index := e.nextFlush
		delete(e.pending, index)
		e.nextFlush++
		e.mu.Unlock()

		if _, err := sink.Write(data); err != nil {
			return direrrors.Wrap(direrrors.Transport, "write to sink", err)
		}
		e.mu.Lock()
		e.totalFlushed += int64(len(data))
		total := e.totalFlushed
		e.mu.Unlock()

		e.sink.BlockFlushed(index, int64(len(data)), total)
		e.publish(revision.Event{Kind: revision.EventBlockFlushed, BlockIndex: index, BytesFlushed: int64(len(data)), TotalFlushed: total})
	}
}

// drainStrict asserts every block was flushed: a non-empty pending map here
// means a gap was never filled despite the iterator and every task
// reporting success, which is a fatal invariant violation rather than a
// recoverable condition.
func (e *Engine) drainStrict() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) != 0 {
		return direrrors.Fatalf("reassembly finished with %d unflushed block(s) still pending for revision %s", len(e.pending), e.uid)
	}
	return nil
}

// recordBlockHash stashes the decoded raw digest of a successfully
// fetched block's claimed hash, keyed by index, so OrderedBlockHashes can
// later hand the manifest check the same ordering it expects: index order
// regardless of which order the fetches actually completed in.
func (e *Engine) recordBlockHash(index int, hexHash string) {
	raw, err := hex.DecodeString(hexHash)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.blockHashes[index] = raw
	e.mu.Unlock()
}

// OrderedBlockHashes returns every recorded block's raw digest concatenated
// in ascending index order. Only meaningful after Run has returned nil;
// the manifest signature covers this concatenation appended after the
// revision's thumbnail hashes.
func (e *Engine) OrderedBlockHashes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	indices := make([]int, 0, len(e.blockHashes))
	for idx := range e.blockHashes {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	var out []byte
	for _, idx := range indices {
		out = append(out, e.blockHashes[idx]...)
	}
	return out
}

func (e *Engine) publish(ev revision.Event) {
	select {
	case e.events <- ev:
	default:
	}
}
