// Package seekable implements the seekable byte stream (C6): an
// io.ReadSeeker over a revision's decrypted plaintext that translates a
// byte offset into a block index and only fetches/decrypts the blocks a
// read actually touches, rather than materializing the whole revision.
package seekable

import (
	"context"
	"io"

	"github.com/kraklabs/drivedl/pkg/direrrors"
)

// DefaultBlockSize is the plaintext size of a full block when a revision
// carries no claimed per-block sizes.
const DefaultBlockSize = 4 * 1024 * 1024

// BlockLocation is the result of translating a plaintext byte offset into a
// 1-based block index and the byte offset within that block.
type BlockLocation struct {
	Index  int
	Offset int64
	// Done is true once the offset falls past the end of every known block
	// (only possible when claimedBlockSizes is non-empty; the uniform case
	// never reports Done).
	Done bool
}

// GetBlockIndex translates a plaintext byte position into the block it
// falls in. When claimedBlockSizes is empty, every block is assumed to be
// blockSize bytes (DefaultBlockSize if blockSize <= 0) and Done is always
// false. When claimedBlockSizes is non-empty, it is walked in order —
// zero-sized entries are permitted and simply contribute no span — and
// Done is reported once position falls at or past the declared total.
func GetBlockIndex(claimedBlockSizes []int64, blockSize, position int64) BlockLocation {
	if len(claimedBlockSizes) == 0 {
		if blockSize <= 0 {
			blockSize = DefaultBlockSize
		}
		return BlockLocation{
			Index:  int(position/blockSize) + 1,
			Offset: position % blockSize,
		}
	}

	var running int64
	for i, size := range claimedBlockSizes {
		if position < running+size {
			return BlockLocation{Index: i + 1, Offset: position - running}
		}
		running += size
	}
	return BlockLocation{Done: true}
}

// BlockProducer fetches and decrypts one block's plaintext on demand, keyed
// by the same 1-based index GetBlockIndex returns. Implementations are
// expected to cache nothing themselves; Stream holds the single
// most-recently-read block.
type BlockProducer interface {
	// GetBlock returns the decrypted plaintext of the block at index.
	GetBlock(ctx context.Context, index int) ([]byte, error)
}

// Stream is a seekable view over a revision's plaintext, backed by a
// BlockProducer and either an explicit list of per-block plaintext sizes or
// a uniform block size. A Stream holds no internal queue of read-ahead
// blocks; it caches exactly the single most-recently-read block and fetches
// synchronously on demand.
type Stream struct {
	ctx      context.Context
	producer BlockProducer

	totalSize         int64
	claimedBlockSizes []int64
	uniformBlockSize  int64

	pos int64

	curIndex int
	curBlock []byte
	haveCur  bool
}

// New builds a Stream over a revision of totalSize plaintext bytes. When
// claimedBlockSizes is non-empty it is used verbatim for offset
// translation; otherwise uniformBlockSize-sized chunks are assumed
// (DefaultBlockSize when uniformBlockSize <= 0). ctx bounds every block
// fetch the stream performs.
//
// highWaterMark must be zero: the outer seekable layer never queues blocks
// internally, it fetches exactly the block a Read or Seek needs, so there is
// no queue depth to configure. A non-zero value is rejected as a Validation
// error rather than silently ignored.
func New(ctx context.Context, producer BlockProducer, totalSize int64, claimedBlockSizes []int64, uniformBlockSize int64, highWaterMark int) (*Stream, error) {
	if highWaterMark != 0 {
		return nil, direrrors.Validationf("seekable stream must be constructed with a zero high-water mark, got %d", highWaterMark)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Stream{
		ctx:               ctx,
		producer:          producer,
		totalSize:         totalSize,
		claimedBlockSizes: claimedBlockSizes,
		uniformBlockSize:  uniformBlockSize,
		curIndex:          -1,
	}, nil
}

// GetBlockIndex returns the 1-based block index the plaintext byte at
// offset falls in, translating through the stream's own claimed block
// sizes (or uniform block size, if none were supplied).
func (s *Stream) GetBlockIndex(offset int64) BlockLocation {
	return GetBlockIndex(s.claimedBlockSizes, s.uniformBlockSize, offset)
}

// Size returns the revision's total plaintext size.
func (s *Stream) Size() int64 { return s.totalSize }

// Read implements io.Reader, filling p with plaintext starting at the
// stream's current offset and advancing it by the number of bytes read. It
// pulls as many consecutive blocks as needed to fill p, stopping only at
// EOF; a single call may therefore span several blocks.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, direrrors.Validationf("read requested into a zero-length buffer")
	}

	filled := 0
	for filled < len(p) {
		if s.totalSize > 0 && s.pos >= s.totalSize {
			break
		}

		loc := s.GetBlockIndex(s.pos)
		if loc.Done {
			break
		}

		if err := s.ensureBuffer(loc.Index); err != nil {
			if filled > 0 {
				return filled, nil
			}
			return 0, err
		}
		if loc.Offset >= int64(len(s.curBlock)) {
			break
		}

		n := copy(p[filled:], s.curBlock[loc.Offset:])
		filled += n
		s.pos += int64(n)
	}

	if filled == 0 {
		return 0, io.EOF
	}
	return filled, nil
}

// Seek implements io.Seeker. The resulting offset must not be negative; it
// may exceed the stream's total size, in which case the next Read returns
// io.EOF rather than an error.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = s.totalSize + offset
	default:
		return 0, direrrors.Validationf("invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, direrrors.Validationf("seek to negative offset %d", newPos)
	}
	s.pos = newPos
	return s.pos, nil
}

// ensureBuffer fetches and caches the block at index if it is not already
// the currently buffered block.
func (s *Stream) ensureBuffer(index int) error {
	if s.haveCur && s.curIndex == index {
		return nil
	}
	block, err := s.producer.GetBlock(s.ctx, index)
	if err != nil {
		return err
	}
	s.curIndex = index
	s.curBlock = block
	s.haveCur = true
	return nil
}
