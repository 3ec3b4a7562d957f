package seekable

import (
	"context"
	"io"
	"testing"
)

type fakeProducer struct {
	blocks map[int][]byte
	calls  map[int]int
}

// newUniformProducer builds a fake producer over 1-based blocks, each
// blockLen bytes, where byte j of block k (0-based) equals k*blockLen + j,
// a deterministic fixture for checking exactly which blocks a read touches.
func newUniformProducer(count, blockLen int) *fakeProducer {
	p := &fakeProducer{blocks: make(map[int][]byte), calls: make(map[int]int)}
	for k := 0; k < count; k++ {
		b := make([]byte, blockLen)
		for j := range b {
			b[j] = byte(k*blockLen + j)
		}
		p.blocks[k+1] = b
	}
	return p
}

func (p *fakeProducer) GetBlock(ctx context.Context, index int) ([]byte, error) {
	p.calls[index]++
	b, ok := p.blocks[index]
	if !ok {
		return nil, io.EOF
	}
	return b, nil
}

func newStream(t *testing.T, producer BlockProducer, totalSize int64, claimedBlockSizes []int64, uniformBlockSize int64) *Stream {
	t.Helper()
	s, err := New(context.Background(), producer, totalSize, claimedBlockSizes, uniformBlockSize, 0)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	return s
}

func TestNewRejectsNonZeroHighWaterMark(t *testing.T) {
	producer := &fakeProducer{blocks: map[int][]byte{1: []byte("aaaa")}, calls: map[int]int{}}
	if _, err := New(context.Background(), producer, 4, nil, 4, 1); err == nil {
		t.Fatal("expected a non-zero high-water mark to be rejected")
	}
}

func TestReadSequentialAcrossBlocks(t *testing.T) {
	producer := &fakeProducer{blocks: map[int][]byte{1: []byte("aaaa"), 2: []byte("bbbb"), 3: []byte("cc")}, calls: map[int]int{}}
	s := newStream(t, producer, 10, nil, 4)

	buf := make([]byte, 10)
	total := 0
	for total < len(buf) {
		n, err := s.Read(buf[total:])
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if string(buf[:total]) != "aaaabbbbcc" {
		t.Fatalf("got %q", buf[:total])
	}
}

func TestSeekAndGetBlockIndex(t *testing.T) {
	producer := &fakeProducer{blocks: map[int][]byte{1: []byte("aaaa"), 2: []byte("bbbb"), 3: []byte("cc")}, calls: map[int]int{}}
	s := newStream(t, producer, 10, nil, 4)

	if loc := s.GetBlockIndex(5); loc.Index != 2 {
		t.Fatalf("GetBlockIndex(5) = %+v, want Index 2", loc)
	}

	pos, err := s.Seek(8, io.SeekStart)
	if err != nil || pos != 8 {
		t.Fatalf("seek failed: pos=%d err=%v", pos, err)
	}
	buf := make([]byte, 2)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("read after seek: %v", err)
	}
	if string(buf[:n]) != "cc" {
		t.Fatalf("got %q, want cc", buf[:n])
	}
}

func TestSeekRejectsNegativeResult(t *testing.T) {
	producer := &fakeProducer{blocks: map[int][]byte{1: []byte("aaaa")}, calls: map[int]int{}}
	s := newStream(t, producer, 4, nil, 4)
	if _, err := s.Seek(-1, io.SeekStart); err == nil {
		t.Fatal("expected error seeking to negative offset")
	}
}

func TestReadPastEndReturnsEOF(t *testing.T) {
	producer := &fakeProducer{blocks: map[int][]byte{1: []byte("aaaa")}, calls: map[int]int{}}
	s := newStream(t, producer, 4, nil, 4)
	if _, err := s.Seek(4, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	buf := make([]byte, 1)
	_, err := s.Read(buf)
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestEnsureBufferCachesCurrentBlock(t *testing.T) {
	producer := &fakeProducer{blocks: map[int][]byte{1: []byte("aaaa"), 2: []byte("bbbb")}, calls: map[int]int{}}
	s := newStream(t, producer, 8, nil, 4)

	buf := make([]byte, 1)
	for i := 0; i < 4; i++ {
		if _, err := s.Read(buf); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	if producer.calls[1] != 1 {
		t.Fatalf("expected block 1 fetched once, got %d calls", producer.calls[1])
	}
}

// TestReadWithInBlockSeekDecryptsOnlyTouchedBlocks covers 16-byte blocks,
// read(5) then two seeks landing first inside the same block and then two
// blocks further along.
func TestReadWithInBlockSeekDecryptsOnlyTouchedBlocks(t *testing.T) {
	producer := newUniformProducer(4, 16)
	s := newStream(t, producer, 64, nil, 16)

	buf := make([]byte, 5)
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("read 1: %v", err)
	}
	for i, want := range []byte{0, 1, 2, 3, 4} {
		if buf[i] != want {
			t.Fatalf("byte %d = %d, want %d", i, buf[i], want)
		}
	}
	if producer.calls[1] != 1 {
		t.Fatalf("expected block 1 decrypted once after first read, got %d", producer.calls[1])
	}

	if _, err := s.Seek(10, io.SeekStart); err != nil {
		t.Fatalf("seek to 10: %v", err)
	}
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("read 2: %v", err)
	}
	for i, want := range []byte{10, 11, 12, 13, 14} {
		if buf[i] != want {
			t.Fatalf("byte %d = %d, want %d", i, buf[i], want)
		}
	}
	if producer.calls[1] != 1 {
		t.Fatalf("expected no new decrypt for an in-block seek, still want 1 call, got %d", producer.calls[1])
	}

	if _, err := s.Seek(30, io.SeekStart); err != nil {
		t.Fatalf("seek to 30: %v", err)
	}
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("read 3: %v", err)
	}
	for i, want := range []byte{30, 31, 32, 33, 34} {
		if buf[i] != want {
			t.Fatalf("byte %d = %d, want %d", i, buf[i], want)
		}
	}
	totalDecrypts := producer.calls[1] + producer.calls[2] + producer.calls[3] + producer.calls[4]
	if totalDecrypts != 3 {
		t.Fatalf("expected 3 total block decrypts across the whole sequence, got %d", totalDecrypts)
	}
}

// TestGetBlockIndexWithClaimedSizes covers non-uniform claimed block
// sizes = [1024, 2048, 4096].
func TestGetBlockIndexWithClaimedSizes(t *testing.T) {
	sizes := []int64{1024, 2048, 4096}
	cases := []struct {
		pos        int64
		wantIndex  int
		wantOffset int64
		wantDone   bool
	}{
		{0, 1, 0, false},
		{1024, 2, 0, false},
		{1024 + 2048 - 1, 2, 2047, false},
		{1024 + 2048, 3, 0, false},
		{7167, 3, 4095, false},
		{7168, 0, 0, true},
	}
	for _, c := range cases {
		got := GetBlockIndex(sizes, 0, c.pos)
		if got.Done != c.wantDone {
			t.Fatalf("pos %d: Done = %v, want %v", c.pos, got.Done, c.wantDone)
		}
		if c.wantDone {
			continue
		}
		if got.Index != c.wantIndex || got.Offset != c.wantOffset {
			t.Fatalf("pos %d: got (index=%d, offset=%d), want (index=%d, offset=%d)",
				c.pos, got.Index, got.Offset, c.wantIndex, c.wantOffset)
		}
	}
}

// TestGetBlockIndexSkipsZeroSizedEntries covers zero-sized claimed entries
// for sizes = [0, 1000, 0, 2000].
func TestGetBlockIndexSkipsZeroSizedEntries(t *testing.T) {
	sizes := []int64{0, 1000, 0, 2000}
	got := GetBlockIndex(sizes, 0, 500)
	if got.Done || got.Index != 2 || got.Offset != 500 {
		t.Fatalf("got %+v, want (index=2, offset=500, done=false)", got)
	}
}

// TestGetBlockIndexUniformNeverDone checks the unsized-case contract: Done
// is always false, translation is purely modular arithmetic over
// blockSize.
func TestGetBlockIndexUniformNeverDone(t *testing.T) {
	loc := GetBlockIndex(nil, DefaultBlockSize, DefaultBlockSize*3+17)
	if loc.Done {
		t.Fatal("uniform-size GetBlockIndex must never report Done")
	}
	if loc.Index != 4 || loc.Offset != 17 {
		t.Fatalf("got %+v, want (index=4, offset=17)", loc)
	}
}
