package flatten

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/samcharles93/elfcopyflat/pkg/elf"
)

var ErrBelowBase = errors.New("segment address below base")

const zeroChunk = 32 << 10

var zeros [zeroChunk]byte

// ResolveBase returns base if set, otherwise the lowest virtual address among
// sorted (which must be address-ordered), or 0 for an empty selection.
func ResolveBase(sorted []elf.Prog, base *uint64) uint64 {
	if base != nil {
		return *base
	}
	if len(sorted) == 0 {
		return 0
	}
	return sorted[0].Vaddr
}

// CopyOptions tunes Copy.
type CopyOptions struct {
	// ZeroFill writes zeros over p_filesz..p_memsz of every segment instead
	// of leaving that range to the sink.
	ZeroFill bool
}

// Copy writes each segment's file bytes to dst at Vaddr-base. Writes are
// positioned independently; bytes between segments are never written.
// It returns the number of bytes written.
func Copy(ctx context.Context, dst io.WriterAt, src io.ReaderAt, sorted []elf.Prog, base uint64, opts CopyOptions) (int64, error) {
	var total int64
	for i := range sorted {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := copySegment(dst, src, &sorted[i], base, opts)
		total += n
		if err != nil {
			return total, fmt.Errorf("segment at %#x: %w", sorted[i].Vaddr, err)
		}
	}
	return total, nil
}

func copySegment(dst io.WriterAt, src io.ReaderAt, p *elf.Prog, base uint64, opts CopyOptions) (int64, error) {
	if p.Vaddr < base {
		return 0, fmt.Errorf("%w %#x", ErrBelowBase, base)
	}
	pos := p.Vaddr - base
	if pos > math.MaxInt64 || p.Memsz > math.MaxInt64-pos {
		return 0, fmt.Errorf("output position %#x+%#x out of range", pos, p.Memsz)
	}
	if p.Off > math.MaxInt64 || p.Filesz > math.MaxInt64-p.Off {
		return 0, fmt.Errorf("file range %#x+%#x out of range", p.Off, p.Filesz)
	}

	r := io.NewSectionReader(src, int64(p.Off), int64(p.Filesz))
	w := io.NewOffsetWriter(dst, int64(pos))
	n, err := io.Copy(w, r)
	if err != nil {
		return n, fmt.Errorf("copy %#x bytes from file offset %#x: %w", p.Filesz, p.Off, err)
	}
	if uint64(n) != p.Filesz {
		return n, fmt.Errorf("read %#x of %#x bytes at file offset %#x: %w",
			n, p.Filesz, p.Off, io.ErrUnexpectedEOF)
	}
	if !opts.ZeroFill || p.Memsz <= p.Filesz {
		return n, nil
	}

	tail := int64(p.Memsz - p.Filesz)
	for tail > 0 {
		chunk := min(tail, zeroChunk)
		m, err := w.Write(zeros[:chunk])
		n += int64(m)
		if err != nil {
			return n, fmt.Errorf("zero-fill at %#x: %w", pos+p.Filesz, err)
		}
		tail -= chunk
	}
	return n, nil
}
