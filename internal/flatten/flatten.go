// Package flatten selects the loadable segments of a parsed ELF image and
// writes them out as a flat binary positioned by virtual address.
package flatten

import (
	"context"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/samcharles93/elfcopyflat/internal/logger"
	"github.com/samcharles93/elfcopyflat/pkg/elf"
)

// Options configures a conversion.
type Options struct {
	Filter Filter
	// Base overrides the output base address. Nil means the lowest selected
	// address.
	Base          *uint64
	AllowOverlaps bool
	ZeroFill      bool
}

// Source is a parsed image whose segment offsets resolve through ReadAt.
type Source interface {
	io.ReaderAt
	ProgHeaders() (*elf.Header, []elf.Prog)
}

// Result describes a conversion, for display by the caller.
type Result struct {
	Header   elf.Header
	Segments []elf.Prog
	Base     uint64
	Overlaps []*OverlapError
	Written  int64
}

// Plan selects and checks segments without writing anything. Overlaps are
// returned as an error unless opts.AllowOverlaps is set; the Result is
// populated either way.
func Plan(ctx context.Context, src Source, opts Options) (*Result, error) {
	log := logger.FromContext(ctx)

	hdr, progs := src.ProgHeaders()
	sorted := Select(progs, opts.Filter)
	res := &Result{
		Header:   *hdr,
		Segments: sorted,
		Base:     ResolveBase(sorted, opts.Base),
		Overlaps: Overlaps(sorted),
	}

	log.Debug("selected segments",
		"class", hdr.Ident.Class.String(),
		"data", hdr.Ident.Data.String(),
		"total", len(progs),
		"selected", len(sorted),
	)
	for i := range sorted {
		p := &sorted[i]
		log.Debug("segment",
			"flags", p.Flags.String(),
			"offset", hex(p.Off),
			"filesz", hex(p.Filesz),
			"vaddr", hex(p.Vaddr),
			"memsz", hex(p.Memsz),
			"size", humanize.IBytes(p.Filesz),
		)
	}
	for _, o := range res.Overlaps {
		log.Warn("overlapping segments", "addr", hex(o.Addr), "size", hex(o.Size), "next", hex(o.Next))
	}
	log.Debug("base address", "base", hex(res.Base))

	if len(res.Overlaps) > 0 && !opts.AllowOverlaps {
		return res, CheckOverlaps(sorted)
	}
	return res, nil
}

// Run plans the conversion and copies the selected segments to dst.
func Run(ctx context.Context, src Source, dst io.WriterAt, opts Options) (*Result, error) {
	res, err := Plan(ctx, src, opts)
	if err != nil {
		return res, err
	}
	n, err := Copy(ctx, dst, src, res.Segments, res.Base, CopyOptions{ZeroFill: opts.ZeroFill})
	res.Written = n
	if err != nil {
		return res, err
	}
	logger.FromContext(ctx).Debug("copied segments", "bytes", n, "size", humanize.IBytes(uint64(n)))
	return res, nil
}

func hex(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}
