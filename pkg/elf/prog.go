package elf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Prog is one program header entry in canonical form.
type Prog struct {
	Type   ProgType
	Flags  ProgFlag
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

func (p *Prog) Readable() bool   { return p.Flags&FlagR != 0 }
func (p *Prog) Writable() bool   { return p.Flags&FlagW != 0 }
func (p *Prog) Executable() bool { return p.Flags&FlagX != 0 }

// DecodeProg decodes a single program header entry. b must hold at least one
// entry of the class's size; no bounds checking is done beyond the slice
// indexing itself.
//
// The 64-bit layout places p_flags directly after p_type; the 32-bit layout
// keeps it second to last.
func DecodeProg(b []byte, class Class, o binary.ByteOrder) Prog {
	if class == Class64 {
		return Prog{
			Type:   ProgType(o.Uint32(b[0:])),
			Flags:  ProgFlag(o.Uint32(b[4:])),
			Off:    o.Uint64(b[8:]),
			Vaddr:  o.Uint64(b[16:]),
			Paddr:  o.Uint64(b[24:]),
			Filesz: o.Uint64(b[32:]),
			Memsz:  o.Uint64(b[40:]),
			Align:  o.Uint64(b[48:]),
		}
	}
	return Prog{
		Type:   ProgType(o.Uint32(b[0:])),
		Off:    uint64(o.Uint32(b[4:])),
		Vaddr:  uint64(o.Uint32(b[8:])),
		Paddr:  uint64(o.Uint32(b[12:])),
		Filesz: uint64(o.Uint32(b[16:])),
		Memsz:  uint64(o.Uint32(b[20:])),
		Flags:  ProgFlag(o.Uint32(b[24:])),
		Align:  uint64(o.Uint32(b[28:])),
	}
}

// DecodeProgs splits a whole program header table into entries.
func DecodeProgs(table []byte, h *Header) []Prog {
	size := int(h.Phentsize)
	if size == 0 {
		return nil
	}
	order := h.Ident.ByteOrder()
	progs := make([]Prog, 0, len(table)/size)
	for off := 0; off+size <= len(table); off += size {
		progs = append(progs, DecodeProg(table[off:off+size], h.Ident.Class, order))
	}
	return progs
}

// ReadProgs reads the program header table described by h from r.
func ReadProgs(r io.ReaderAt, h *Header) ([]Prog, error) {
	size := h.ProgTableSize()
	if size == 0 {
		return nil, nil
	}
	off := h.ProgTableOffset()
	if off > math.MaxInt64 || size > math.MaxInt64-off {
		return nil, fmt.Errorf("program header table at %#x+%#x: offset out of range", off, size)
	}
	table := make([]byte, size)
	n, err := r.ReadAt(table, int64(off))
	if err != nil {
		if err == io.EOF && uint64(n) == size {
			err = nil
		} else {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("read program header table at %#x (%d of %d bytes): %w", off, n, size, err)
		}
	}
	return DecodeProgs(table, h), nil
}
