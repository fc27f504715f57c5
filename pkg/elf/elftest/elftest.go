// Package elftest builds small ELF images in memory for tests.
package elftest

import (
	"encoding/binary"

	"github.com/samcharles93/elfcopyflat/pkg/elf"
)

// Segment is a program header plus the bytes it covers in the file.
// Filesz is len(Data); the file offset is assigned by Image.Bytes.
type Segment struct {
	Type  elf.ProgType
	Flags elf.ProgFlag
	Vaddr uint64
	Paddr uint64
	Memsz uint64
	Align uint64
	Data  []byte
}

// Image describes an ELF file. Zero overrides mean "use the structural
// value".
type Image struct {
	Class    elf.Class
	Data     elf.Data
	Version  elf.Version
	Type     elf.Type
	Machine  uint16
	Entry    uint64
	Flags    uint32
	Segments []Segment

	Magic     string
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16

	// Section header fields are written verbatim; no table is emitted.
	Shoff     uint64
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

const dataAlign = 16

// Bytes lays out the header, the program header table directly after it and
// then each segment's data, 16-byte aligned.
func (img Image) Bytes() []byte {
	b, _ := img.Build()
	return b
}

// Build is Bytes plus the program headers as written.
func (img Image) Build() ([]byte, []elf.Prog) {
	if img.Class == elf.ClassNone {
		img.Class = elf.Class64
	}
	if img.Data == elf.DataNone {
		img.Data = elf.DataLSB
	}
	if img.Version == 0 {
		img.Version = elf.VersionCurrent
	}
	if img.Type == elf.TypeNone {
		img.Type = elf.TypeExec
	}
	if img.Magic == "" {
		img.Magic = elf.Magic
	}

	hsize, psize := elf.Header64Size, elf.Prog64Size
	if img.Class == elf.Class32 {
		hsize, psize = elf.Header32Size, elf.Prog32Size
	}
	ehsize := img.Ehsize
	if ehsize == 0 {
		ehsize = uint16(hsize)
	}
	phentsize := img.Phentsize
	if phentsize == 0 {
		phentsize = uint16(psize)
	}
	phnum := img.Phnum
	if phnum == 0 {
		phnum = uint16(len(img.Segments))
	}

	var o binary.ByteOrder = binary.LittleEndian
	if img.Data == elf.DataMSB {
		o = binary.BigEndian
	}

	tableEnd := hsize + len(img.Segments)*psize
	progs := make([]elf.Prog, len(img.Segments))
	off := align(tableEnd)
	for i, s := range img.Segments {
		progs[i] = elf.Prog{
			Type:   s.Type,
			Flags:  s.Flags,
			Off:    uint64(off),
			Vaddr:  s.Vaddr,
			Paddr:  s.Paddr,
			Filesz: uint64(len(s.Data)),
			Memsz:  s.Memsz,
			Align:  s.Align,
		}
		off = align(off + len(s.Data))
	}

	out := make([]byte, off)
	copy(out[0:4], img.Magic)
	out[4] = byte(img.Class)
	out[5] = byte(img.Data)
	out[6] = byte(img.Version)

	h := elf.Header{
		Type:      img.Type,
		Machine:   img.Machine,
		Version:   uint32(elf.VersionCurrent),
		Entry:     img.Entry,
		Phoff:     uint64(hsize),
		Shoff:     img.Shoff,
		Flags:     img.Flags,
		Ehsize:    ehsize,
		Phentsize: phentsize,
		Phnum:     phnum,
		Shentsize: img.Shentsize,
		Shnum:     img.Shnum,
		Shstrndx:  img.Shstrndx,
	}
	if len(img.Segments) == 0 && img.Phnum == 0 {
		h.Phoff = 0
	}
	if img.Class == elf.Class32 {
		EncodeHeader32(out, &h, o)
	} else {
		EncodeHeader64(out, &h, o)
	}
	for i := range progs {
		entry := out[hsize+i*psize:]
		if img.Class == elf.Class32 {
			EncodeProg32(entry, &progs[i], o)
		} else {
			EncodeProg64(entry, &progs[i], o)
		}
		copy(out[progs[i].Off:], img.Segments[i].Data)
	}
	return out, progs
}

func align(n int) int {
	return (n + dataAlign - 1) &^ (dataAlign - 1)
}

// EncodeHeader32 writes the header fields after the identity block.
func EncodeHeader32(b []byte, h *elf.Header, o binary.ByteOrder) {
	o.PutUint16(b[16:], uint16(h.Type))
	o.PutUint16(b[18:], h.Machine)
	o.PutUint32(b[20:], h.Version)
	o.PutUint32(b[24:], uint32(h.Entry))
	o.PutUint32(b[28:], uint32(h.Phoff))
	o.PutUint32(b[32:], uint32(h.Shoff))
	o.PutUint32(b[36:], h.Flags)
	o.PutUint16(b[40:], h.Ehsize)
	o.PutUint16(b[42:], h.Phentsize)
	o.PutUint16(b[44:], h.Phnum)
	o.PutUint16(b[46:], h.Shentsize)
	o.PutUint16(b[48:], h.Shnum)
	o.PutUint16(b[50:], h.Shstrndx)
}

// EncodeHeader64 writes the header fields after the identity block.
func EncodeHeader64(b []byte, h *elf.Header, o binary.ByteOrder) {
	o.PutUint16(b[16:], uint16(h.Type))
	o.PutUint16(b[18:], h.Machine)
	o.PutUint32(b[20:], h.Version)
	o.PutUint64(b[24:], h.Entry)
	o.PutUint64(b[32:], h.Phoff)
	o.PutUint64(b[40:], h.Shoff)
	o.PutUint32(b[48:], h.Flags)
	o.PutUint16(b[52:], h.Ehsize)
	o.PutUint16(b[54:], h.Phentsize)
	o.PutUint16(b[56:], h.Phnum)
	o.PutUint16(b[58:], h.Shentsize)
	o.PutUint16(b[60:], h.Shnum)
	o.PutUint16(b[62:], h.Shstrndx)
}

func EncodeProg32(b []byte, p *elf.Prog, o binary.ByteOrder) {
	o.PutUint32(b[0:], uint32(p.Type))
	o.PutUint32(b[4:], uint32(p.Off))
	o.PutUint32(b[8:], uint32(p.Vaddr))
	o.PutUint32(b[12:], uint32(p.Paddr))
	o.PutUint32(b[16:], uint32(p.Filesz))
	o.PutUint32(b[20:], uint32(p.Memsz))
	o.PutUint32(b[24:], uint32(p.Flags))
	o.PutUint32(b[28:], uint32(p.Align))
}

func EncodeProg64(b []byte, p *elf.Prog, o binary.ByteOrder) {
	o.PutUint32(b[0:], uint32(p.Type))
	o.PutUint32(b[4:], uint32(p.Flags))
	o.PutUint64(b[8:], p.Off)
	o.PutUint64(b[16:], p.Vaddr)
	o.PutUint64(b[24:], p.Paddr)
	o.PutUint64(b[32:], p.Filesz)
	o.PutUint64(b[40:], p.Memsz)
	o.PutUint64(b[48:], p.Align)
}
