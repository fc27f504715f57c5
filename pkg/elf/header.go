package elf

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Header is the ELF file header in canonical form. Address and offset fields
// are widened to 64 bits regardless of the file's class.
type Header struct {
	Ident     Ident
	Type      Type
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// ProgTableOffset is the file offset of the program header table.
func (h *Header) ProgTableOffset() uint64 {
	return h.Phoff
}

// ProgTableSize is the byte size of the program header table.
func (h *Header) ProgTableSize() uint64 {
	return uint64(h.Phentsize) * uint64(h.Phnum)
}

// Validate re-checks the identity block and the program header table
// geometry. The entry size must be exactly the structural size for the class.
func (h *Header) Validate() error {
	if err := h.Ident.Validate(); err != nil {
		return err
	}
	if want := h.Ident.ProgSize(); int(h.Phentsize) != want {
		return fmt.Errorf("%w: e_phentsize is %d, %s requires %d",
			ErrProgSizeMismatch, h.Phentsize, h.Ident.Class, want)
	}
	if h.Phnum == ProgNumExtended {
		return ErrExtendedProgCount
	}
	return nil
}

type headerDecoder func(b []byte, id Ident) Header

// headerDecoders is the closed set of layouts, indexed by class and data.
var headerDecoders = map[[2]uint8]headerDecoder{
	{uint8(Class32), uint8(DataLSB)}: func(b []byte, id Ident) Header { return decodeHeader32(b, id, binary.LittleEndian) },
	{uint8(Class32), uint8(DataMSB)}: func(b []byte, id Ident) Header { return decodeHeader32(b, id, binary.BigEndian) },
	{uint8(Class64), uint8(DataLSB)}: func(b []byte, id Ident) Header { return decodeHeader64(b, id, binary.LittleEndian) },
	{uint8(Class64), uint8(DataMSB)}: func(b []byte, id Ident) Header { return decodeHeader64(b, id, binary.BigEndian) },
}

func decodeHeader32(b []byte, id Ident, o binary.ByteOrder) Header {
	return Header{
		Ident:     id,
		Type:      Type(o.Uint16(b[16:])),
		Machine:   o.Uint16(b[18:]),
		Version:   o.Uint32(b[20:]),
		Entry:     uint64(o.Uint32(b[24:])),
		Phoff:     uint64(o.Uint32(b[28:])),
		Shoff:     uint64(o.Uint32(b[32:])),
		Flags:     o.Uint32(b[36:]),
		Ehsize:    o.Uint16(b[40:]),
		Phentsize: o.Uint16(b[42:]),
		Phnum:     o.Uint16(b[44:]),
		Shentsize: o.Uint16(b[46:]),
		Shnum:     o.Uint16(b[48:]),
		Shstrndx:  o.Uint16(b[50:]),
	}
}

func decodeHeader64(b []byte, id Ident, o binary.ByteOrder) Header {
	return Header{
		Ident:     id,
		Type:      Type(o.Uint16(b[16:])),
		Machine:   o.Uint16(b[18:]),
		Version:   o.Uint32(b[20:]),
		Entry:     o.Uint64(b[24:]),
		Phoff:     o.Uint64(b[32:]),
		Shoff:     o.Uint64(b[40:]),
		Flags:     o.Uint32(b[48:]),
		Ehsize:    o.Uint16(b[52:]),
		Phentsize: o.Uint16(b[54:]),
		Phnum:     o.Uint16(b[56:]),
		Shentsize: o.Uint16(b[58:]),
		Shnum:     o.Uint16(b[60:]),
		Shstrndx:  o.Uint16(b[62:]),
	}
}

// DecodeHeader decodes and validates a file header held in b.
func DecodeHeader(b []byte) (Header, error) {
	id, err := DecodeIdent(b)
	if err != nil {
		return Header{}, err
	}
	if err := id.Validate(); err != nil {
		return Header{}, err
	}
	size := id.HeaderSize()
	if len(b) < size {
		return Header{}, fmt.Errorf("%s header is %d bytes, have %d: %w",
			id.Class, size, len(b), io.ErrUnexpectedEOF)
	}
	decode := headerDecoders[[2]uint8{uint8(id.Class), uint8(id.Data)}]
	h := decode(b[:size], id)
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// ReadHeader reads the file header starting at the current position of r.
// The identity block is read first to learn the header size, then r is
// rewound and the whole header is read with the declared layout.
func ReadHeader(r io.ReadSeeker) (Header, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return Header{}, fmt.Errorf("locate file header: %w", err)
	}
	id, err := ReadIdent(r)
	if err != nil {
		return Header{}, err
	}
	if err := id.Validate(); err != nil {
		return Header{}, err
	}
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return Header{}, fmt.Errorf("rewind to file header at %#x: %w", start, err)
	}
	buf := make([]byte, id.HeaderSize())
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, fmt.Errorf("read %s file header at %#x: %w", id.Class, start, err)
	}
	return DecodeHeader(buf)
}
