package elf

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Ident is the 16-byte identity block (e_ident) at the start of every ELF
// file.
type Ident struct {
	Magic      [4]byte
	Class      Class
	Data       Data
	Version    Version
	OSABI      uint8
	ABIVersion uint8
	Pad        [IdentSize - 9]byte
}

// ReadIdent reads exactly IdentSize bytes from r and decodes them.
// Only the magic is checked here; see Ident.Validate for the rest.
func ReadIdent(r io.Reader) (Ident, error) {
	var buf [IdentSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Ident{}, fmt.Errorf("read identity block: %w", err)
	}
	return DecodeIdent(buf[:])
}

// DecodeIdent decodes an identity block from the first IdentSize bytes of b.
func DecodeIdent(b []byte) (Ident, error) {
	if len(b) < IdentSize {
		return Ident{}, fmt.Errorf("identity block is %d bytes: %w", len(b), io.ErrUnexpectedEOF)
	}
	var id Ident
	copy(id.Magic[:], b[0:4])
	if string(id.Magic[:]) != Magic {
		return Ident{}, fmt.Errorf("%w: % x", ErrMalformedMagic, id.Magic[:])
	}
	id.Class = Class(b[4])
	id.Data = Data(b[5])
	id.Version = Version(b[6])
	id.OSABI = b[7]
	id.ABIVersion = b[8]
	copy(id.Pad[:], b[9:IdentSize])
	return id, nil
}

// Validate checks class, data encoding and version.
func (id Ident) Validate() error {
	if id.Class != Class32 && id.Class != Class64 {
		return fmt.Errorf("%w: %s", ErrUnsupportedClass, id.Class)
	}
	if id.Data != DataLSB && id.Data != DataMSB {
		return fmt.Errorf("%w: %s", ErrUnsupportedEndianness, id.Data)
	}
	if id.Version != VersionCurrent {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, id.Version)
	}
	return nil
}

// ByteOrder returns the byte order declared by the identity block, or nil if
// the data encoding is not valid.
func (id Ident) ByteOrder() binary.ByteOrder {
	switch id.Data {
	case DataLSB:
		return binary.LittleEndian
	case DataMSB:
		return binary.BigEndian
	}
	return nil
}

// HeaderSize is the size of the file header for the declared class, or 0.
func (id Ident) HeaderSize() int {
	switch id.Class {
	case Class32:
		return Header32Size
	case Class64:
		return Header64Size
	}
	return 0
}

// ProgSize is the exact size of one program header entry for the class, or 0.
func (id Ident) ProgSize() int {
	switch id.Class {
	case Class32:
		return Prog32Size
	case Class64:
		return Prog64Size
	}
	return 0
}
