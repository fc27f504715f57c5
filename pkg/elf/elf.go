// Package elf reads the identity block, file header and program header table
// of ELF executables.
//
// All four combinations of class (32/64-bit) and byte order are decoded into
// a single canonical form whose addresses and offsets are widened to 64 bits.
// The package never writes ELF files and does not look at sections, symbols
// or relocations.
package elf

import (
	"fmt"
	"strings"
)

// Structural sizes must never change.
const (
	// Magic is the identity prefix of every ELF file.
	Magic = "\x7fELF"

	IdentSize    = 16
	Header32Size = 52
	Header64Size = 64
	Prog32Size   = 32
	Prog64Size   = 56

	// ProgNumExtended is the e_phnum escape value (PN_XNUM). The real count
	// lives in section 0, which is not supported.
	ProgNumExtended uint16 = 0xffff
)

// Class selects the address width.
type Class uint8

const (
	ClassNone Class = 0
	Class32   Class = 1
	Class64   Class = 2
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "ELFCLASSNONE"
	case Class32:
		return "ELFCLASS32"
	case Class64:
		return "ELFCLASS64"
	}
	return fmt.Sprintf("ELFCLASS(%d)", uint8(c))
}

// Data selects the byte order of multi-byte fields.
type Data uint8

const (
	DataNone Data = 0
	DataLSB  Data = 1
	DataMSB  Data = 2
)

func (d Data) String() string {
	switch d {
	case DataNone:
		return "ELFDATANONE"
	case DataLSB:
		return "ELFDATA2LSB"
	case DataMSB:
		return "ELFDATA2MSB"
	}
	return fmt.Sprintf("ELFDATA(%d)", uint8(d))
}

// Version is the format version in both the identity block and the header.
type Version uint8

const VersionCurrent Version = 1

// Type is the object file type (e_type).
type Type uint16

const (
	TypeNone Type = 0
	TypeRel  Type = 1
	TypeExec Type = 2
	TypeDyn  Type = 3
	TypeCore Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "ET_NONE"
	case TypeRel:
		return "ET_REL"
	case TypeExec:
		return "ET_EXEC"
	case TypeDyn:
		return "ET_DYN"
	case TypeCore:
		return "ET_CORE"
	}
	return fmt.Sprintf("ET(%#x)", uint16(t))
}

// ProgType is the segment type (p_type).
type ProgType uint32

const (
	ProgNull        ProgType = 0
	ProgLoad        ProgType = 1
	ProgDynamic     ProgType = 2
	ProgInterp      ProgType = 3
	ProgNote        ProgType = 4
	ProgShlib       ProgType = 5
	ProgPhdr        ProgType = 6
	ProgTLS         ProgType = 7
	ProgGNUEHFrame  ProgType = 0x6474e550
	ProgGNUStack    ProgType = 0x6474e551
	ProgGNURelro    ProgType = 0x6474e552
	ProgGNUProperty ProgType = 0x6474e553
)

var progTypeNames = map[ProgType]string{
	ProgNull:        "NULL",
	ProgLoad:        "LOAD",
	ProgDynamic:     "DYNAMIC",
	ProgInterp:      "INTERP",
	ProgNote:        "NOTE",
	ProgShlib:       "SHLIB",
	ProgPhdr:        "PHDR",
	ProgTLS:         "TLS",
	ProgGNUEHFrame:  "GNU_EH_FRAME",
	ProgGNUStack:    "GNU_STACK",
	ProgGNURelro:    "GNU_RELRO",
	ProgGNUProperty: "GNU_PROPERTY",
}

func (t ProgType) String() string {
	if s, ok := progTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("PT(%#x)", uint32(t))
}

// ProgFlag is the segment permission bitmask (p_flags).
type ProgFlag uint32

const (
	FlagX ProgFlag = 1 << 0
	FlagW ProgFlag = 1 << 1
	FlagR ProgFlag = 1 << 2

	FlagRWX = FlagR | FlagW | FlagX
)

// String renders the permission bits as "rwx", with '-' for missing bits.
// Bits outside rwx are appended in hex.
func (f ProgFlag) String() string {
	var sb strings.Builder
	sb.Grow(3)
	for _, b := range []struct {
		flag ProgFlag
		c    byte
	}{{FlagR, 'r'}, {FlagW, 'w'}, {FlagX, 'x'}} {
		if f&b.flag != 0 {
			sb.WriteByte(b.c)
		} else {
			sb.WriteByte('-')
		}
	}
	if rest := f &^ FlagRWX; rest != 0 {
		fmt.Fprintf(&sb, "+%#x", uint32(rest))
	}
	return sb.String()
}
