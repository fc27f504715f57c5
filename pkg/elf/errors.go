package elf

import "errors"

var (
	ErrMalformedMagic        = errors.New("malformed ELF magic")
	ErrUnsupportedClass      = errors.New("unsupported ELF class")
	ErrUnsupportedEndianness = errors.New("unsupported ELF data encoding")
	ErrUnsupportedVersion    = errors.New("unsupported ELF version")
	ErrProgSizeMismatch      = errors.New("program header entry size mismatch")
	ErrExtendedProgCount     = errors.New("extended program header count (PN_XNUM) is not supported")
)
