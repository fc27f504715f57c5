package elf_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/elfcopyflat/pkg/elf"
	"github.com/samcharles93/elfcopyflat/pkg/elf/elftest"
)

var variants = []struct {
	name  string
	class elf.Class
	data  elf.Data
}{
	{"32LE", elf.Class32, elf.DataLSB},
	{"32BE", elf.Class32, elf.DataMSB},
	{"64LE", elf.Class64, elf.DataLSB},
	{"64BE", elf.Class64, elf.DataMSB},
}

func testSegments() []elftest.Segment {
	return []elftest.Segment{
		{Type: elf.ProgLoad, Flags: elf.FlagR | elf.FlagX, Vaddr: 0x80001000, Paddr: 0x1000, Memsz: 0x100, Align: 0x1000, Data: []byte{1, 2, 3, 4}},
		{Type: elf.ProgNote, Flags: elf.FlagR, Vaddr: 0x80002000, Memsz: 8, Align: 4, Data: []byte("note")},
	}
}

func TestDecodeHeaderVariants(t *testing.T) {
	t.Parallel()

	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			t.Parallel()

			img := elftest.Image{
				Class:    v.class,
				Data:     v.data,
				Type:     elf.TypeExec,
				Machine:  0x28,
				Entry:    0x80001234,
				Flags:    0x05000200,
				Segments: testSegments(),

				Ehsize:    0x1234,
				Shoff:     0x80004000,
				Shentsize: 0x28,
				Shnum:     0x0b,
				Shstrndx:  0x0a,
			}
			if v.class == elf.Class64 {
				img.Shoff = 0x1_8000_4000
			}
			raw := img.Bytes()

			h, err := elf.DecodeHeader(raw)
			require.NoError(t, err)

			hsize, psize := uint64(elf.Header64Size), uint16(elf.Prog64Size)
			if v.class == elf.Class32 {
				hsize, psize = elf.Header32Size, elf.Prog32Size
			}
			require.Equal(t, v.class, h.Ident.Class)
			require.Equal(t, v.data, h.Ident.Data)
			require.Equal(t, elf.VersionCurrent, h.Ident.Version)
			require.Equal(t, elf.TypeExec, h.Type)
			require.Equal(t, uint16(0x28), h.Machine)
			require.Equal(t, uint32(1), h.Version)
			// High bit set: 32-bit fields must be zero-extended.
			require.Equal(t, uint64(0x80001234), h.Entry)
			require.Equal(t, hsize, h.Phoff)
			require.Equal(t, img.Shoff, h.Shoff)
			require.Equal(t, uint32(0x05000200), h.Flags)
			require.Equal(t, uint16(0x1234), h.Ehsize)
			require.Equal(t, psize, h.Phentsize)
			require.Equal(t, uint16(2), h.Phnum)
			require.Equal(t, uint16(0x28), h.Shentsize)
			require.Equal(t, uint16(0x0b), h.Shnum)
			require.Equal(t, uint16(0x0a), h.Shstrndx)
			require.Equal(t, hsize, h.ProgTableOffset())
			require.Equal(t, uint64(psize)*2, h.ProgTableSize())
		})
	}
}

func TestDecodeHeaderUsesDeclaredByteOrder(t *testing.T) {
	t.Parallel()

	raw := elftest.Image{Class: elf.Class64, Data: elf.DataMSB, Machine: 0x0102}.Bytes()
	require.Equal(t, []byte{0x01, 0x02}, raw[18:20])

	h, err := elf.DecodeHeader(raw)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0102), h.Machine)
	require.Equal(t, binary.BigEndian, h.Ident.ByteOrder())
}

func TestReadHeaderRewinds(t *testing.T) {
	t.Parallel()

	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			t.Parallel()

			raw := elftest.Image{Class: v.class, Data: v.data, Entry: 0x400000, Segments: testSegments()}.Bytes()
			// Header at a non-zero stream position.
			prefixed := append(bytes.Repeat([]byte{0xee}, 7), raw...)
			r := bytes.NewReader(prefixed)
			_, err := r.Seek(7, 0)
			require.NoError(t, err)

			h, err := elf.ReadHeader(r)
			require.NoError(t, err)
			require.Equal(t, uint64(0x400000), h.Entry)
			require.Equal(t, uint16(2), h.Phnum)
		})
	}
}

func TestHeaderProgSizeMismatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		class     elf.Class
		phentsize uint16
	}{
		{"32 with 64-bit entry size", elf.Class32, elf.Prog64Size},
		{"64 with 32-bit entry size", elf.Class64, elf.Prog32Size},
		{"64 padded", elf.Class64, elf.Prog64Size + 8},
		{"32 short", elf.Class32, elf.Prog32Size - 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			raw := elftest.Image{Class: tc.class, Phentsize: tc.phentsize, Segments: testSegments()}.Bytes()
			_, err := elf.DecodeHeader(raw)
			require.ErrorIs(t, err, elf.ErrProgSizeMismatch)

			_, err = elf.ReadHeader(bytes.NewReader(raw))
			require.ErrorIs(t, err, elf.ErrProgSizeMismatch)
		})
	}
}

func TestHeaderExtendedProgCount(t *testing.T) {
	t.Parallel()

	for _, v := range variants {
		raw := elftest.Image{Class: v.class, Data: v.data, Phnum: elf.ProgNumExtended, Segments: testSegments()}.Bytes()
		_, err := elf.DecodeHeader(raw)
		require.ErrorIs(t, err, elf.ErrExtendedProgCount, v.name)
	}
}

func TestHeaderTruncated(t *testing.T) {
	t.Parallel()

	raw := elftest.Image{Class: elf.Class64}.Bytes()
	_, err := elf.ReadHeader(bytes.NewReader(raw[:40]))
	require.Error(t, err)

	_, err = elf.DecodeHeader(raw[:40])
	require.Error(t, err)
}
