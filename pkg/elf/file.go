package elf

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// File is a parsed ELF image: its header, its program header table and the
// raw bytes the segment offsets refer to. File implements io.ReaderAt over
// those bytes.
type File struct {
	Data    []byte
	Header  Header
	Progs   []Prog
	mmapped bool
}

// Open maps an ELF file read-only and parses its headers.
// If mmap is unavailable, it falls back to ReadAt-based loading.
// The returned file must be closed to release any mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%s: file too large to map (%d bytes)", path, size64)
	}
	size := int(size64)
	if size < IdentSize {
		return nil, fmt.Errorf("%s: file is %d bytes: %w", path, size, io.ErrUnexpectedEOF)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		ef, parseErr := parse(data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return ef, nil
	}
	return NewFile(f, size64)
}

// NewFile loads and parses an ELF image from a random-access reader without
// mmap.
func NewFile(r io.ReaderAt, size int64) (*File, error) {
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("invalid image size %d", size)
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	return parse(data, false)
}

// Parse parses an ELF image held in memory. The File keeps a reference to
// data.
func Parse(data []byte) (*File, error) {
	return parse(data, false)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read image at %#x: %w", off, err)
	}
	return out, nil
}

func parse(data []byte, mmapped bool) (*File, error) {
	r := bytes.NewReader(data)
	hdr, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	progs, err := ReadProgs(r, &hdr)
	if err != nil {
		return nil, err
	}
	return &File{
		Data:    data,
		Header:  hdr,
		Progs:   progs,
		mmapped: mmapped,
	}, nil
}

// ReadAt reads from the underlying image bytes.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(f.Data)) {
		return 0, io.EOF
	}
	n := copy(p, f.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// ProgHeaders returns the file header and the full program header table.
func (f *File) ProgHeaders() (*Header, []Prog) {
	return &f.Header, f.Progs
}

// Size is the image size in bytes.
func (f *File) Size() int64 {
	return int64(len(f.Data))
}

// Close releases the image and any mmap backing.
func (f *File) Close() error {
	if f == nil || f.Data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.Data)
	}
	f.Data = nil
	f.Progs = nil
	f.mmapped = false
	return err
}
