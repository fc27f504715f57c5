package flatten

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// AtomicFile is an output file written under a temporary name and renamed
// into place by Commit. Regions never written read back as zeros.
type AtomicFile struct {
	f    *os.File
	path string
	done bool
}

// CreateAtomic creates a temporary file in the directory of path.
func CreateAtomic(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp-"+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return &AtomicFile{f: f, path: path}, nil
}

func (a *AtomicFile) WriteAt(p []byte, off int64) (int, error) {
	return a.f.WriteAt(p, off)
}

// Name is the temporary file name.
func (a *AtomicFile) Name() string {
	return a.f.Name()
}

// Commit flushes, closes and renames the file to its final path.
func (a *AtomicFile) Commit() error {
	if a.done {
		return fmt.Errorf("%s: already closed", a.path)
	}
	a.done = true
	tmp := a.f.Name()
	if err := a.f.Sync(); err != nil {
		_ = a.f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := a.f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, a.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (a *AtomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	_ = a.f.Close()
	return os.Remove(a.f.Name())
}

var ErrImageTooLarge = errors.New("flat image exceeds size limit")

// DefaultBufferLimit caps a Buffer with no Limit.
const DefaultBufferLimit = 1 << 30

// Buffer is an in-memory io.WriterAt. Gaps left between writes read as
// zeros.
type Buffer struct {
	// Limit is the largest image the buffer will hold. Zero means
	// DefaultBufferLimit.
	Limit int64
	buf   []byte
}

func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	limit := b.Limit
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	if off > limit || int64(len(p)) > limit-off {
		return 0, fmt.Errorf("write at %#x+%#x: %w (%d bytes)", off, len(p), ErrImageTooLarge, limit)
	}
	end := off + int64(len(p))
	if end > int64(len(b.buf)) {
		if end > int64(cap(b.buf)) {
			grown := make([]byte, end, max(end, min(2*int64(cap(b.buf)), limit)))
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[off:], p)
	return len(p), nil
}

// Bytes returns the image written so far.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len is the image length.
func (b *Buffer) Len() int {
	return len(b.buf)
}

var (
	_ io.WriterAt = (*AtomicFile)(nil)
	_ io.WriterAt = (*Buffer)(nil)
)
