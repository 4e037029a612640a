package compoundfiles

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// Device is the random-access byte device a container lives on. The
// container owns its device exclusively for its lifetime and releases it
// on Close, success or failure.
type Device interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// MemDevice is a growable in-memory device. Writes past the end extend
// the buffer; reads past the end return io.EOF for the missing part.
type MemDevice struct {
	buf []byte
}

func NewMemDevice(initial []byte) *MemDevice {
	return &MemDevice{buf: initial}
}

// Bytes returns the device contents. The slice aliases internal storage.
func (d *MemDevice) Bytes() []byte {
	return d.buf
}

func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(d.buf)) {
		return 0, io.EOF
	}
	n := copy(p, d.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if end := off + int64(len(p)); end > int64(len(d.buf)) {
		grown := make([]byte, end)
		copy(grown, d.buf)
		d.buf = grown
	}
	return copy(d.buf[off:], p), nil
}

func (d *MemDevice) Size() (int64, error) {
	return int64(len(d.buf)), nil
}

func (d *MemDevice) Truncate(size int64) error {
	if size < 0 {
		return fmt.Errorf("negative size %d", size)
	}
	if size <= int64(len(d.buf)) {
		d.buf = d.buf[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, d.buf)
	d.buf = grown
	return nil
}

func (d *MemDevice) Sync() error  { return nil }
func (d *MemDevice) Close() error { return nil }

// FileDevice adapts an afero.File (which includes *os.File via the OS
// filesystem) to the Device interface.
type FileDevice struct {
	f afero.File
}

func NewFileDevice(f afero.File) *FileDevice {
	return &FileDevice{f: f}
}

// OpenFileDevice opens path on the given filesystem as a device. With
// readonly set the file is opened O_RDONLY; otherwise it is opened
// read-write and created if missing.
func OpenFileDevice(fs afero.Fs, path string, readonly bool) (*FileDevice, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readonly {
		flag = os.O_RDONLY
	}
	f, err := fs.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, err
	}
	return &FileDevice{f: f}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}

func (d *FileDevice) Size() (int64, error) {
	info, err := d.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (d *FileDevice) Truncate(size int64) error {
	return d.f.Truncate(size)
}

func (d *FileDevice) Sync() error {
	return d.f.Sync()
}

func (d *FileDevice) Close() error {
	return d.f.Close()
}
