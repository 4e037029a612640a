package compoundfiles

import (
	"fmt"
	"io"
)

// Stream is an open handle on one stream entry. It holds the containing
// file and a DirId, never the bytes: all I/O goes through the chain
// layer, so concurrent handles on the same entry observe each other's
// completed writes. Closing the container invalidates the handle.
type Stream struct {
	file   *CompoundFile
	dirId  uint32
	pos    uint64
	closed bool
}

func (s *Stream) check() error {
	if s.closed {
		return ErrClosed
	}
	return s.file.ensureOpen()
}

// Len returns the stream's current logical size.
func (s *Stream) Len() (uint64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.file.directory.entry(s.dirId).StreamSize, nil
}

func (s *Stream) Read(p []byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	n, err := s.file.chain(s.dirId).ReadAt(p, s.pos)
	if err != nil {
		return 0, err
	}
	s.pos += uint64(n)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %v", off)
	}
	n, err := s.file.chain(s.dirId).ReadAt(p, uint64(off))
	if err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *Stream) Write(p []byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if err := s.file.ensureWritable(); err != nil {
		return 0, err
	}
	n, err := s.file.chain(s.dirId).WriteAt(p, s.pos)
	if err != nil {
		return 0, err
	}
	s.pos += uint64(n)
	s.file.touch(s.dirId)
	return n, nil
}

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	size := s.file.directory.entry(s.dirId).StreamSize

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(s.pos) + offset
	case io.SeekEnd:
		pos = int64(size) + offset
	default:
		return 0, fmt.Errorf("invalid whence %v", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("seek to negative offset %v", pos)
	}
	s.pos = uint64(pos)
	return pos, nil
}

// SetLength truncates or zero-extends the stream, migrating it between
// the mini and normal pools when the new size crosses the cutoff.
func (s *Stream) SetLength(n uint64) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.file.ensureWritable(); err != nil {
		return err
	}
	if err := s.file.chain(s.dirId).SetLength(n); err != nil {
		return err
	}
	if s.pos > n {
		s.pos = n
	}
	s.file.touch(s.dirId)
	return nil
}

// Close releases the handle. The container's state is unaffected; only
// the handle becomes unusable.
func (s *Stream) Close() error {
	s.closed = true
	return nil
}
