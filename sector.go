package compoundfiles

import (
	"fmt"
	"io"
)

// Sectors reads and writes raw sectors of the configured size and tracks
// the file extent. All writes are buffered in a dirty-sector cache and
// reach the device only on Flush, so an abandoned editor leaves the file
// untouched.
type Sectors struct {
	SectorLen  int
	NumSectors uint32

	device Device
	dirty  map[uint32][]byte
	sink   Sink
}

func NewSectors(sectorLen int, deviceLen int64, device Device, sink Sink) *Sectors {
	numSectors := int64(0)
	if deviceLen > int64(HEADER_LEN) {
		numSectors = (deviceLen - int64(HEADER_LEN) + int64(sectorLen) - 1) / int64(sectorLen)
	}
	return &Sectors{
		SectorLen:  sectorLen,
		NumSectors: uint32(numSectors),
		device:     device,
		dirty:      make(map[uint32][]byte),
		sink:       sink,
	}
}

// SectorOffset translates a sector id to its byte offset in the file.
func (s *Sectors) SectorOffset(id uint32) int64 {
	return int64(HEADER_LEN) + int64(id)*int64(s.SectorLen)
}

// ReadSector returns the full contents of the given sector. A sector that
// extends past the device end is zero-filled past the available bytes and
// a TruncatedWarning is emitted.
func (s *Sectors) ReadSector(id uint32) ([]byte, error) {
	if id >= s.NumSectors {
		return nil, fmt.Errorf("tried to read sector %v, but sector count is only %v: %w",
			id, s.NumSectors, ErrorInvalidCFB)
	}
	if buf, ok := s.dirty[id]; ok {
		out := make([]byte, s.SectorLen)
		copy(out, buf)
		return out, nil
	}

	out := make([]byte, s.SectorLen)
	n, err := s.device.ReadAt(out, s.SectorOffset(id))
	if err == io.EOF || (err == nil && n < s.SectorLen) {
		if werr := warnf(s.sink, TruncatedWarning,
			"sector %v extends past end of file (%v of %v bytes available)",
			id, n, s.SectorLen); werr != nil {
			return nil, werr
		}
		for i := n; i < s.SectorLen; i++ {
			out[i] = 0
		}
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sector %v: %w", id, err)
	}
	return out, nil
}

// WriteSector replaces the full contents of the given sector in the
// write buffer.
func (s *Sectors) WriteSector(id uint32, buf []byte) error {
	if id >= s.NumSectors {
		return fmt.Errorf("tried to write sector %v, but sector count is only %v: %w",
			id, s.NumSectors, ErrorInvalidCFB)
	}
	if len(buf) != s.SectorLen {
		return fmt.Errorf("sector write of %v bytes, sector length is %v", len(buf), s.SectorLen)
	}
	stored := make([]byte, s.SectorLen)
	copy(stored, buf)
	s.dirty[id] = stored
	return nil
}

// WriteSectorRange overwrites [off, off+len(p)) within the sector,
// preserving the rest of its contents.
func (s *Sectors) WriteSectorRange(id uint32, off int, p []byte) error {
	if off < 0 || off+len(p) > s.SectorLen {
		return fmt.Errorf("write of %v bytes at offset %v exceeds sector length %v",
			len(p), off, s.SectorLen)
	}
	buf, ok := s.dirty[id]
	if !ok {
		full, err := s.ReadSector(id)
		if err != nil {
			return err
		}
		buf = full
		s.dirty[id] = buf
	}
	copy(buf[off:], p)
	return nil
}

// AppendSector grows the file extent by one zeroed sector and returns
// its id. Growth is explicit: only the allocator requests it.
func (s *Sectors) AppendSector() uint32 {
	id := s.NumSectors
	s.NumSectors++
	s.dirty[id] = make([]byte, s.SectorLen)
	return id
}

// Flush writes every buffered sector to the device and trims the device
// to the current extent. The header is not written here; the container
// writes it last.
func (s *Sectors) Flush() error {
	extent := s.SectorOffset(s.NumSectors)
	size, err := s.device.Size()
	if err != nil {
		return err
	}
	if size > extent {
		if err := s.device.Truncate(extent); err != nil {
			return err
		}
	}
	for id, buf := range s.dirty {
		if _, err := s.device.WriteAt(buf, s.SectorOffset(id)); err != nil {
			return fmt.Errorf("writing sector %v: %w", id, err)
		}
	}
	s.dirty = make(map[uint32][]byte)
	return nil
}
