package compoundfiles

import "fmt"

type pool int

const (
	normalPool pool = iota
	miniPool
)

// chainIO presents one directory entry's sector chain as a logically
// contiguous, randomly addressable byte buffer. It routes between the
// normal and mini pools by the entry's current size and migrates the
// chain between pools the moment a write or truncate crosses the
// cutoff — pool placement is part of the contract, never deferred.
type chainIO struct {
	header *Header
	alloc  *Allocator
	mini   *MiniAlloc
	dir    *Directory
	dirId  uint32
}

func (io *chainIO) entry() *DirEntry {
	return io.dir.entry(io.dirId)
}

func (io *chainIO) poolFor(size uint64) pool {
	if io.dirId == ROOT_STREAM_ID {
		// The root's chain is the mini-stream itself: always normal.
		return normalPool
	}
	if size < uint64(io.header.MiniStreamCutoff) {
		return miniPool
	}
	return normalPool
}

func (io *chainIO) unitLen(p pool) int {
	if p == miniPool {
		return MINI_SECTOR_LEN
	}
	return io.alloc.Sectors.SectorLen
}

func (io *chainIO) chainOf(p pool, start uint32) ([]uint32, error) {
	if p == miniPool {
		return io.mini.Chain(start)
	}
	return io.alloc.Chain(start)
}

// readRange copies chain bytes [off, off+len(buf)) into buf. Bytes beyond
// the allocated chain read as zero; the logical size bound is the
// caller's concern.
func (io *chainIO) readRange(p pool, off uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	chain, err := io.chainOf(p, io.entry().StartingSector)
	if err != nil {
		return err
	}
	unit := uint64(io.unitLen(p))

	for done := 0; done < len(buf); {
		idx := (off + uint64(done)) / unit
		within := int((off + uint64(done)) % unit)
		n := min64(uint64(len(buf)-done), unit-uint64(within))
		if idx >= uint64(len(chain)) {
			for i := done; i < len(buf); i++ {
				buf[i] = 0
			}
			return nil
		}
		var sector []byte
		if p == miniPool {
			sector, err = io.mini.ReadMiniSector(chain[idx])
		} else {
			sector, err = io.alloc.Sectors.ReadSector(chain[idx])
		}
		if err != nil {
			return err
		}
		copy(buf[done:done+int(n)], sector[within:within+int(n)])
		done += int(n)
	}
	return nil
}

// writeRange overwrites chain bytes [off, off+len(buf)). The chain must
// already cover the range.
func (io *chainIO) writeRange(p pool, off uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	chain, err := io.chainOf(p, io.entry().StartingSector)
	if err != nil {
		return err
	}
	unit := uint64(io.unitLen(p))

	for done := 0; done < len(buf); {
		idx := (off + uint64(done)) / unit
		within := int((off + uint64(done)) % unit)
		n := min64(uint64(len(buf)-done), unit-uint64(within))
		if idx >= uint64(len(chain)) {
			return fmt.Errorf("write at offset %v beyond chain of %v sectors: %w",
				off+uint64(done), len(chain), ErrorInvalidCFB)
		}
		if p == miniPool {
			err = io.mini.WriteMiniSectorRange(chain[idx], within, buf[done:done+int(n)])
		} else {
			err = io.alloc.Sectors.WriteSectorRange(chain[idx], within, buf[done:done+int(n)])
		}
		if err != nil {
			return err
		}
		done += int(n)
	}
	return nil
}

func (io *chainIO) zeroRange(p pool, from, to uint64) error {
	if to <= from {
		return nil
	}
	return io.writeRange(p, from, make([]byte, to-from))
}

// ensureCapacity extends the entry's chain so it covers n bytes.
func (io *chainIO) ensureCapacity(p pool, n uint64) error {
	entry := io.entry()
	unit := uint64(io.unitLen(p))
	needed := int((n + unit - 1) / unit)

	chain, err := io.chainOf(p, entry.StartingSector)
	if err != nil {
		return err
	}
	if needed <= len(chain) {
		return nil
	}
	var start uint32
	if p == miniPool {
		start, err = io.mini.Extend(entry.StartingSector, needed-len(chain))
	} else {
		start, err = io.alloc.Extend(entry.StartingSector, needed-len(chain))
	}
	if err != nil {
		return err
	}
	entry.StartingSector = start
	return nil
}

// migrateTo moves the first preserve bytes of the entry's chain into the
// other pool and frees the old chain. Called exactly once per cutoff
// crossing.
func (io *chainIO) migrateTo(target pool, preserve uint64) error {
	entry := io.entry()
	source := normalPool
	if target == normalPool {
		source = miniPool
	}

	buf := make([]byte, preserve)
	if err := io.readRange(source, 0, buf); err != nil {
		return err
	}

	var err error
	if source == miniPool {
		err = io.mini.Free(entry.StartingSector)
	} else {
		err = io.alloc.Free(entry.StartingSector)
	}
	if err != nil {
		return err
	}

	unit := uint64(io.unitLen(target))
	sectors := int((preserve + unit - 1) / unit)
	var start uint32
	if target == miniPool {
		start, err = io.mini.Allocate(sectors)
	} else {
		start, err = io.alloc.Allocate(sectors)
	}
	if err != nil {
		return err
	}
	entry.StartingSector = start
	entry.StreamSize = preserve
	return io.writeRange(target, 0, buf)
}

// ReadAt reads up to len(p) bytes at the logical offset off. Reads past
// the logical size return the available bytes; the caller maps the short
// count to end-of-stream.
func (io *chainIO) ReadAt(p []byte, off uint64) (int, error) {
	size := io.entry().StreamSize
	if off >= size {
		return 0, nil
	}
	n := int(min64(uint64(len(p)), size-off))
	if err := io.readRange(io.poolFor(size), off, p[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

// WriteAt writes p at the logical offset off, extending the chain and
// migrating pools as needed. A write starting past the current size
// zero-fills the gap.
func (io *chainIO) WriteAt(p []byte, off uint64) (int, error) {
	entry := io.entry()
	oldSize := entry.StreamSize
	newSize := oldSize
	if end := off + uint64(len(p)); end > newSize {
		newSize = end
	}

	oldPool := io.poolFor(oldSize)
	newPool := io.poolFor(newSize)
	if oldPool != newPool {
		if err := io.migrateTo(newPool, oldSize); err != nil {
			return 0, err
		}
	}
	if err := io.ensureCapacity(newPool, newSize); err != nil {
		return 0, err
	}
	if off > oldSize {
		if err := io.zeroRange(newPool, oldSize, off); err != nil {
			return 0, err
		}
	}
	if err := io.writeRange(newPool, off, p); err != nil {
		return 0, err
	}
	entry.StreamSize = newSize
	return len(p), nil
}

// SetLength truncates or extends the logical stream. Crossing the cutoff
// in either direction migrates the chain between pools.
func (io *chainIO) SetLength(n uint64) error {
	entry := io.entry()
	oldSize := entry.StreamSize
	if n == oldSize {
		return nil
	}

	oldPool := io.poolFor(oldSize)
	newPool := io.poolFor(n)

	if n > oldSize {
		if oldPool != newPool {
			if err := io.migrateTo(newPool, oldSize); err != nil {
				return err
			}
		}
		if err := io.ensureCapacity(newPool, n); err != nil {
			return err
		}
		if err := io.zeroRange(newPool, oldSize, n); err != nil {
			return err
		}
	} else if oldPool != newPool {
		if err := io.migrateTo(newPool, n); err != nil {
			return err
		}
	} else {
		unit := uint64(io.unitLen(oldPool))
		keep := int((n + unit - 1) / unit)
		var start uint32
		var err error
		if oldPool == miniPool {
			start, err = io.mini.Truncate(entry.StartingSector, keep)
		} else {
			start, err = io.alloc.Truncate(entry.StartingSector, keep)
		}
		if err != nil {
			return err
		}
		entry.StartingSector = start
	}

	entry.StreamSize = n
	return nil
}
