package compoundfiles

import "fmt"

// MiniAlloc owns the MiniFAT and the mini-stream: the root entry's
// normal-pool chain, subdivided into 64-byte mini sectors. Mini sector k
// lives at byte offset k*64 within that chain.
type MiniAlloc struct {
	Directory          *Directory
	Minifat            []uint32
	MinifatStartSector uint32

	Validation Validation
	sink       Sink
}

func NewMiniAlloc(d *Directory, minifat []uint32, minifatStartSector uint32,
	validation Validation, sink Sink) (*MiniAlloc, error) {
	alloc := &MiniAlloc{
		Directory:          d,
		Minifat:            minifat,
		MinifatStartSector: minifatStartSector,
		Validation:         validation,
		sink:               sink,
	}
	if err := alloc.Validate(); err != nil {
		return nil, err
	}
	return alloc, nil
}

func (a *MiniAlloc) Validate() error {
	rootEntry := a.Directory.RootDirEntry()
	rootStreamMiniSectors := rootEntry.StreamSize / uint64(MINI_SECTOR_LEN)
	if rootStreamMiniSectors < uint64(len(a.Minifat)) {
		return fmt.Errorf("mini FAT has %v entries, but root stream has only %v mini sectors: %w",
			len(a.Minifat), rootStreamMiniSectors, ErrMiniFat)
	}

	for miniIdx, next := range a.Minifat {
		if next <= MAX_REGULAR_SECTOR && next >= uint32(len(a.Minifat)) {
			return fmt.Errorf("mini FAT entry %v points to mini sector %v, but there are only %v: %w",
				miniIdx, next, len(a.Minifat), ErrLargeMiniFat)
		}
		if next == INVALID_SECTOR {
			return fmt.Errorf("mini FAT entry %v holds reserved value 0x%08x: %w",
				miniIdx, next, ErrMiniFat)
		}
	}
	return nil
}

func (a *MiniAlloc) Next(index uint32) (uint32, error) {
	if index >= uint32(len(a.Minifat)) {
		return 0, fmt.Errorf("mini sector %v beyond mini FAT of %v entries: %w",
			index, len(a.Minifat), ErrLargeMiniFat)
	}
	next := a.Minifat[index]
	if next != END_OF_CHAIN && next != FREE_SECTOR &&
		(next > MAX_REGULAR_SECTOR || next >= uint32(len(a.Minifat))) {
		return 0, fmt.Errorf("mini FAT entry %v holds invalid successor %v: %w",
			index, next, ErrLargeMiniFat)
	}
	return next, nil
}

// Chain walks a mini FAT chain with loop detection.
func (a *MiniAlloc) Chain(start uint32) ([]uint32, error) {
	if start != END_OF_CHAIN && len(a.Minifat) == 0 {
		return nil, fmt.Errorf("chain start %v but container has no mini FAT: %w", start, ErrNoMiniFat)
	}

	var ids []uint32
	seen := make(map[uint32]bool)
	current := start

	for current != END_OF_CHAIN {
		if current > MAX_REGULAR_SECTOR || current >= uint32(len(a.Minifat)) {
			return nil, fmt.Errorf("mini chain from %v includes invalid mini sector %v: %w",
				start, current, ErrLargeMiniFat)
		}
		if seen[current] {
			return nil, fmt.Errorf("mini chain from %v revisits mini sector %v: %w",
				start, current, ErrNormalLoop)
		}
		seen[current] = true
		ids = append(ids, current)

		next, err := a.Next(current)
		if err != nil {
			return nil, err
		}
		if next == FREE_SECTOR {
			return nil, fmt.Errorf("mini chain from %v runs into a free mini sector after %v: %w",
				start, current, ErrMiniFat)
		}
		current = next
	}
	return ids, nil
}

// miniSectorLoc maps a mini sector id to (file sector, offset within it).
func (a *MiniAlloc) miniSectorLoc(id uint32) (uint32, int, error) {
	root := a.Directory.RootDirEntry()
	chain, err := a.Directory.Allocator.Chain(root.StartingSector)
	if err != nil {
		return 0, 0, err
	}
	byteOff := int64(id) * int64(MINI_SECTOR_LEN)
	sectorLen := int64(a.Directory.Allocator.Sectors.SectorLen)
	idx := byteOff / sectorLen
	if idx >= int64(len(chain)) {
		return 0, 0, fmt.Errorf("mini sector %v lies beyond the mini stream (%v sectors): %w",
			id, len(chain), ErrMiniFat)
	}
	return chain[idx], int(byteOff % sectorLen), nil
}

// ReadMiniSector returns the 64 bytes of the given mini sector.
func (a *MiniAlloc) ReadMiniSector(id uint32) ([]byte, error) {
	sector, off, err := a.miniSectorLoc(id)
	if err != nil {
		return nil, err
	}
	buf, err := a.Directory.Allocator.Sectors.ReadSector(sector)
	if err != nil {
		return nil, err
	}
	out := make([]byte, MINI_SECTOR_LEN)
	copy(out, buf[off:off+MINI_SECTOR_LEN])
	return out, nil
}

// WriteMiniSectorRange overwrites [off, off+len(p)) within a mini sector.
func (a *MiniAlloc) WriteMiniSectorRange(id uint32, off int, p []byte) error {
	if off < 0 || off+len(p) > MINI_SECTOR_LEN {
		return fmt.Errorf("write of %v bytes at offset %v exceeds mini sector length %v",
			len(p), off, MINI_SECTOR_LEN)
	}
	sector, base, err := a.miniSectorLoc(id)
	if err != nil {
		return err
	}
	return a.Directory.Allocator.Sectors.WriteSectorRange(sector, base+off, p)
}

// growMiniStream makes sure the root chain backs count mini sectors and
// keeps the root entry's size in step.
func (a *MiniAlloc) growMiniStream(count int) error {
	root := a.Directory.RootDirEntry()
	sectorLen := a.Directory.Allocator.Sectors.SectorLen
	bytes := int64(count) * int64(MINI_SECTOR_LEN)
	needed := int((bytes + int64(sectorLen) - 1) / int64(sectorLen))

	chain, err := a.Directory.Allocator.Chain(root.StartingSector)
	if err != nil {
		return err
	}
	if needed > len(chain) {
		start, err := a.Directory.Allocator.Extend(root.StartingSector, needed-len(chain))
		if err != nil {
			return err
		}
		root.StartingSector = start
	}
	root.StreamSize = uint64(count) * uint64(MINI_SECTOR_LEN)
	return nil
}

// allocMiniSector claims one mini sector, zeroes it, and stores value as
// its mini FAT entry.
func (a *MiniAlloc) allocMiniSector(value uint32) (uint32, error) {
	id := uint32(len(a.Minifat))
	reused := false
	for i, entry := range a.Minifat {
		if entry == FREE_SECTOR {
			id = uint32(i)
			reused = true
			break
		}
	}
	if !reused {
		a.Minifat = append(a.Minifat, FREE_SECTOR)
		if err := a.growMiniStream(len(a.Minifat)); err != nil {
			a.Minifat = a.Minifat[:len(a.Minifat)-1]
			return 0, err
		}
	}
	if err := a.WriteMiniSectorRange(id, 0, make([]byte, MINI_SECTOR_LEN)); err != nil {
		return 0, err
	}
	a.Minifat[id] = value
	return id, nil
}

// Allocate links a fresh mini chain of n sectors.
func (a *MiniAlloc) Allocate(n int) (uint32, error) {
	if n <= 0 {
		return END_OF_CHAIN, nil
	}
	start, err := a.allocMiniSector(END_OF_CHAIN)
	if err != nil {
		return 0, err
	}
	prev := start
	for i := 1; i < n; i++ {
		next, err := a.allocMiniSector(END_OF_CHAIN)
		if err != nil {
			return 0, err
		}
		a.Minifat[prev] = next
		prev = next
	}
	return start, nil
}

// Extend appends extra mini sectors to a chain; an END_OF_CHAIN start
// creates a new one.
func (a *MiniAlloc) Extend(start uint32, extra int) (uint32, error) {
	if extra <= 0 {
		return start, nil
	}
	if start == END_OF_CHAIN {
		return a.Allocate(extra)
	}
	chain, err := a.Chain(start)
	if err != nil {
		return 0, err
	}
	tail := chain[len(chain)-1]
	for i := 0; i < extra; i++ {
		next, err := a.allocMiniSector(END_OF_CHAIN)
		if err != nil {
			return 0, err
		}
		a.Minifat[tail] = next
		tail = next
	}
	return start, nil
}

// Free releases a whole mini chain.
func (a *MiniAlloc) Free(start uint32) error {
	chain, err := a.Chain(start)
	if err != nil {
		return err
	}
	for _, id := range chain {
		a.Minifat[id] = FREE_SECTOR
	}
	return nil
}

// Truncate shortens a mini chain to keep sectors.
func (a *MiniAlloc) Truncate(start uint32, keep int) (uint32, error) {
	chain, err := a.Chain(start)
	if err != nil {
		return 0, err
	}
	if keep <= 0 {
		for _, id := range chain {
			a.Minifat[id] = FREE_SECTOR
		}
		return END_OF_CHAIN, nil
	}
	if keep >= len(chain) {
		return start, nil
	}
	a.Minifat[chain[keep-1]] = END_OF_CHAIN
	for _, id := range chain[keep:] {
		a.Minifat[id] = FREE_SECTOR
	}
	return start, nil
}
