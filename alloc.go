package compoundfiles

import "fmt"

// Allocator owns the FAT and DIFAT. The FAT is a dense array with one
// entry per file sector; Difat lists the sectors holding FAT blocks and
// DifatSectorIds the sectors holding DIFAT blocks past the 109 header
// slots. All three grow together: appending a sector keeps the FAT
// covering the whole extent at all times.
type Allocator struct {
	Sectors        *Sectors
	Fat            []uint32
	Difat          []uint32
	DifatSectorIds []uint32

	Validation Validation
	sink       Sink
}

func NewAllocator(sectors *Sectors, difatSectorIds []uint32, difat []uint32, fat []uint32,
	validation Validation, sink Sink) (*Allocator, error) {
	alloc := &Allocator{
		Sectors:        sectors,
		Fat:            fat,
		Difat:          difat,
		DifatSectorIds: difatSectorIds,
		Validation:     validation,
		sink:           sink,
	}
	if err := alloc.Validate(); err != nil {
		return nil, err
	}
	return alloc, nil
}

// Validate cross-checks the loaded tables. Mis-marked FAT/DIFAT sectors
// are repaired with a warning in permissive mode; strict mode fails.
func (a *Allocator) Validate() error {
	if len(a.Fat) > int(a.Sectors.NumSectors) {
		return fmt.Errorf("FAT has %v entries, but file has %v sectors: %w",
			len(a.Fat), a.Sectors.NumSectors, ErrNormalFat)
	}

	for _, difatSector := range a.DifatSectorIds {
		if difatSector >= uint32(len(a.Fat)) {
			return fmt.Errorf("FAT has %v entries, but DIFAT chain includes sector %v: %w",
				len(a.Fat), difatSector, ErrMasterFat)
		}
		if a.Fat[difatSector] != DIFAT_SECTOR {
			if a.Validation.IsStrict() {
				return fmt.Errorf("DIFAT sector %v is not marked as such in the FAT: %w",
					difatSector, ErrMasterFat)
			}
			if err := warnf(a.sink, MasterSectorWarning,
				"DIFAT sector %v not marked in the FAT; repairing", difatSector); err != nil {
				return err
			}
			a.Fat[difatSector] = DIFAT_SECTOR
		}
	}

	for _, fatSector := range a.Difat {
		if fatSector >= uint32(len(a.Fat)) {
			return fmt.Errorf("FAT has %v entries, but DIFAT lists %v as a FAT sector: %w",
				len(a.Fat), fatSector, ErrMasterFat)
		}
		if a.Fat[fatSector] != FAT_SECTOR {
			if a.Validation.IsStrict() {
				return fmt.Errorf("FAT sector %v is not marked as such in the FAT: %w",
					fatSector, ErrNormalFat)
			}
			if err := warnf(a.sink, NormalSectorWarning,
				"FAT sector %v not marked in the FAT; repairing", fatSector); err != nil {
				return err
			}
			a.Fat[fatSector] = FAT_SECTOR
		}
	}

	for fatIdx, next := range a.Fat {
		if next == INVALID_SECTOR {
			return fmt.Errorf("FAT entry %v holds reserved value 0x%08x: %w",
				fatIdx, next, ErrNormalFat)
		}
		if next <= MAX_REGULAR_SECTOR && next >= uint32(len(a.Fat)) {
			return fmt.Errorf("FAT entry %v points to sector %v, but file has only %v sectors: %w",
				fatIdx, next, len(a.Fat), ErrLargeNormalFat)
		}
	}

	return nil
}

// Next returns the FAT successor of the given sector.
func (a *Allocator) Next(index uint32) (uint32, error) {
	if index >= uint32(len(a.Fat)) {
		return 0, fmt.Errorf("sector %v beyond FAT of %v entries: %w", index, len(a.Fat), ErrLargeNormalFat)
	}
	next := a.Fat[index]
	if next != END_OF_CHAIN && next != FREE_SECTOR &&
		(next > MAX_REGULAR_SECTOR || next >= uint32(len(a.Fat))) {
		return 0, fmt.Errorf("FAT entry %v holds invalid successor %v: %w", index, next, ErrLargeNormalFat)
	}
	return next, nil
}

// Chain walks a FAT chain from start, detecting loops and out-of-range
// ids. An END_OF_CHAIN start yields an empty chain.
func (a *Allocator) Chain(start uint32) ([]uint32, error) {
	var ids []uint32
	seen := make(map[uint32]bool)
	current := start

	for current != END_OF_CHAIN {
		if current > MAX_REGULAR_SECTOR || current >= uint32(len(a.Fat)) {
			return nil, fmt.Errorf("chain from sector %v includes invalid sector %v: %w",
				start, current, ErrLargeNormalFat)
		}
		if seen[current] {
			return nil, fmt.Errorf("chain from sector %v revisits sector %v: %w",
				start, current, ErrNormalLoop)
		}
		seen[current] = true
		ids = append(ids, current)

		next, err := a.Next(current)
		if err != nil {
			return nil, err
		}
		if next == FREE_SECTOR {
			return nil, fmt.Errorf("chain from sector %v runs into a free sector after %v: %w",
				start, current, ErrNormalFat)
		}
		current = next
	}
	return ids, nil
}

// appendSector grows the file by one sector and keeps the FAT covering
// the new extent, allocating FAT and DIFAT sectors as required.
func (a *Allocator) appendSector() uint32 {
	id := a.Sectors.AppendSector()
	a.Fat = append(a.Fat, FREE_SECTOR)
	a.ensureFatCoverage()
	return id
}

func (a *Allocator) ensureFatCoverage() {
	perSector := a.Sectors.SectorLen / 4
	for len(a.Difat)*perSector < len(a.Fat) {
		id := a.Sectors.AppendSector()
		a.Fat = append(a.Fat, FAT_SECTOR)
		a.Difat = append(a.Difat, id)
		a.ensureDifatCoverage()
	}
}

func (a *Allocator) ensureDifatCoverage() {
	refsPerSector := a.Sectors.SectorLen/4 - 1
	for {
		overflow := len(a.Difat) - NUM_DIFAT_ENTRIES_IN_HEADER
		needed := 0
		if overflow > 0 {
			needed = (overflow + refsPerSector - 1) / refsPerSector
		}
		if len(a.DifatSectorIds) >= needed {
			return
		}
		id := a.Sectors.AppendSector()
		a.Fat = append(a.Fat, DIFAT_SECTOR)
		a.DifatSectorIds = append(a.DifatSectorIds, id)
		// The appended sector may itself overflow the FAT coverage.
		perSector := a.Sectors.SectorLen / 4
		for len(a.Difat)*perSector < len(a.Fat) {
			fatId := a.Sectors.AppendSector()
			a.Fat = append(a.Fat, FAT_SECTOR)
			a.Difat = append(a.Difat, fatId)
		}
	}
}

// allocSector claims one sector and stores value as its FAT entry,
// scanning for a free sector first and growing the file when the pool is
// exhausted.
func (a *Allocator) allocSector(value uint32) uint32 {
	for i, entry := range a.Fat {
		if entry == FREE_SECTOR {
			a.Fat[i] = value
			return uint32(i)
		}
	}
	id := a.appendSector()
	a.Fat[id] = value
	return id
}

// Allocate links a fresh chain of n sectors and returns its start, or
// END_OF_CHAIN when n is zero.
func (a *Allocator) Allocate(n int) (uint32, error) {
	if n <= 0 {
		return END_OF_CHAIN, nil
	}
	start := a.allocSector(END_OF_CHAIN)
	prev := start
	for i := 1; i < n; i++ {
		next := a.allocSector(END_OF_CHAIN)
		a.Fat[prev] = next
		prev = next
	}
	return start, nil
}

// Extend appends extra sectors to the chain starting at start; a start of
// END_OF_CHAIN creates a new chain. Returns the (possibly new) start.
func (a *Allocator) Extend(start uint32, extra int) (uint32, error) {
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
		next := a.allocSector(END_OF_CHAIN)
		a.Fat[tail] = next
		tail = next
	}
	return start, nil
}

// Free releases a whole chain, marking each sector FREE_SECTOR.
func (a *Allocator) Free(start uint32) error {
	chain, err := a.Chain(start)
	if err != nil {
		return err
	}
	for _, id := range chain {
		a.Fat[id] = FREE_SECTOR
	}
	return nil
}

// Truncate shortens a chain to keep sectors, freeing the rest. A keep of
// zero frees the chain entirely and returns END_OF_CHAIN.
func (a *Allocator) Truncate(start uint32, keep int) (uint32, error) {
	chain, err := a.Chain(start)
	if err != nil {
		return 0, err
	}
	if keep <= 0 {
		for _, id := range chain {
			a.Fat[id] = FREE_SECTOR
		}
		return END_OF_CHAIN, nil
	}
	if keep >= len(chain) {
		return start, nil
	}
	a.Fat[chain[keep-1]] = END_OF_CHAIN
	for _, id := range chain[keep:] {
		a.Fat[id] = FREE_SECTOR
	}
	return start, nil
}
