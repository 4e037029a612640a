package compoundfiles

import "fmt"

// Directory holds the dense vector of directory entries, addressed by
// DirId. Sibling and child edges nest one red-black tree per storage.
type Directory struct {
	Allocator      *Allocator
	DirEntries     []DirEntry
	DirStartSector uint32

	Validation Validation
	sink       Sink

	// freeSlots lists unallocated entry ids; reuse is LIFO.
	freeSlots []uint32
}

func NewDirectory(allocator *Allocator, dirEntries []DirEntry, dirStartSector uint32,
	validation Validation, sink Sink) (*Directory, error) {
	d := &Directory{
		Allocator:      allocator,
		DirEntries:     dirEntries,
		DirStartSector: dirStartSector,
		Validation:     validation,
		sink:           sink,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	for id := len(d.DirEntries) - 1; id >= 1; id-- {
		if !d.DirEntries[id].IsAllocated() {
			d.freeSlots = append(d.freeSlots, uint32(id))
		}
	}
	return d, nil
}

func (d *Directory) RootDirEntry() *DirEntry {
	return &d.DirEntries[ROOT_STREAM_ID]
}

func (d *Directory) entry(id uint32) *DirEntry {
	return &d.DirEntries[id]
}

func (d *Directory) validId(id uint32) bool {
	return id < uint32(len(d.DirEntries))
}

// Validate checks the whole hierarchy: the root entry, edge ranges, the
// absence of cycles, and per-storage tree shape. Sibling edges pointing
// outside the directory are cleared with a warning; cycles are fatal.
func (d *Directory) Validate() error {
	if len(d.DirEntries) == 0 {
		return fmt.Errorf("directory has no entries: %w", ErrDirEntry)
	}
	root := d.RootDirEntry()
	if root.ObjType != Root {
		return fmt.Errorf("root entry has object type %v: %w", root.ObjType, ErrDirEntry)
	}
	if root.StreamSize%uint64(MINI_SECTOR_LEN) != 0 {
		if err := warnf(d.sink, DirSizeWarning,
			"root stream size %v is not a multiple of %v", root.StreamSize, MINI_SECTOR_LEN); err != nil {
			return err
		}
	}

	if err := d.clampEdges(); err != nil {
		return err
	}

	// Cycle and reachability check over siblings and children.
	visited := make(map[uint32]bool)
	stack := []uint32{ROOT_STREAM_ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			return fmt.Errorf("directory entry %v reached twice: %w", id, ErrDirLoop)
		}
		visited[id] = true

		entry := d.entry(id)
		if id != ROOT_STREAM_ID && entry.ObjType != Storage && entry.ObjType != StreamType {
			if err := warnf(d.sink, DirTypeWarning,
				"reachable entry %v has type %v", id, entry.ObjType); err != nil {
				return err
			}
		}
		for _, edge := range []uint32{entry.LeftSibling, entry.RightSibling, entry.Child} {
			if edge != NO_STREAM {
				stack = append(stack, edge)
			}
		}
	}

	// Per-storage tree shape: order violations are reported (fatal in
	// strict mode); color violations are repaired by repainting.
	for id := range d.DirEntries {
		entry := d.entry(uint32(id))
		if entry.ObjType != Storage && entry.ObjType != Root {
			continue
		}
		orderOK, colorsOK := d.checkTree(uint32(id))
		if !orderOK {
			if d.Validation.IsStrict() {
				return fmt.Errorf("storage %v children are not in name order: %w", id, ErrDirEntry)
			}
			if err := warnf(d.sink, DirEntryWarning,
				"storage %v children are not in name order", id); err != nil {
				return err
			}
			continue
		}
		if !colorsOK {
			if err := warnf(d.sink, DirEntryWarning,
				"storage %v has invalid red-black coloring; repainting", id); err != nil {
				return err
			}
			d.repaintStorage(uint32(id))
		}
	}

	return nil
}

// clampEdges resets out-of-range sibling/child ids to NO_STREAM with a
// warning, so later walks stay in bounds.
func (d *Directory) clampEdges() error {
	for id := range d.DirEntries {
		entry := d.entry(uint32(id))
		fix := func(edge *uint32, what string) error {
			if *edge != NO_STREAM && !d.validId(*edge) {
				if err := warnf(d.sink, DirIndexWarning,
					"entry %v: %s index %v out of range (%v entries)",
					id, what, *edge, len(d.DirEntries)); err != nil {
					return err
				}
				*edge = NO_STREAM
			}
			return nil
		}
		if err := fix(&entry.LeftSibling, "left sibling"); err != nil {
			return err
		}
		if err := fix(&entry.RightSibling, "right sibling"); err != nil {
			return err
		}
		if err := fix(&entry.Child, "child"); err != nil {
			return err
		}
	}
	return nil
}

// InOrder returns the storage's children in tree order. The walk is
// bounded so that a corrupt tree cannot loop.
func (d *Directory) InOrder(storage uint32) []uint32 {
	var out []uint32
	var stack []uint32
	seen := make(map[uint32]bool)
	current := d.entry(storage).Child

	for current != NO_STREAM || len(stack) > 0 {
		for current != NO_STREAM && d.validId(current) && !seen[current] {
			seen[current] = true
			stack = append(stack, current)
			current = d.entry(current).LeftSibling
		}
		if len(stack) == 0 {
			break
		}
		current = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, current)
		current = d.entry(current).RightSibling
	}
	return out
}

// Lookup finds a child of the given storage by name: ordinary BST
// descent, with an in-order scan fallback for trees whose on-disk order
// was reported broken on load.
func (d *Directory) Lookup(storage uint32, name string) (uint32, error) {
	id := d.entry(storage).Child
	steps := 0
	for id != NO_STREAM && d.validId(id) && steps <= len(d.DirEntries) {
		steps++
		entry := d.entry(id)
		switch CompareNames(name, entry.Name) {
		case OrderEqual:
			return id, nil
		case OrderLess:
			id = entry.LeftSibling
		case OrderGreater:
			id = entry.RightSibling
		}
	}
	for _, id := range d.InOrder(storage) {
		if CompareNames(name, d.entry(id).Name) == OrderEqual {
			return id, nil
		}
	}
	return 0, fmt.Errorf("no entry named %q: %w", name, ErrNotFound)
}

// LookupNameChain resolves a chain of names from the root storage.
func (d *Directory) LookupNameChain(names []string) (uint32, error) {
	id := ROOT_STREAM_ID
	for _, name := range names {
		entry := d.entry(id)
		if entry.ObjType != Root && entry.ObjType != Storage {
			return 0, fmt.Errorf("%q is not a storage: %w", entry.Name, ErrNotStorage)
		}
		child, err := d.Lookup(id, name)
		if err != nil {
			return 0, err
		}
		id = child
	}
	return id, nil
}

// ParentStorageOf finds the storage whose child tree contains id.
func (d *Directory) ParentStorageOf(id uint32) (uint32, error) {
	for sid := range d.DirEntries {
		entry := d.entry(uint32(sid))
		if entry.ObjType != Storage && entry.ObjType != Root {
			continue
		}
		for _, child := range d.InOrder(uint32(sid)) {
			if child == id {
				return uint32(sid), nil
			}
		}
	}
	return 0, fmt.Errorf("entry %v has no parent storage: %w", id, ErrDirEntry)
}

// allocSlot claims a directory slot, reusing freed slots LIFO and
// growing the directory chain by whole sectors when none remain.
func (d *Directory) allocSlot() (uint32, error) {
	if n := len(d.freeSlots); n > 0 {
		id := d.freeSlots[n-1]
		d.freeSlots = d.freeSlots[:n-1]
		return id, nil
	}

	perSector := d.Allocator.Sectors.SectorLen / DIR_ENTRY_LEN
	start, err := d.Allocator.Extend(d.DirStartSector, 1)
	if err != nil {
		return 0, err
	}
	d.DirStartSector = start

	base := uint32(len(d.DirEntries))
	for i := 0; i < perSector; i++ {
		d.DirEntries = append(d.DirEntries, DirEntry{
			LeftSibling:    NO_STREAM,
			RightSibling:   NO_STREAM,
			Child:          NO_STREAM,
			StartingSector: END_OF_CHAIN,
		})
	}
	for i := perSector - 1; i >= 1; i-- {
		d.freeSlots = append(d.freeSlots, base+uint32(i))
	}
	return base, nil
}

// freeSlot marks the entry unallocated and recycles its slot.
func (d *Directory) freeSlot(id uint32) {
	d.DirEntries[id] = DirEntry{
		LeftSibling:    NO_STREAM,
		RightSibling:   NO_STREAM,
		Child:          NO_STREAM,
		StartingSector: END_OF_CHAIN,
	}
	d.freeSlots = append(d.freeSlots, id)
}

// Insert places a prepared entry under the given storage and returns its
// DirId. The name must not collide within the storage.
func (d *Directory) Insert(storage uint32, entry DirEntry) (uint32, error) {
	parent := d.entry(storage)
	if parent.ObjType != Storage && parent.ObjType != Root {
		return 0, fmt.Errorf("parent %q is not a storage: %w", parent.Name, ErrNotStorage)
	}
	if _, err := d.Lookup(storage, entry.Name); err == nil {
		return 0, fmt.Errorf("%q already exists in %q: %w", entry.Name, parent.Name, ErrExists)
	}

	id, err := d.allocSlot()
	if err != nil {
		return 0, err
	}
	entry.LeftSibling = NO_STREAM
	entry.RightSibling = NO_STREAM
	d.DirEntries[id] = entry
	d.insertChild(storage, id)
	return id, nil
}

// Delete unlinks the entry from its parent's tree and frees its slot.
// The caller is responsible for the entry's sector chain and children.
func (d *Directory) Delete(id uint32) error {
	if id == ROOT_STREAM_ID {
		return fmt.Errorf("cannot delete the root entry: %w", ErrDirEntry)
	}
	parent, err := d.ParentStorageOf(id)
	if err != nil {
		return err
	}
	d.removeChild(parent, id)
	d.freeSlot(id)
	return nil
}

// Rename re-keys an entry: the node is unlinked, renamed, and
// re-inserted under the same storage so the tree order holds. The DirId
// is preserved. A colliding new name fails without mutating the tree.
func (d *Directory) Rename(id uint32, newName string) error {
	if id == ROOT_STREAM_ID {
		return fmt.Errorf("cannot rename the root entry: %w", ErrDirEntry)
	}
	if err := ValidateName(newName); err != nil {
		return err
	}
	parent, err := d.ParentStorageOf(id)
	if err != nil {
		return err
	}
	if existing, err := d.Lookup(parent, newName); err == nil && existing != id {
		return fmt.Errorf("%q already exists in %q: %w", newName, d.entry(parent).Name, ErrExists)
	}

	d.removeChild(parent, id)
	d.entry(id).Name = newName
	d.insertChild(parent, id)
	return nil
}
