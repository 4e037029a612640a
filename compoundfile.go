package compoundfiles

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode is the container lifecycle mode.
type Mode int

const (
	ModeRead Mode = iota
	ModeEdit
	ModeCreate
)

// Options tunes how a container is opened or created. The zero value
// (and a nil pointer) means permissive validation, no warning sink, and
// version 3 for new containers.
type Options struct {
	Validation Validation
	Sink       Sink
	Version    Version
}

func (o *Options) withDefaults() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.Sink == nil {
		opts.Sink = DiscardSink{}
	}
	if opts.Version == 0 {
		opts.Version = V3
	}
	return opts
}

// CompoundFile is the top-level container: it coordinates the header,
// sector store, allocators, and directory over one exclusively owned
// byte device. It is not safe for concurrent mutation.
type CompoundFile struct {
	device Device
	mode   Mode

	header    *Header
	sectors   *Sectors
	alloc     *Allocator
	miniAlloc *MiniAlloc
	directory *Directory

	validation Validation
	sink       Sink
	dirty      bool
	closed     bool
}

// OpenReader opens an existing container read-only. On failure the
// device is closed; the container owns it from the moment of the call.
func OpenReader(device Device, opts *Options) (*CompoundFile, error) {
	c, err := load(device, opts, ModeRead)
	if err != nil {
		device.Close()
		return nil, err
	}
	return c, nil
}

// OpenEditor opens an existing container for mutation. Changes are
// buffered in memory until Save or Close. On failure the device is
// closed.
func OpenEditor(device Device, opts *Options) (*CompoundFile, error) {
	c, err := load(device, opts, ModeEdit)
	if err != nil {
		device.Close()
		return nil, err
	}
	return c, nil
}

// CreateWriter initializes a fresh container on the device: a root
// storage, one directory sector, one FAT sector, and no mini FAT.
func CreateWriter(device Device, opts *Options) (*CompoundFile, error) {
	o := opts.withDefaults()

	c := &CompoundFile{
		device:     device,
		mode:       ModeCreate,
		header:     NewHeader(o.Version),
		validation: o.Validation,
		sink:       o.Sink,
		dirty:      true,
	}
	c.sectors = NewSectors(c.header.SectorLen(), 0, device, o.Sink)
	c.alloc = &Allocator{
		Sectors:    c.sectors,
		Validation: o.Validation,
		sink:       o.Sink,
	}

	perSector := c.header.DirEntriesPerSector()
	dirEntries := make([]DirEntry, perSector)
	dirEntries[ROOT_STREAM_ID] = NewDirEntry(ROOT_DIR_NAME, Root, nowTicks())
	for i := 1; i < perSector; i++ {
		dirEntries[i] = DirEntry{
			LeftSibling:    NO_STREAM,
			RightSibling:   NO_STREAM,
			Child:          NO_STREAM,
			StartingSector: END_OF_CHAIN,
		}
	}

	dirSector := c.alloc.allocSector(END_OF_CHAIN)
	c.header.FirstDirSector = dirSector

	directory, err := NewDirectory(c.alloc, dirEntries, dirSector, o.Validation, o.Sink)
	if err != nil {
		device.Close()
		return nil, err
	}
	c.directory = directory

	c.miniAlloc = &MiniAlloc{
		Directory:          directory,
		MinifatStartSector: END_OF_CHAIN,
		Validation:         o.Validation,
		sink:               o.Sink,
	}
	return c, nil
}

func load(device Device, opts *Options, mode Mode) (*CompoundFile, error) {
	o := opts.withDefaults()

	deviceLen, err := device.Size()
	if err != nil {
		return nil, err
	}
	if deviceLen < int64(HEADER_LEN) {
		return nil, fmt.Errorf("file is only %v bytes: %w", deviceLen, ErrorInvalidCFB)
	}

	headerBuf := make([]byte, HEADER_LEN)
	if _, err := device.ReadAt(headerBuf, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header, err := DecodeHeader(headerBuf, o.Sink)
	if err != nil {
		return nil, err
	}

	sectorLen := header.SectorLen()
	if deviceLen > (int64(MAX_REGULAR_SECTOR)+1)*int64(sectorLen) {
		return nil, fmt.Errorf("file is too large: %w", ErrorInvalidCFB)
	}

	c := &CompoundFile{
		device:     device,
		mode:       mode,
		header:     header,
		validation: o.Validation,
		sink:       o.Sink,
	}
	c.sectors = NewSectors(sectorLen, deviceLen, device, o.Sink)

	difat, difatSectorIds, err := c.loadDifat()
	if err != nil {
		return nil, err
	}
	fat, err := c.loadFat(difat)
	if err != nil {
		return nil, err
	}
	c.alloc, err = NewAllocator(c.sectors, difatSectorIds, difat, fat, o.Validation, o.Sink)
	if err != nil {
		return nil, err
	}

	dirEntries, err := c.loadDirEntries()
	if err != nil {
		return nil, err
	}
	c.directory, err = NewDirectory(c.alloc, dirEntries, header.FirstDirSector, o.Validation, o.Sink)
	if err != nil {
		return nil, err
	}

	minifat, err := c.loadMinifat()
	if err != nil {
		return nil, err
	}
	c.miniAlloc, err = NewMiniAlloc(c.directory, minifat, header.FirstMinifatSector, o.Validation, o.Sink)
	if err != nil {
		return nil, err
	}

	if err := c.normalizeStreamStarts(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadDifat collects the 109 inline DIFAT slots and walks the DIFAT
// sector chain via each sector's final slot.
func (c *CompoundFile) loadDifat() (difat []uint32, difatSectorIds []uint32, err error) {
	for _, entry := range c.header.InitialDifatEntries {
		difat = append(difat, entry)
	}

	seen := make(map[uint32]bool)
	current := c.header.FirstDifatSector
	perSector := c.header.FatEntriesPerSector()

	for current != END_OF_CHAIN {
		if current > MAX_REGULAR_SECTOR {
			return nil, nil, fmt.Errorf("DIFAT chain includes reserved sector id %v: %w", current, ErrMasterFat)
		}
		if current >= c.sectors.NumSectors {
			return nil, nil, fmt.Errorf("DIFAT chain includes sector %v beyond file extent %v: %w",
				current, c.sectors.NumSectors, ErrMasterFat)
		}
		if seen[current] {
			return nil, nil, fmt.Errorf("DIFAT chain revisits sector %v: %w", current, ErrMasterLoop)
		}
		seen[current] = true
		difatSectorIds = append(difatSectorIds, current)

		buf, err := c.sectors.ReadSector(current)
		if err != nil {
			return nil, nil, err
		}
		for i := 0; i < perSector-1; i++ {
			next := binary.LittleEndian.Uint32(buf[i*4:])
			if next != FREE_SECTOR && next > MAX_REGULAR_SECTOR {
				return nil, nil, fmt.Errorf("DIFAT refers to invalid sector id %v: %w", next, ErrMasterFat)
			}
			difat = append(difat, next)
		}
		current = binary.LittleEndian.Uint32(buf[(perSector-1)*4:])
		if current == FREE_SECTOR {
			current = END_OF_CHAIN
		}
	}

	if c.header.NumDifatSectors != uint32(len(difatSectorIds)) {
		if c.validation.IsStrict() {
			return nil, nil, fmt.Errorf("header says %v DIFAT sectors, walk found %v: %w",
				c.header.NumDifatSectors, len(difatSectorIds), ErrMasterFat)
		}
		if err := warnf(c.sink, MasterFatWarning,
			"header says %v DIFAT sectors, walk found %v; trusting the walk",
			c.header.NumDifatSectors, len(difatSectorIds)); err != nil {
			return nil, nil, err
		}
	}

	for len(difat) > 0 && difat[len(difat)-1] == FREE_SECTOR {
		difat = difat[:len(difat)-1]
	}

	if c.header.NumFatSectors != uint32(len(difat)) {
		if c.validation.IsStrict() {
			return nil, nil, fmt.Errorf("header says %v FAT sectors, DIFAT lists %v: %w",
				c.header.NumFatSectors, len(difat), ErrMasterFat)
		}
		if err := warnf(c.sink, MasterFatWarning,
			"header says %v FAT sectors, DIFAT lists %v; trusting the DIFAT",
			c.header.NumFatSectors, len(difat)); err != nil {
			return nil, nil, err
		}
	}
	return difat, difatSectorIds, nil
}

func (c *CompoundFile) loadFat(difat []uint32) ([]uint32, error) {
	var fat []uint32
	perSector := c.header.FatEntriesPerSector()

	for _, sectorId := range difat {
		if sectorId >= c.sectors.NumSectors {
			return nil, fmt.Errorf("DIFAT lists FAT sector %v beyond file extent %v: %w",
				sectorId, c.sectors.NumSectors, ErrNormalFat)
		}
		buf, err := c.sectors.ReadSector(sectorId)
		if err != nil {
			return nil, err
		}
		for i := 0; i < perSector; i++ {
			fat = append(fat, binary.LittleEndian.Uint32(buf[i*4:]))
		}
	}

	// The FAT covers whole sectors; drop coverage past the file extent,
	// then pad to it so the allocator's extent model lines up.
	for len(fat) > int(c.sectors.NumSectors) && fat[len(fat)-1] == FREE_SECTOR {
		fat = fat[:len(fat)-1]
	}
	if len(fat) > int(c.sectors.NumSectors) {
		if c.validation.IsStrict() {
			return nil, fmt.Errorf("FAT has %v entries, but file has %v sectors: %w",
				len(fat), c.sectors.NumSectors, ErrNormalFat)
		}
		if err := warnf(c.sink, NormalFatWarning,
			"FAT has %v entries, but file has %v sectors; dropping the excess",
			len(fat), c.sectors.NumSectors); err != nil {
			return nil, err
		}
		fat = fat[:c.sectors.NumSectors]
	}
	for len(fat) < int(c.sectors.NumSectors) {
		fat = append(fat, FREE_SECTOR)
	}
	return fat, nil
}

func (c *CompoundFile) loadDirEntries() ([]DirEntry, error) {
	chain, err := c.alloc.Chain(c.header.FirstDirSector)
	if err != nil {
		return nil, fmt.Errorf("directory chain: %w", err)
	}
	perSector := c.header.DirEntriesPerSector()

	var entries []DirEntry
	for _, sectorId := range chain {
		buf, err := c.sectors.ReadSector(sectorId)
		if err != nil {
			return nil, err
		}
		for i := 0; i < perSector; i++ {
			entry, err := DecodeDirEntry(buf[i*DIR_ENTRY_LEN:(i+1)*DIR_ENTRY_LEN],
				uint32(len(entries)), c.header.Version, c.sink)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (c *CompoundFile) loadMinifat() ([]uint32, error) {
	chain, err := c.alloc.Chain(c.header.FirstMinifatSector)
	if err != nil {
		return nil, fmt.Errorf("mini FAT chain: %w", err)
	}
	if c.header.NumMinifatSectors != uint32(len(chain)) {
		if c.validation.IsStrict() {
			return nil, fmt.Errorf("header says %v mini FAT sectors, FAT chain has %v: %w",
				c.header.NumMinifatSectors, len(chain), ErrMiniFat)
		}
		if err := warnf(c.sink, MiniFatWarning,
			"header says %v mini FAT sectors, FAT chain has %v; trusting the chain",
			c.header.NumMinifatSectors, len(chain)); err != nil {
			return nil, err
		}
	}

	var minifat []uint32
	perSector := c.header.FatEntriesPerSector()
	for _, sectorId := range chain {
		buf, err := c.sectors.ReadSector(sectorId)
		if err != nil {
			return nil, err
		}
		for i := 0; i < perSector; i++ {
			minifat = append(minifat, binary.LittleEndian.Uint32(buf[i*4:]))
		}
	}
	for len(minifat) > 0 && minifat[len(minifat)-1] == FREE_SECTOR {
		minifat = minifat[:len(minifat)-1]
	}
	return minifat, nil
}

// normalizeStreamStarts clears start sectors that cannot name data, so
// that reads on such entries yield zero bytes instead of failing.
func (c *CompoundFile) normalizeStreamStarts() error {
	root := c.directory.RootDirEntry()
	if root.StreamSize == 0 && root.StartingSector != END_OF_CHAIN {
		root.StartingSector = END_OF_CHAIN
	}

	for id := range c.directory.DirEntries {
		entry := c.directory.entry(uint32(id))
		if entry.ObjType != StreamType {
			continue
		}
		var limit uint32
		if entry.StreamSize < uint64(c.header.MiniStreamCutoff) {
			limit = uint32(len(c.miniAlloc.Minifat))
		} else {
			limit = uint32(len(c.alloc.Fat))
		}
		bad := false
		if entry.StreamSize == 0 {
			bad = entry.StartingSector != END_OF_CHAIN
		} else {
			bad = entry.StartingSector == END_OF_CHAIN && entry.StreamSize > 0
			if entry.StartingSector != END_OF_CHAIN &&
				(entry.StartingSector > MAX_REGULAR_SECTOR || entry.StartingSector >= limit) {
				bad = true
			}
		}
		if bad {
			if err := warnf(c.sink, DirSectorWarning,
				"entry %v: start sector %v cannot hold a stream of %v bytes",
				id, entry.StartingSector, entry.StreamSize); err != nil {
				return err
			}
			entry.StartingSector = END_OF_CHAIN
			entry.StreamSize = 0
		}
	}
	return nil
}

func (c *CompoundFile) ensureOpen() error {
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *CompoundFile) ensureWritable() error {
	if c.closed {
		return ErrClosed
	}
	if c.mode == ModeRead {
		return ErrReadOnly
	}
	c.dirty = true
	return nil
}

func (c *CompoundFile) chain(dirId uint32) *chainIO {
	return &chainIO{
		header: c.header,
		alloc:  c.alloc,
		mini:   c.miniAlloc,
		dir:    c.directory,
		dirId:  dirId,
	}
}

func nowTicks() uint64 {
	return TicksFromTime(time.Now().UTC())
}

// touch stamps the entry's modification time.
func (c *CompoundFile) touch(dirId uint32) {
	c.directory.entry(dirId).ModifiedTime = nowTicks()
}

// Root returns the root storage entry.
func (c *CompoundFile) Root() *Entry {
	return newEntry(c, ROOT_STREAM_ID, "/")
}

// EntryByPath resolves a path to an entry.
func (c *CompoundFile) EntryByPath(path string) (*Entry, error) {
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	names := NameChainFromPath(path)
	id, err := c.directory.LookupNameChain(names)
	if err != nil {
		return nil, err
	}
	return newEntry(c, id, PathFromNameChain(names)), nil
}

// OpenPath opens the stream at the given path.
func (c *CompoundFile) OpenPath(path string) (*Stream, error) {
	entry, err := c.EntryByPath(path)
	if err != nil {
		return nil, err
	}
	if !entry.IsStream() {
		return nil, fmt.Errorf("%q: %w", path, ErrNotStream)
	}
	return &Stream{file: c, dirId: entry.DirId}, nil
}

// CreateStorage adds an empty storage under parent.
func (c *CompoundFile) CreateStorage(parent *Entry, name string) (*Entry, error) {
	if err := c.ensureWritable(); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	id, err := c.directory.Insert(parent.DirId, NewDirEntry(name, Storage, nowTicks()))
	if err != nil {
		return nil, err
	}
	c.touch(parent.DirId)
	return newEntry(c, id, parent.childPath(name)), nil
}

// CreateStream adds a stream under parent holding the given bytes.
func (c *CompoundFile) CreateStream(parent *Entry, name string, data []byte) (*Entry, error) {
	if err := c.ensureWritable(); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	id, err := c.directory.Insert(parent.DirId, NewDirEntry(name, StreamType, nowTicks()))
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if _, err := c.chain(id).WriteAt(data, 0); err != nil {
			return nil, err
		}
	}
	c.touch(parent.DirId)
	return newEntry(c, id, parent.childPath(name)), nil
}

// Rename gives the entry a new name, re-keying it within its parent
// storage. A colliding name fails without mutating the tree.
func (c *CompoundFile) Rename(entry *Entry, newName string) error {
	if err := c.ensureWritable(); err != nil {
		return err
	}
	if err := c.directory.Rename(entry.DirId, newName); err != nil {
		return err
	}
	c.touch(entry.DirId)
	entry.Name = newName
	return nil
}

// Delete removes the entry; storages are removed recursively, children
// first. Every freed stream releases its sector chain.
func (c *CompoundFile) Delete(entry *Entry) error {
	if err := c.ensureWritable(); err != nil {
		return err
	}
	return c.deleteById(entry.DirId)
}

func (c *CompoundFile) deleteById(id uint32) error {
	if id == ROOT_STREAM_ID {
		return fmt.Errorf("cannot delete the root storage: %w", ErrDirEntry)
	}
	dirEntry := c.directory.entry(id)
	if dirEntry.ObjType == Storage {
		for {
			children := c.directory.InOrder(id)
			if len(children) == 0 {
				break
			}
			if err := c.deleteById(children[0]); err != nil {
				return err
			}
		}
	}

	if dirEntry.ObjType == StreamType && dirEntry.StartingSector != END_OF_CHAIN {
		var err error
		if dirEntry.StreamSize < uint64(c.header.MiniStreamCutoff) {
			err = c.miniAlloc.Free(dirEntry.StartingSector)
		} else {
			err = c.alloc.Free(dirEntry.StartingSector)
		}
		if err != nil {
			return err
		}
	}
	return c.directory.Delete(id)
}

// SetCLSID assigns the class identifier of a storage entry.
func (c *CompoundFile) SetCLSID(entry *Entry, clsid uuid.UUID) error {
	if err := c.ensureWritable(); err != nil {
		return err
	}
	dirEntry := c.directory.entry(entry.DirId)
	if dirEntry.ObjType != Storage && dirEntry.ObjType != Root {
		return ErrNotStorage
	}
	copy(dirEntry.CLSID[:], clsid[:])
	entry.CLSID = clsid
	c.touch(entry.DirId)
	return nil
}

// SetStateBits assigns the user state flags of an entry.
func (c *CompoundFile) SetStateBits(entry *Entry, bits uint32) error {
	if err := c.ensureWritable(); err != nil {
		return err
	}
	c.directory.entry(entry.DirId).StateBits = bits
	entry.StateBits = bits
	return nil
}

// Save persists all buffered state: table chains are resized, the mini
// FAT, FAT, DIFAT, and directory sectors rewritten, and the header
// written last.
func (c *CompoundFile) Save() error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if c.mode == ModeRead || !c.dirty {
		return nil
	}

	if err := c.syncMinifatChain(); err != nil {
		return err
	}
	if err := c.syncDirChain(); err != nil {
		return err
	}

	c.header.NumFatSectors = uint32(len(c.alloc.Difat))
	c.header.NumDifatSectors = uint32(len(c.alloc.DifatSectorIds))
	if len(c.alloc.DifatSectorIds) > 0 {
		c.header.FirstDifatSector = c.alloc.DifatSectorIds[0]
	} else {
		c.header.FirstDifatSector = END_OF_CHAIN
	}

	if err := c.writeFatSectors(); err != nil {
		return err
	}
	if err := c.writeDifatSectors(); err != nil {
		return err
	}
	if err := c.writeMinifatSectors(); err != nil {
		return err
	}
	if err := c.writeDirSectors(); err != nil {
		return err
	}

	if err := c.sectors.Flush(); err != nil {
		return err
	}
	if _, err := c.device.WriteAt(EncodeHeader(c.header), 0); err != nil {
		return err
	}
	if err := c.device.Sync(); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// syncMinifatChain sizes the on-disk chain holding the mini FAT to the
// current table.
func (c *CompoundFile) syncMinifatChain() error {
	perSector := c.header.FatEntriesPerSector()
	needed := (len(c.miniAlloc.Minifat) + perSector - 1) / perSector

	chain, err := c.alloc.Chain(c.miniAlloc.MinifatStartSector)
	if err != nil {
		return err
	}
	start := c.miniAlloc.MinifatStartSector
	switch {
	case needed > len(chain):
		start, err = c.alloc.Extend(start, needed-len(chain))
	case needed < len(chain):
		start, err = c.alloc.Truncate(start, needed)
	}
	if err != nil {
		return err
	}
	c.miniAlloc.MinifatStartSector = start
	c.header.FirstMinifatSector = start
	c.header.NumMinifatSectors = uint32(needed)
	return nil
}

// syncDirChain sizes the on-disk chain holding the directory. The entry
// vector always spans whole sectors, so the chain only ever grows.
func (c *CompoundFile) syncDirChain() error {
	perSector := c.header.DirEntriesPerSector()
	needed := (len(c.directory.DirEntries) + perSector - 1) / perSector

	chain, err := c.alloc.Chain(c.directory.DirStartSector)
	if err != nil {
		return err
	}
	if needed > len(chain) {
		start, err := c.alloc.Extend(c.directory.DirStartSector, needed-len(chain))
		if err != nil {
			return err
		}
		c.directory.DirStartSector = start
	}
	c.header.FirstDirSector = c.directory.DirStartSector
	c.header.NumDirSectors = uint32(needed)
	return nil
}

func (c *CompoundFile) writeFatSectors() error {
	perSector := c.header.FatEntriesPerSector()
	for blk, sectorId := range c.alloc.Difat {
		buf := make([]byte, c.sectors.SectorLen)
		for i := 0; i < perSector; i++ {
			value := FREE_SECTOR
			if idx := blk*perSector + i; idx < len(c.alloc.Fat) {
				value = c.alloc.Fat[idx]
			}
			binary.LittleEndian.PutUint32(buf[i*4:], value)
		}
		if err := c.sectors.WriteSector(sectorId, buf); err != nil {
			return err
		}
	}
	return nil
}

func (c *CompoundFile) writeDifatSectors() error {
	for i := range c.header.InitialDifatEntries {
		if i < len(c.alloc.Difat) {
			c.header.InitialDifatEntries[i] = c.alloc.Difat[i]
		} else {
			c.header.InitialDifatEntries[i] = FREE_SECTOR
		}
	}

	refsPerSector := c.header.FatEntriesPerSector() - 1
	for j, sectorId := range c.alloc.DifatSectorIds {
		buf := make([]byte, c.sectors.SectorLen)
		for i := 0; i < refsPerSector; i++ {
			value := FREE_SECTOR
			if idx := NUM_DIFAT_ENTRIES_IN_HEADER + j*refsPerSector + i; idx < len(c.alloc.Difat) {
				value = c.alloc.Difat[idx]
			}
			binary.LittleEndian.PutUint32(buf[i*4:], value)
		}
		next := END_OF_CHAIN
		if j+1 < len(c.alloc.DifatSectorIds) {
			next = c.alloc.DifatSectorIds[j+1]
		}
		binary.LittleEndian.PutUint32(buf[refsPerSector*4:], next)
		if err := c.sectors.WriteSector(sectorId, buf); err != nil {
			return err
		}
	}
	return nil
}

func (c *CompoundFile) writeMinifatSectors() error {
	chain, err := c.alloc.Chain(c.miniAlloc.MinifatStartSector)
	if err != nil {
		return err
	}
	perSector := c.header.FatEntriesPerSector()
	for blk, sectorId := range chain {
		buf := make([]byte, c.sectors.SectorLen)
		for i := 0; i < perSector; i++ {
			value := FREE_SECTOR
			if idx := blk*perSector + i; idx < len(c.miniAlloc.Minifat) {
				value = c.miniAlloc.Minifat[idx]
			}
			binary.LittleEndian.PutUint32(buf[i*4:], value)
		}
		if err := c.sectors.WriteSector(sectorId, buf); err != nil {
			return err
		}
	}
	return nil
}

func (c *CompoundFile) writeDirSectors() error {
	chain, err := c.alloc.Chain(c.directory.DirStartSector)
	if err != nil {
		return err
	}
	perSector := c.header.DirEntriesPerSector()
	for blk, sectorId := range chain {
		buf := make([]byte, c.sectors.SectorLen)
		for i := 0; i < perSector; i++ {
			idx := blk*perSector + i
			if idx >= len(c.directory.DirEntries) {
				break
			}
			encoded, err := EncodeDirEntry(c.directory.entry(uint32(idx)))
			if err != nil {
				return err
			}
			copy(buf[i*DIR_ENTRY_LEN:], encoded)
		}
		if err := c.sectors.WriteSector(sectorId, buf); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes buffered changes (for mutable modes) and releases the
// device. Every open stream handle becomes invalid.
func (c *CompoundFile) Close() error {
	if c.closed {
		return nil
	}
	var saveErr error
	if c.mode != ModeRead {
		saveErr = c.Save()
	}
	c.closed = true
	closeErr := c.device.Close()
	if saveErr != nil {
		return saveErr
	}
	return closeErr
}
