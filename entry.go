package compoundfiles

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a point-in-time view of one storage or stream, addressed by
// DirId. It never owns container state; navigation goes back through the
// container.
type Entry struct {
	file *CompoundFile

	DirId        uint32
	Name         string
	Path         string
	ObjType      ObjectType
	CLSID        uuid.UUID
	StateBits    uint32
	CreationTime time.Time
	ModifiedTime time.Time
	StreamLen    uint64
}

func newEntry(c *CompoundFile, dirId uint32, path string) *Entry {
	dirEntry := c.directory.entry(dirId)
	clsid, err := uuid.FromBytes(dirEntry.CLSID[:])
	if err != nil {
		clsid = uuid.UUID{}
	}
	return &Entry{
		file:         c,
		DirId:        dirId,
		Name:         dirEntry.Name,
		Path:         path,
		ObjType:      dirEntry.ObjType,
		CLSID:        clsid,
		StateBits:    dirEntry.StateBits,
		CreationTime: TimeFromTicks(dirEntry.CreationTime),
		ModifiedTime: TimeFromTicks(dirEntry.ModifiedTime),
		StreamLen:    dirEntry.StreamSize,
	}
}

func (e *Entry) IsStream() bool {
	return e.ObjType == StreamType
}

func (e *Entry) IsStorage() bool {
	return e.ObjType == Storage || e.ObjType == Root
}

func (e *Entry) childPath(name string) string {
	if e.Path == "/" {
		return "/" + name
	}
	return e.Path + "/" + name
}

// Children returns the storage's direct children in tree order.
func (e *Entry) Children() ([]*Entry, error) {
	if err := e.file.ensureOpen(); err != nil {
		return nil, err
	}
	if !e.IsStorage() {
		return nil, ErrNotStorage
	}
	ids := e.file.directory.InOrder(e.DirId)
	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		child := e.file.directory.entry(id)
		out = append(out, newEntry(e.file, id, e.childPath(child.Name)))
	}
	return out, nil
}

// Lookup finds a direct child by name.
func (e *Entry) Lookup(name string) (*Entry, error) {
	if err := e.file.ensureOpen(); err != nil {
		return nil, err
	}
	if !e.IsStorage() {
		return nil, ErrNotStorage
	}
	id, err := e.file.directory.Lookup(e.DirId, name)
	if err != nil {
		return nil, err
	}
	return newEntry(e.file, id, e.childPath(e.file.directory.entry(id).Name)), nil
}

// Walk visits every entry below this one, parents before children.
func (e *Entry) Walk(fn func(*Entry) error) error {
	children, err := e.Children()
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := fn(child); err != nil {
			return err
		}
		if child.IsStorage() {
			if err := child.Walk(fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Open opens this entry's stream for reading and (in a mutable
// container) writing.
func (e *Entry) Open() (*Stream, error) {
	if err := e.file.ensureOpen(); err != nil {
		return nil, err
	}
	if !e.IsStream() {
		return nil, ErrNotStream
	}
	return &Stream{file: e.file, dirId: e.DirId}, nil
}
