package compoundfiles

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

var (
	utf16leCodec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// DirEntry is the in-memory form of one 128-byte directory entry.
// Sibling and child edges are DirId values into the directory's entry
// vector, never object references.
type DirEntry struct {
	Name         string
	ObjType      ObjectType
	Color        Color
	LeftSibling  uint32
	RightSibling uint32
	Child        uint32
	CLSID        [16]byte
	StateBits    uint32
	CreationTime uint64
	ModifiedTime uint64

	// StartingSector names the first sector of the entry's stream; for
	// the root entry it names the mini-stream. Interpreted against the
	// mini pool when StreamSize is below the cutoff.
	StartingSector uint32
	StreamSize     uint64
}

// NewDirEntry returns a blank entry of the given type with all edges set
// to NO_STREAM, the way a freshly inserted node starts out.
func NewDirEntry(name string, objType ObjectType, timestamp uint64) DirEntry {
	entry := DirEntry{
		Name:         name,
		ObjType:      objType,
		Color:        Black,
		LeftSibling:  NO_STREAM,
		RightSibling: NO_STREAM,
		Child:        NO_STREAM,
		CreationTime: timestamp,
		ModifiedTime: timestamp,
	}
	if objType == Storage {
		entry.StartingSector = 0
	} else {
		entry.StartingSector = END_OF_CHAIN
	}
	return entry
}

func (e *DirEntry) IsAllocated() bool {
	return e.ObjType != Unallocated
}

// DecodeDirEntry parses one 128-byte entry. index is the entry's DirId;
// index 0 is the root and is normalized to the root type. Non-conforming
// values are reported to the sink and substituted so that processing can
// continue on real-world files.
func DecodeDirEntry(buf []byte, index uint32, version Version, sink Sink) (DirEntry, error) {
	var e DirEntry
	if len(buf) < DIR_ENTRY_LEN {
		return e, fmt.Errorf("directory entry is %v bytes, expected %v: %w", len(buf), DIR_ENTRY_LEN, ErrDirEntry)
	}

	nameLen := binary.LittleEndian.Uint16(buf[64:])
	decoded, err := utf16leCodec.NewDecoder().Bytes(buf[0:64])
	if err != nil {
		return e, fmt.Errorf("entry %v name: %w", index, ErrDirEntry)
	}
	name := string(decoded)
	if i := strings.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	} else {
		if werr := warnf(sink, DirNameWarning, "entry %v: missing NUL terminator in name", index); werr != nil {
			return e, werr
		}
		if nameLen >= 2 && int(nameLen/2)-1 <= len(name) {
			name = name[:nameLen/2-1]
		}
	}
	e.Name = name

	objType, knownType := ObjectFromByte(buf[66])
	if index == ROOT_STREAM_ID {
		if objType != Root {
			if werr := warnf(sink, DirTypeWarning, "root entry has type %v", buf[66]); werr != nil {
				return e, werr
			}
		}
		objType = Root
	} else if !knownType || objType == Root {
		if werr := warnf(sink, DirTypeWarning, "entry %v has invalid type %v", index, buf[66]); werr != nil {
			return e, werr
		}
		objType = Unallocated
	}
	e.ObjType = objType

	color, knownColor := ColorFromByte(buf[67])
	if !knownColor {
		if werr := warnf(sink, DirEntryWarning, "entry %v has invalid color %v", index, buf[67]); werr != nil {
			return e, werr
		}
	}
	e.Color = color

	e.LeftSibling = binary.LittleEndian.Uint32(buf[68:])
	e.RightSibling = binary.LittleEndian.Uint32(buf[72:])
	e.Child = binary.LittleEndian.Uint32(buf[76:])
	copy(e.CLSID[:], buf[80:96])
	e.StateBits = binary.LittleEndian.Uint32(buf[96:])
	e.CreationTime = binary.LittleEndian.Uint64(buf[100:])
	e.ModifiedTime = binary.LittleEndian.Uint64(buf[108:])
	e.StartingSector = binary.LittleEndian.Uint32(buf[116:])
	sizeLow := binary.LittleEndian.Uint32(buf[120:])
	sizeHigh := binary.LittleEndian.Uint32(buf[124:])

	if e.ObjType == Unallocated {
		if e.Name != "" {
			if werr := warnf(sink, DirNameWarning, "entry %v: free entry with non-empty name", index); werr != nil {
				return e, werr
			}
			e.Name = ""
		}
		e.CLSID = [16]byte{}
		e.StateBits = 0
		e.CreationTime = 0
		e.ModifiedTime = 0
	} else if nameLen != uint16((len(name)+1)*2) {
		if werr := warnf(sink, DirNameWarning, "entry %v: invalid name length %v", index, nameLen); werr != nil {
			return e, werr
		}
	}

	if e.ObjType == Root || e.ObjType == Unallocated {
		if e.LeftSibling != NO_STREAM || e.RightSibling != NO_STREAM {
			if werr := warnf(sink, DirIndexWarning, "entry %v: invalid sibling on %v entry", index, e.ObjType); werr != nil {
				return e, werr
			}
			e.LeftSibling = NO_STREAM
			e.RightSibling = NO_STREAM
		}
	}
	if e.ObjType == StreamType || e.ObjType == Unallocated {
		if e.Child != NO_STREAM {
			if werr := warnf(sink, DirIndexWarning, "entry %v: invalid child on %v entry", index, e.ObjType); werr != nil {
				return e, werr
			}
			e.Child = NO_STREAM
		}
	}

	if e.ObjType == Storage || e.ObjType == Unallocated {
		if e.StartingSector != 0 && e.StartingSector != END_OF_CHAIN {
			if werr := warnf(sink, DirSectorWarning, "entry %v: non-zero start sector %v on %v entry",
				index, e.StartingSector, e.ObjType); werr != nil {
				return e, werr
			}
		}
		if sizeLow != 0 || sizeHigh != 0 {
			if werr := warnf(sink, DirSizeWarning, "entry %v: non-zero size on %v entry", index, e.ObjType); werr != nil {
				return e, werr
			}
		}
		e.StartingSector = END_OF_CHAIN
		if e.ObjType == Storage {
			e.StartingSector = 0
		}
		sizeLow = 0
		sizeHigh = 0
	}

	if version == V3 && sizeHigh != 0 {
		// Version 3 sizes are 32-bit; the high word is noise.
		if werr := warnf(sink, DirSizeWarning, "entry %v: non-zero size high bits %v in version 3 file",
			index, sizeHigh); werr != nil {
			return e, werr
		}
		sizeHigh = 0
	}
	e.StreamSize = uint64(sizeHigh)<<32 | uint64(sizeLow)

	if !plausibleTicks(e.CreationTime) {
		if werr := warnf(sink, DirTimeWarning, "entry %v: implausible creation timestamp %v", index, e.CreationTime); werr != nil {
			return e, werr
		}
	}
	if !plausibleTicks(e.ModifiedTime) {
		if werr := warnf(sink, DirTimeWarning, "entry %v: implausible modification timestamp %v", index, e.ModifiedTime); werr != nil {
			return e, werr
		}
	}

	return e, nil
}

// EncodeDirEntry serializes one entry into a fresh 128-byte buffer.
func EncodeDirEntry(e *DirEntry) ([]byte, error) {
	buf := make([]byte, DIR_ENTRY_LEN)

	if e.IsAllocated() {
		encoded, err := utf16leCodec.NewEncoder().Bytes([]byte(e.Name))
		if err != nil {
			return nil, fmt.Errorf("encoding name %q: %w", e.Name, ErrDirEntry)
		}
		if len(encoded) > 62 {
			return nil, fmt.Errorf("name %q exceeds 31 UTF-16 code units: %w", e.Name, ErrDirEntry)
		}
		copy(buf[0:], encoded)
		binary.LittleEndian.PutUint16(buf[64:], uint16(len(encoded)+2))
	}

	buf[66] = e.ObjType.AsByte()
	buf[67] = e.Color.AsByte()
	binary.LittleEndian.PutUint32(buf[68:], e.LeftSibling)
	binary.LittleEndian.PutUint32(buf[72:], e.RightSibling)
	binary.LittleEndian.PutUint32(buf[76:], e.Child)
	copy(buf[80:96], e.CLSID[:])
	binary.LittleEndian.PutUint32(buf[96:], e.StateBits)
	binary.LittleEndian.PutUint64(buf[100:], e.CreationTime)
	binary.LittleEndian.PutUint64(buf[108:], e.ModifiedTime)
	binary.LittleEndian.PutUint32(buf[116:], e.StartingSector)
	binary.LittleEndian.PutUint32(buf[120:], uint32(e.StreamSize))
	binary.LittleEndian.PutUint32(buf[124:], uint32(e.StreamSize>>32))

	return buf, nil
}
