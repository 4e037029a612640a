package compoundfiles

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Header is the decoded 512-byte file header. SectorShift is the value
// actually found on disk: when it disagrees with the version's standard
// exponent the decoder emits a warning and trusts the exponent, so all
// offset math must go through SectorLen, not Version.SectorLen.
type Header struct {
	Version      Version
	MinorVersion uint16
	SectorShift  uint16

	NumDirSectors      uint32
	NumFatSectors      uint32
	FirstDirSector     uint32
	TransactionSign    uint32
	MiniStreamCutoff   uint32
	FirstMinifatSector uint32
	NumMinifatSectors  uint32
	FirstDifatSector   uint32
	NumDifatSectors    uint32

	InitialDifatEntries [NUM_DIFAT_ENTRIES_IN_HEADER]uint32
}

// rawHeader mirrors the fixed on-disk layout of the first 76 bytes.
type rawHeader struct {
	Magic              [8]byte
	CLSID              [16]byte
	MinorVersion       uint16
	MajorVersion       uint16
	ByteOrderMark      uint16
	SectorShift        uint16
	MiniSectorShift    uint16
	Reserved           [6]byte
	NumDirSectors      uint32
	NumFatSectors      uint32
	FirstDirSector     uint32
	TransactionSign    uint32
	MiniStreamCutoff   uint32
	FirstMinifatSector uint32
	NumMinifatSectors  uint32
	FirstDifatSector   uint32
	NumDifatSectors    uint32
}

// NewHeader returns the header of a freshly created container.
func NewHeader(version Version) *Header {
	h := &Header{
		Version:            version,
		MinorVersion:       MINOR_VERSION,
		SectorShift:        version.SectorShift(),
		FirstDirSector:     END_OF_CHAIN,
		MiniStreamCutoff:   MINI_STREAM_CUTOFF,
		FirstMinifatSector: END_OF_CHAIN,
		FirstDifatSector:   END_OF_CHAIN,
	}
	for i := range h.InitialDifatEntries {
		h.InitialDifatEntries[i] = FREE_SECTOR
	}
	return h
}

// SectorLen is the effective sector length, derived from the on-disk
// exponent rather than the version.
func (h *Header) SectorLen() int {
	return 1 << h.SectorShift
}

func (h *Header) FatEntriesPerSector() int {
	return h.SectorLen() / 4
}

func (h *Header) DirEntriesPerSector() int {
	return h.SectorLen() / DIR_ENTRY_LEN
}

// DecodeHeader parses and validates the 512-byte header. Structural
// impossibilities (bad magic, byte order, version) are fatal; other
// non-conforming values are reported to the sink and substituted.
func DecodeHeader(buf []byte, sink Sink) (*Header, error) {
	if len(buf) < HEADER_LEN {
		return nil, fmt.Errorf("header is %v bytes, expected %v: %w", len(buf), HEADER_LEN, ErrHeader)
	}

	var raw rawHeader
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	if !bytes.Equal(raw.Magic[:], MAGIC_NUMBER) {
		return nil, fmt.Errorf("magic number %x: %w", raw.Magic[:], ErrInvalidMagic)
	}
	if raw.ByteOrderMark != BYTE_ORDER_MARK {
		return nil, fmt.Errorf("byte order mark 0x%04x (expected 0x%04x): %w",
			raw.ByteOrderMark, BYTE_ORDER_MARK, ErrInvalidBom)
	}
	version, err := VersionNumber(raw.MajorVersion)
	if err != nil {
		return nil, err
	}

	if raw.SectorShift != version.SectorShift() {
		if err := warnf(sink, SectorSizeWarning,
			"sector shift %v for version %v (expected %v); trusting the shift",
			raw.SectorShift, version, version.SectorShift()); err != nil {
			return nil, err
		}
	}
	if raw.MiniSectorShift != MINI_SECTOR_SHIFT {
		if err := warnf(sink, HeaderWarning,
			"mini sector shift %v (expected %v)", raw.MiniSectorShift, MINI_SECTOR_SHIFT); err != nil {
			return nil, err
		}
	}
	if raw.MiniStreamCutoff != MINI_STREAM_CUTOFF {
		// The header value is honored as the effective cutoff.
		if err := warnf(sink, HeaderWarning,
			"mini stream cutoff %v (standard value %v)", raw.MiniStreamCutoff, MINI_STREAM_CUTOFF); err != nil {
			return nil, err
		}
	}
	if raw.CLSID != ([16]byte{}) {
		if err := warnf(sink, HeaderWarning, "non-zero header CLSID"); err != nil {
			return nil, err
		}
	}
	if raw.Reserved != ([6]byte{}) {
		if err := warnf(sink, HeaderWarning, "non-zero reserved bytes"); err != nil {
			return nil, err
		}
	}
	if raw.MinorVersion != MINOR_VERSION {
		if err := warnf(sink, VersionWarning, "unknown minor version 0x%x", raw.MinorVersion); err != nil {
			return nil, err
		}
	}

	h := &Header{
		Version:            version,
		MinorVersion:       raw.MinorVersion,
		SectorShift:        raw.SectorShift,
		NumDirSectors:      raw.NumDirSectors,
		NumFatSectors:      raw.NumFatSectors,
		FirstDirSector:     raw.FirstDirSector,
		TransactionSign:    raw.TransactionSign,
		MiniStreamCutoff:   raw.MiniStreamCutoff,
		FirstMinifatSector: raw.FirstMinifatSector,
		NumMinifatSectors:  raw.NumMinifatSectors,
		FirstDifatSector:   raw.FirstDifatSector,
		NumDifatSectors:    raw.NumDifatSectors,
	}

	// Some implementations use FREE_SECTOR to mean "no chain".
	if h.FirstDifatSector == FREE_SECTOR {
		h.FirstDifatSector = END_OF_CHAIN
	}
	if h.FirstMinifatSector == FREE_SECTOR {
		h.FirstMinifatSector = END_OF_CHAIN
	}

	for i := 0; i < NUM_DIFAT_ENTRIES_IN_HEADER; i++ {
		h.InitialDifatEntries[i] = binary.LittleEndian.Uint32(buf[76+i*4:])
	}

	return h, nil
}

// EncodeHeader serializes the header into a fresh 512-byte buffer.
func EncodeHeader(h *Header) []byte {
	numDirSectors := h.NumDirSectors
	if h.Version == V3 {
		// Version 3 writers must leave the directory sector count zero.
		numDirSectors = 0
	}

	raw := rawHeader{
		MinorVersion:       h.MinorVersion,
		MajorVersion:       uint16(h.Version),
		ByteOrderMark:      BYTE_ORDER_MARK,
		SectorShift:        h.SectorShift,
		MiniSectorShift:    MINI_SECTOR_SHIFT,
		NumDirSectors:      numDirSectors,
		NumFatSectors:      h.NumFatSectors,
		FirstDirSector:     h.FirstDirSector,
		TransactionSign:    h.TransactionSign,
		MiniStreamCutoff:   h.MiniStreamCutoff,
		FirstMinifatSector: h.FirstMinifatSector,
		NumMinifatSectors:  h.NumMinifatSectors,
		FirstDifatSector:   h.FirstDifatSector,
		NumDifatSectors:    h.NumDifatSectors,
	}
	copy(raw.Magic[:], MAGIC_NUMBER)

	buf := bytes.NewBuffer(make([]byte, 0, HEADER_LEN))
	binary.Write(buf, binary.LittleEndian, &raw)
	for _, entry := range h.InitialDifatEntries {
		binary.Write(buf, binary.LittleEndian, entry)
	}
	out := buf.Bytes()
	if len(out) < HEADER_LEN {
		out = append(out, make([]byte, HEADER_LEN-len(out))...)
	}
	return out
}
