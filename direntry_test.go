package compoundfiles

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirEntryRoundTrip(t *testing.T) {
	entry := NewDirEntry("Payload", StreamType, 132235968000000000)
	entry.StartingSector = 7
	entry.StreamSize = 1234
	entry.StateBits = 5
	entry.CLSID = [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	buf, err := EncodeDirEntry(&entry)
	require.NoError(t, err)
	require.Len(t, buf, DIR_ENTRY_LEN)

	sink := &CollectSink{}
	decoded, err := DecodeDirEntry(buf, 1, V3, sink)
	require.NoError(t, err)
	require.Empty(t, sink.Warnings)
	require.Equal(t, entry, decoded)
}

func TestDirEntryFreeSlotRoundTrip(t *testing.T) {
	entry := DirEntry{
		LeftSibling:    NO_STREAM,
		RightSibling:   NO_STREAM,
		Child:          NO_STREAM,
		StartingSector: END_OF_CHAIN,
	}
	buf, err := EncodeDirEntry(&entry)
	require.NoError(t, err)

	sink := &CollectSink{}
	decoded, err := DecodeDirEntry(buf, 3, V3, sink)
	require.NoError(t, err)
	require.Empty(t, sink.Warnings)
	require.Equal(t, entry, decoded)
}

func TestDirEntryMissingNulTerminator(t *testing.T) {
	entry := NewDirEntry("0123456789012345678901234567890", StreamType, 0)
	buf, err := EncodeDirEntry(&entry)
	require.NoError(t, err)
	// 31 code units fill bytes 0..61; stomp the terminator area with
	// more name bytes.
	buf[62] = 'x'
	buf[63] = 0

	sink := &CollectSink{}
	_, err = DecodeDirEntry(buf, 1, V3, sink)
	require.NoError(t, err)
	require.True(t, sink.Has(DirNameWarning))
}

func TestDirEntryRootTypeForced(t *testing.T) {
	entry := NewDirEntry("Not A Root", Storage, 0)
	buf, err := EncodeDirEntry(&entry)
	require.NoError(t, err)

	sink := &CollectSink{}
	decoded, err := DecodeDirEntry(buf, ROOT_STREAM_ID, V3, sink)
	require.NoError(t, err)
	require.True(t, sink.Has(DirTypeWarning))
	require.Equal(t, Root, decoded.ObjType)
}

func TestDirEntryStreamChildCleared(t *testing.T) {
	entry := NewDirEntry("s", StreamType, 0)
	entry.Child = 5
	buf, err := EncodeDirEntry(&entry)
	require.NoError(t, err)

	sink := &CollectSink{}
	decoded, err := DecodeDirEntry(buf, 2, V3, sink)
	require.NoError(t, err)
	require.True(t, sink.Has(DirIndexWarning))
	require.Equal(t, NO_STREAM, decoded.Child)
}

func TestDirEntryV3HighSizeBitsMasked(t *testing.T) {
	entry := NewDirEntry("s", StreamType, 0)
	entry.StartingSector = 1
	entry.StreamSize = 100
	buf, err := EncodeDirEntry(&entry)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(buf[124:], 7)

	sink := &CollectSink{}
	decoded, err := DecodeDirEntry(buf, 1, V3, sink)
	require.NoError(t, err)
	require.True(t, sink.Has(DirSizeWarning))
	require.Equal(t, uint64(100), decoded.StreamSize)

	// Version 4 keeps the high word.
	sink = &CollectSink{}
	decoded, err = DecodeDirEntry(buf, 1, V4, sink)
	require.NoError(t, err)
	require.False(t, sink.Has(DirSizeWarning))
	require.Equal(t, uint64(7)<<32|100, decoded.StreamSize)
}

func TestDirEntryImplausibleTimestamp(t *testing.T) {
	entry := NewDirEntry("s", StreamType, 0)
	entry.ModifiedTime = 3
	buf, err := EncodeDirEntry(&entry)
	require.NoError(t, err)

	sink := &CollectSink{}
	_, err = DecodeDirEntry(buf, 1, V3, sink)
	require.NoError(t, err)
	require.True(t, sink.Has(DirTimeWarning))
}

func TestDirEntryNameTooLongToEncode(t *testing.T) {
	entry := NewDirEntry("01234567890123456789012345678901", StreamType, 0)
	_, err := EncodeDirEntry(&entry)
	require.ErrorIs(t, err, ErrDirEntry)
}

func TestFiletimeRoundTrip(t *testing.T) {
	ticks := uint64(132235968000000000)
	require.Equal(t, ticks, TicksFromTime(TimeFromTicks(ticks)))
	require.True(t, TimeFromTicks(0).IsZero())
	require.Equal(t, uint64(0), TicksFromTime(TimeFromTicks(0)))
}
