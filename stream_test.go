package compoundfiles

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func createStreamEntry(t *testing.T, c *CompoundFile, name string, data []byte) *Entry {
	t.Helper()
	entry, err := c.CreateStream(c.Root(), name, data)
	require.NoError(t, err)
	return entry
}

func readAll(t *testing.T, c *CompoundFile, path string) []byte {
	t.Helper()
	stream, err := c.OpenPath(path)
	require.NoError(t, err)
	defer stream.Close()

	size, err := stream.Len()
	require.NoError(t, err)
	buf := make([]byte, size)
	if size == 0 {
		return buf
	}
	_, err = io.ReadFull(stream, buf)
	require.NoError(t, err)
	return buf
}

func TestStreamSmallLivesInMiniPool(t *testing.T) {
	c := newTestContainer(t)
	entry := createStreamEntry(t, c, "small", []byte("hello"))

	dirEntry := c.directory.entry(entry.DirId)
	require.Equal(t, uint64(5), dirEntry.StreamSize)

	// The chain is in the mini pool.
	chain, err := c.miniAlloc.Chain(dirEntry.StartingSector)
	require.NoError(t, err)
	require.Len(t, chain, 1)

	require.Equal(t, []byte("hello"), readAll(t, c, "/small"))
}

func TestStreamLargeLivesInNormalPool(t *testing.T) {
	c := newTestContainer(t)
	data := bytes.Repeat([]byte{0xab}, 5000)
	entry := createStreamEntry(t, c, "big", data)

	dirEntry := c.directory.entry(entry.DirId)
	require.Equal(t, uint64(5000), dirEntry.StreamSize)
	require.GreaterOrEqual(t, dirEntry.StreamSize, uint64(4096))
	require.Less(t, dirEntry.StreamSize, uint64(8192))

	sectorLen := uint64(c.sectors.SectorLen)
	wantSectors := int((dirEntry.StreamSize + sectorLen - 1) / sectorLen)
	chain, err := c.alloc.Chain(dirEntry.StartingSector)
	require.NoError(t, err)
	require.Len(t, chain, wantSectors)

	require.Equal(t, data, readAll(t, c, "/big"))
}

func TestStreamZeroSizeUsesEndOfChain(t *testing.T) {
	c := newTestContainer(t)
	entry := createStreamEntry(t, c, "empty", nil)

	dirEntry := c.directory.entry(entry.DirId)
	require.Equal(t, uint64(0), dirEntry.StreamSize)
	require.Equal(t, END_OF_CHAIN, dirEntry.StartingSector)
	require.Empty(t, readAll(t, c, "/empty"))
}

func TestStreamCrossCutoffMigratesOnce(t *testing.T) {
	c := newTestContainer(t)
	entry := createStreamEntry(t, c, "grower", bytes.Repeat([]byte{1}, 4000))

	dirEntry := c.directory.entry(entry.DirId)
	miniChain, err := c.miniAlloc.Chain(dirEntry.StartingSector)
	require.NoError(t, err)
	require.NotEmpty(t, miniChain)

	// One write carries the stream across the cutoff: the chain must
	// move to the normal pool, the old mini chain must be freed.
	stream, err := c.OpenPath("/grower")
	require.NoError(t, err)
	_, err = stream.Seek(4000, io.SeekStart)
	require.NoError(t, err)
	_, err = stream.Write(bytes.Repeat([]byte{2}, 200))
	require.NoError(t, err)

	require.Equal(t, uint64(4200), dirEntry.StreamSize)
	for _, id := range miniChain {
		require.Equal(t, FREE_SECTOR, c.miniAlloc.Minifat[id])
	}
	_, err = c.alloc.Chain(dirEntry.StartingSector)
	require.NoError(t, err)

	want := append(bytes.Repeat([]byte{1}, 4000), bytes.Repeat([]byte{2}, 200)...)
	require.Equal(t, want, readAll(t, c, "/grower"))
}

func TestStreamTruncateBelowCutoffMigratesBack(t *testing.T) {
	c := newTestContainer(t)
	data := bytes.Repeat([]byte{7}, 5000)
	createStreamEntry(t, c, "shrinker", data)

	stream, err := c.OpenPath("/shrinker")
	require.NoError(t, err)
	require.NoError(t, stream.SetLength(100))

	dirEntry := c.directory.entry(stream.dirId)
	require.Equal(t, uint64(100), dirEntry.StreamSize)
	chain, err := c.miniAlloc.Chain(dirEntry.StartingSector)
	require.NoError(t, err)
	require.Len(t, chain, 2)

	require.Equal(t, data[:100], readAll(t, c, "/shrinker"))
}

func TestStreamSetLengthZeroFreesChain(t *testing.T) {
	c := newTestContainer(t)
	createStreamEntry(t, c, "gone", []byte("some bytes"))

	stream, err := c.OpenPath("/gone")
	require.NoError(t, err)
	require.NoError(t, stream.SetLength(0))

	dirEntry := c.directory.entry(stream.dirId)
	require.Equal(t, uint64(0), dirEntry.StreamSize)
	require.Equal(t, END_OF_CHAIN, dirEntry.StartingSector)
}

func TestStreamWritePastEndZeroFillsGap(t *testing.T) {
	c := newTestContainer(t)
	createStreamEntry(t, c, "gap", []byte("abc"))

	stream, err := c.OpenPath("/gap")
	require.NoError(t, err)
	_, err = stream.Seek(10, io.SeekStart)
	require.NoError(t, err)
	_, err = stream.Write([]byte("xyz"))
	require.NoError(t, err)

	got := readAll(t, c, "/gap")
	require.Equal(t, append([]byte("abc\x00\x00\x00\x00\x00\x00\x00"), []byte("xyz")...), got)
}

func TestStreamReadPastEndSignalsEOF(t *testing.T) {
	c := newTestContainer(t)
	createStreamEntry(t, c, "short", []byte("hi"))

	stream, err := c.OpenPath("/short")
	require.NoError(t, err)
	buf := make([]byte, 10)
	n, err := stream.Read(buf)
	require.Equal(t, 2, n)
	require.ErrorIs(t, err, io.EOF)

	n, err = stream.Read(buf)
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamSeekWhence(t *testing.T) {
	c := newTestContainer(t)
	createStreamEntry(t, c, "seeker", []byte("0123456789"))

	stream, err := c.OpenPath("/seeker")
	require.NoError(t, err)

	pos, err := stream.Seek(4, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(4), pos)

	pos, err = stream.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, int64(6), pos)

	pos, err = stream.Seek(-1, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(9), pos)

	buf := make([]byte, 1)
	_, err = stream.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte("9"), buf)

	_, err = stream.Seek(-100, io.SeekStart)
	require.Error(t, err)
}

func TestStreamWriteRejectedOnReader(t *testing.T) {
	device := NewMemDevice(nil)
	c, err := CreateWriter(device, nil)
	require.NoError(t, err)
	createStreamEntry(t, c, "ro", []byte("data"))
	require.NoError(t, c.Save())

	reader, err := OpenReader(device, nil)
	require.NoError(t, err)
	stream, err := reader.OpenPath("/ro")
	require.NoError(t, err)

	_, err = stream.Write([]byte("nope"))
	require.ErrorIs(t, err, ErrReadOnly)
	require.ErrorIs(t, stream.SetLength(0), ErrReadOnly)
}
