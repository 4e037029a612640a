package compoundfiles

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDeviceGrowAndTruncate(t *testing.T) {
	d := NewMemDevice(nil)

	n, err := d.WriteAt([]byte("abc"), 5)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	size, err := d.Size()
	require.NoError(t, err)
	require.Equal(t, int64(8), size)

	buf := make([]byte, 8)
	_, err = d.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("\x00\x00\x00\x00\x00abc"), buf)

	_, err = d.ReadAt(make([]byte, 4), 6)
	require.ErrorIs(t, err, io.EOF)

	require.NoError(t, d.Truncate(2))
	size, err = d.Size()
	require.NoError(t, err)
	require.Equal(t, int64(2), size)
}

func TestSectorsReadPastEndZeroFillsWithWarning(t *testing.T) {
	// A device holding the header plus half a sector.
	device := NewMemDevice(make([]byte, HEADER_LEN+256))
	for i := 0; i < 256; i++ {
		device.buf[HEADER_LEN+i] = 0xaa
	}

	sink := &CollectSink{}
	sectors := NewSectors(512, int64(HEADER_LEN+256), device, sink)
	require.Equal(t, uint32(1), sectors.NumSectors)

	buf, err := sectors.ReadSector(0)
	require.NoError(t, err)
	require.True(t, sink.Has(TruncatedWarning))
	require.Equal(t, byte(0xaa), buf[255])
	require.Equal(t, byte(0), buf[256])
	require.Equal(t, byte(0), buf[511])
}

func TestSectorsWritesAreBufferedUntilFlush(t *testing.T) {
	device := NewMemDevice(make([]byte, HEADER_LEN+512))
	sectors := NewSectors(512, int64(HEADER_LEN+512), device, nil)

	payload := make([]byte, 512)
	payload[0] = 0x42
	require.NoError(t, sectors.WriteSector(0, payload))

	// Nothing reaches the device before Flush.
	require.Equal(t, byte(0), device.buf[HEADER_LEN])
	require.NoError(t, sectors.Flush())
	require.Equal(t, byte(0x42), device.buf[HEADER_LEN])
}

func TestSectorsAppendGrowsExtent(t *testing.T) {
	device := NewMemDevice(nil)
	sectors := NewSectors(512, 0, device, nil)

	id := sectors.AppendSector()
	require.Equal(t, uint32(0), id)
	require.Equal(t, uint32(1), sectors.NumSectors)
	require.NoError(t, sectors.WriteSectorRange(id, 10, []byte{1, 2, 3}))

	buf, err := sectors.ReadSector(id)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, buf[10:13])

	_, err = sectors.ReadSector(5)
	require.Error(t, err)
}

func TestSectorOffset(t *testing.T) {
	sectors := NewSectors(512, 0, NewMemDevice(nil), nil)
	require.Equal(t, int64(512), sectors.SectorOffset(0))
	require.Equal(t, int64(512+3*512), sectors.SectorOffset(3))

	big := NewSectors(4096, 0, NewMemDevice(nil), nil)
	require.Equal(t, int64(512+2*4096), big.SectorOffset(2))
}
