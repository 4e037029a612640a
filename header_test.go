package compoundfiles

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(V3)
	h.NumFatSectors = 1
	h.FirstDirSector = 0
	h.InitialDifatEntries[0] = 1

	sink := &CollectSink{}
	decoded, err := DecodeHeader(EncodeHeader(h), sink)
	require.NoError(t, err)
	require.Empty(t, sink.Warnings)
	require.Equal(t, h, decoded)
}

func TestHeaderRoundTripV4(t *testing.T) {
	h := NewHeader(V4)
	h.NumDirSectors = 2
	h.FirstDirSector = 3

	decoded, err := DecodeHeader(EncodeHeader(h), &CollectSink{})
	require.NoError(t, err)
	require.Equal(t, V4, decoded.Version)
	require.Equal(t, 4096, decoded.SectorLen())
	require.Equal(t, uint32(2), decoded.NumDirSectors)
}

func TestHeaderInvalidMagic(t *testing.T) {
	buf := EncodeHeader(NewHeader(V3))
	buf[0] = 0x42
	_, err := DecodeHeader(buf, nil)
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestHeaderInvalidBom(t *testing.T) {
	buf := EncodeHeader(NewHeader(V3))
	buf[28] = 0xff
	buf[29] = 0xfe
	_, err := DecodeHeader(buf, nil)
	require.ErrorIs(t, err, ErrInvalidBom)
}

func TestHeaderInvalidVersion(t *testing.T) {
	buf := EncodeHeader(NewHeader(V3))
	buf[26] = 7
	_, err := DecodeHeader(buf, nil)
	require.ErrorIs(t, err, ErrHeader)
}

func TestHeaderNonStandardCutoffHonored(t *testing.T) {
	h := NewHeader(V3)
	h.MiniStreamCutoff = 2048
	sink := &CollectSink{}

	decoded, err := DecodeHeader(EncodeHeader(h), sink)
	require.NoError(t, err)
	require.True(t, sink.Has(HeaderWarning))
	require.Equal(t, uint32(2048), decoded.MiniStreamCutoff)
}

func TestHeaderUnknownMinorVersion(t *testing.T) {
	h := NewHeader(V3)
	h.MinorVersion = 0x99
	sink := &CollectSink{}

	_, err := DecodeHeader(EncodeHeader(h), sink)
	require.NoError(t, err)
	require.True(t, sink.Has(VersionWarning))
}

func TestHeaderSectorShiftMismatchTrusted(t *testing.T) {
	h := NewHeader(V3)
	h.SectorShift = 12
	sink := &CollectSink{}

	decoded, err := DecodeHeader(EncodeHeader(h), sink)
	require.NoError(t, err)
	require.True(t, sink.Has(SectorSizeWarning))
	require.Equal(t, 4096, decoded.SectorLen())
}

func TestHeaderWarningEscalation(t *testing.T) {
	h := NewHeader(V3)
	h.MiniStreamCutoff = 2048
	sink := &EscalateSink{Codes: map[WarningCode]bool{HeaderWarning: true}}

	_, err := DecodeHeader(EncodeHeader(h), sink)
	require.ErrorIs(t, err, ErrorInvalidCFB)
}
