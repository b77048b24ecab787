package jpegmeta

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appSegment(marker byte, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0xFF)
	buf.WriteByte(marker)
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(body)+2))
	buf.Write(l[:])
	buf.Write(body)
	return buf.Bytes()
}

func iccBody(index, count byte, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("ICC_PROFILE\x00")
	buf.WriteByte(index)
	buf.WriteByte(count)
	buf.Write(payload)
	return buf.Bytes()
}

func minimalJPEG(segments ...[]byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8})
	for _, s := range segments {
		buf.Write(s)
	}
	return buf.Bytes()
}

func TestExtractNoAppSegments(t *testing.T) {
	data := minimalJPEG()
	r := extract(bufio.NewReader(bytes.NewReader(data)))
	assert.True(t, r.Ok)
	assert.Empty(t, r.Profile)
	assert.EqualValues(t, ColorSpaceNotFound, r.ColorSpace)
}

func TestExtractSingleChunkICC(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 100)
	seg := appSegment(0xE2, iccBody(1, 1, payload))
	data := minimalJPEG(seg)
	r := extract(bufio.NewReader(bytes.NewReader(data)))
	require.True(t, r.Ok)
	assert.Equal(t, payload, r.Profile)
}

func TestExtractMultiChunkICCReassemblesInEncounterOrder(t *testing.T) {
	p1 := bytes.Repeat([]byte{0x01}, 30)
	p2 := bytes.Repeat([]byte{0x02}, 30)
	segs := minimalJPEG(
		appSegment(0xE2, iccBody(1, 2, p1)),
		appSegment(0xE2, iccBody(2, 2, p2)),
	)
	r := extract(bufio.NewReader(bytes.NewReader(segs)))
	require.True(t, r.Ok)
	assert.Equal(t, append(append([]byte{}, p1...), p2...), r.Profile)
}

// buildExifLE hand-assembles a minimal little-endian TIFF blob with
// IFD0 {WhitePoint, PrimaryChromaticities, ExifIFD pointer} and an Exif
// sub-IFD with just ColorSpace, laying out data right after each IFD.
func buildExifLE(colorSpace uint16, whitePoint, primaryChroma []uint32) []byte {
	const ifd0EntryCount = 3
	const exifEntryCount = 1

	ifd0Off := uint32(8)
	ifd0Size := uint32(2 + ifd0EntryCount*12 + 4) // count + entries + next-ifd ptr
	wpOff := ifd0Off + ifd0Size
	wpSize := uint32(len(whitePoint) / 2 * 8)
	pcOff := wpOff + wpSize
	pcSize := uint32(len(primaryChroma) / 2 * 8)
	exifIFDOff := pcOff + pcSize

	var tiff bytes.Buffer
	tiff.WriteString("II")
	binary.Write(&tiff, binary.LittleEndian, uint16(42))
	binary.Write(&tiff, binary.LittleEndian, ifd0Off)

	for tiff.Len() < int(ifd0Off) {
		tiff.WriteByte(0)
	}
	binary.Write(&tiff, binary.LittleEndian, uint16(ifd0EntryCount))
	writeEntry := func(tag, typ uint16, count, value uint32) {
		binary.Write(&tiff, binary.LittleEndian, tag)
		binary.Write(&tiff, binary.LittleEndian, typ)
		binary.Write(&tiff, binary.LittleEndian, count)
		binary.Write(&tiff, binary.LittleEndian, value)
	}
	writeEntry(tagWhitePoint, 5, uint32(len(whitePoint)/2), wpOff)
	writeEntry(tagPrimaryChroma, 5, uint32(len(primaryChroma)/2), pcOff)
	writeEntry(tagExifIFDPointer, 4, 1, exifIFDOff)
	binary.Write(&tiff, binary.LittleEndian, uint32(0)) // next IFD

	for _, v := range whitePoint {
		binary.Write(&tiff, binary.LittleEndian, v)
	}
	for _, v := range primaryChroma {
		binary.Write(&tiff, binary.LittleEndian, v)
	}

	binary.Write(&tiff, binary.LittleEndian, uint16(exifEntryCount))
	// ColorSpace SHORT, inline value in the low 2 bytes of the value field.
	binary.Write(&tiff, binary.LittleEndian, uint16(tagColorSpace))
	binary.Write(&tiff, binary.LittleEndian, uint16(3))
	binary.Write(&tiff, binary.LittleEndian, uint32(1))
	binary.Write(&tiff, binary.LittleEndian, colorSpace)
	binary.Write(&tiff, binary.LittleEndian, uint16(0)) // pad value field to 4 bytes
	binary.Write(&tiff, binary.LittleEndian, uint32(0)) // next IFD

	return append([]byte("Exif\x00\x00"), tiff.Bytes()...)
}

func TestExtractExifSRGB(t *testing.T) {
	body := buildExifLE(ColorSpaceSRGB, []uint32{1, 1, 1, 1}, []uint32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1})
	seg := appSegment(0xE1, body)
	r := extract(bufio.NewReader(bytes.NewReader(minimalJPEG(seg))))
	require.True(t, r.Ok)
	assert.EqualValues(t, ColorSpaceSRGB, r.ColorSpace)
}

func TestExtractExifAdobeRGBHeuristic(t *testing.T) {
	wp := []uint32{313, 1000, 329, 1000}
	pc := []uint32{64, 100, 33, 100, 21, 100, 71, 100, 15, 100, 6, 100}
	body := buildExifLE(ColorSpaceUncalibrated, wp, pc)
	seg := appSegment(0xE1, body)
	r := extract(bufio.NewReader(bytes.NewReader(minimalJPEG(seg))))
	require.True(t, r.Ok)
	assert.EqualValues(t, ColorSpaceAdobeRGB, r.ColorSpace)
}

func TestExtractExifUncalibratedWithoutMatchStaysUncalibrated(t *testing.T) {
	wp := []uint32{1, 1, 1, 1}
	pc := []uint32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	body := buildExifLE(ColorSpaceUncalibrated, wp, pc)
	seg := appSegment(0xE1, body)
	r := extract(bufio.NewReader(bytes.NewReader(minimalJPEG(seg))))
	require.True(t, r.Ok)
	assert.EqualValues(t, ColorSpaceUncalibrated, r.ColorSpace)
}

func TestExtractMissingExifSubIFDStaysNotFound(t *testing.T) {
	// IFD0 with no Exif pointer at all: build by hand with zero entries.
	var tiff bytes.Buffer
	tiff.WriteString("II")
	binary.Write(&tiff, binary.LittleEndian, uint16(42))
	binary.Write(&tiff, binary.LittleEndian, uint32(8))
	binary.Write(&tiff, binary.LittleEndian, uint16(0)) // zero entries
	binary.Write(&tiff, binary.LittleEndian, uint32(0)) // next ifd
	body := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	seg := appSegment(0xE1, body)
	r := extract(bufio.NewReader(bytes.NewReader(minimalJPEG(seg))))
	require.True(t, r.Ok)
	assert.EqualValues(t, ColorSpaceNotFound, r.ColorSpace)
}

func TestExtractBigEndianHeader(t *testing.T) {
	// A big-endian ("MM") TIFF header with an empty IFD0: exercises the
	// byte-order switch once; with no Exif pointer the code stays not-found.
	var tiff bytes.Buffer
	tiff.WriteString("MM")
	binary.Write(&tiff, binary.BigEndian, uint16(42))
	binary.Write(&tiff, binary.BigEndian, uint32(8))
	binary.Write(&tiff, binary.BigEndian, uint16(0))
	binary.Write(&tiff, binary.BigEndian, uint32(0))
	body := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	seg := appSegment(0xE1, body)
	r := extract(bufio.NewReader(bytes.NewReader(minimalJPEG(seg))))
	require.True(t, r.Ok)
	assert.EqualValues(t, ColorSpaceNotFound, r.ColorSpace)
}

func TestExtractTruncatedFileDoesNotPanic(t *testing.T) {
	data := []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00}
	r := extract(bufio.NewReader(bytes.NewReader(data)))
	assert.True(t, r.Ok)
	assert.Empty(t, r.Profile)
}

func TestExtractBadSOIFails(t *testing.T) {
	r := extract(bufio.NewReader(bytes.NewReader([]byte{0x00, 0x01})))
	assert.False(t, r.Ok)
}
