// Package jpegmeta walks the APP marker segments of a baseline JPEG file to
// recover an embedded ICC profile and the color-space fields carried in
// EXIF. It is a narrow, purpose-built reader: it never decodes pixel data
// and never looks past the markers it cares about.
package jpegmeta

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
)

// EXIF color-space codes, as produced by Extract.
const (
	ColorSpaceNotFound     = 0
	ColorSpaceSRGB         = 1
	ColorSpaceAdobeRGB     = 2
	ColorSpaceUncalibrated = 0xFFFF
)

const (
	app0First = 0xE0
	app15Last = 0xEF
)

// IFD tag ids used by the Adobe RGB heuristic (spec §4.2).
const (
	tagExifIFDPointer = 0x8769
	tagWhitePoint     = 0x013E
	tagPrimaryChroma  = 0x013F
	tagColorSpace     = 0xA001
)

// adobeRGBRationals is the exact 16-value [num,den]x8 sequence
// (WhitePoint's 2 rationals followed by PrimaryChromaticities' 6
// rationals) that identifies Adobe RGB when ColorSpace reads
// "uncalibrated" (0xFFFF).
var adobeRGBRationals = [16]uint32{
	313, 1000, 329, 1000,
	64, 100, 33, 100, 21, 100, 71, 100, 15, 100, 6, 100,
}

// Result is the outcome of Extract: a possibly-empty reassembled ICC
// profile blob and the EXIF color-space code. A false Ok, or an empty
// profile, is never fatal to the caller -- it just means "fall back to a
// default profile".
type Result struct {
	Profile    []byte
	ColorSpace uint
	Ok         bool
}

// Extract parses path as a JPEG file and returns its embedded ICC profile
// (chunks reassembled in file-encounter order, per spec §9's documented
// "chunk-order assumption") and its EXIF color-space code. A file that
// cannot be opened or does not start with SOI yields Result{} (Ok false).
// A short read or malformed segment length ends the marker scan without
// an error: Ok stays true, and whatever profile chunks and color-space
// code were read before that point are returned.
func Extract(path string) Result {
	f, err := os.Open(path)
	if err != nil {
		return Result{}
	}
	defer f.Close()
	return extract(bufio.NewReader(f))
}

func extract(r *bufio.Reader) Result {
	var soi [2]byte
	if _, err := io.ReadFull(r, soi[:]); err != nil {
		return Result{}
	}
	if soi[0] != 0xFF || soi[1] != 0xD8 {
		return Result{}
	}

	var chunks [][]byte
	colorSpace := uint(ColorSpaceNotFound)

	for {
		marker, ok := nextMarker(r)
		if !ok {
			break
		}
		if marker < app0First || marker > app15Last {
			break
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			break
		}
		segLen := int(binary.BigEndian.Uint16(lenBuf[:]))
		if segLen < 2 {
			break
		}
		body := make([]byte, segLen-2)
		if _, err := io.ReadFull(r, body); err != nil {
			break
		}

		switch marker {
		case 0xE1: // APP1: EXIF/TIFF
			if cs, ok := parseExif(body); ok {
				colorSpace = cs
			}
		case 0xE2: // APP2: ICC_PROFILE
			if chunk, ok := parseICCChunk(body); ok {
				chunks = append(chunks, chunk)
			}
		}
	}

	var profile []byte
	for _, c := range chunks {
		profile = append(profile, c...)
	}

	return Result{Profile: profile, ColorSpace: colorSpace, Ok: true}
}

// nextMarker reads the next marker code, skipping FF padding bytes. It
// returns false once a non-FF byte is seen where a marker header is
// expected (or EOF) -- that terminates the APP-segment scan (spec §4.2
// step 2).
func nextMarker(r *bufio.Reader) (uint, bool) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, false
		}
		if b != 0xFF {
			return 0, false
		}
		b2, err := r.ReadByte()
		if err != nil {
			return 0, false
		}
		if b2 == 0xFF {
			continue // fill byte, keep looking for the real marker byte
		}
		return uint(b2), true
	}
}

// parseICCChunk recognizes an "ICC_PROFILE\0" APP2 body and returns its
// payload chunk. The 1-based chunk index/count header (spec §4.2 step 5)
// is read but not used to reorder -- see Extract's doc and SPEC_FULL.md §5
// for the documented chunk-order assumption.
func parseICCChunk(body []byte) ([]byte, bool) {
	const sig = "ICC_PROFILE\x00"
	if len(body) < len(sig)+2 {
		return nil, false
	}
	if string(body[:len(sig)]) != sig {
		return nil, false
	}
	payload := body[len(sig)+2:]
	return payload, true
}

// parseExif implements the EXIF IFD walk of spec §4.2 step 4: locate
// IFD0's WhitePoint/PrimaryChromaticities/Exif-sub-IFD tags, read
// ColorSpace from the Exif sub-IFD, and apply the Adobe RGB heuristic
// when ColorSpace reads uncalibrated.
func parseExif(body []byte) (uint, bool) {
	const sig = "Exif\x00\x00"
	if len(body) < len(sig)+8 {
		return 0, false
	}
	if string(body[:len(sig)]) != sig {
		return 0, false
	}
	tiff := body[len(sig):]
	if len(tiff) < 8 {
		return 0, false
	}

	var order binary.ByteOrder
	switch tiff[0] {
	case 0x49:
		order = binary.LittleEndian
	case 0x4D:
		order = binary.BigEndian
	default:
		return 0, false
	}

	ifd0Off := order.Uint32(tiff[4:8])

	var whitePointOff, primaryChromaOff, exifIFDOff uint32
	var haveWP, havePC, haveExifIFD bool

	if !walkIFD(tiff, order, ifd0Off, func(tag, _, _ uint32, valueOff uint32) bool {
		switch tag {
		case tagWhitePoint:
			whitePointOff, haveWP = valueOff, true
		case tagPrimaryChroma:
			primaryChromaOff, havePC = valueOff, true
		case tagExifIFDPointer:
			exifIFDOff, haveExifIFD = valueOff, true
		}
		return haveWP && havePC && haveExifIFD // stop early once all 3 found
	}) {
		return 0, false
	}

	if !haveExifIFD {
		return ColorSpaceNotFound, true
	}

	var code uint32
	var haveCode bool
	walkIFD(tiff, order, exifIFDOff, func(tag, typ, count uint32, valueOff uint32) bool {
		if tag == tagColorSpace {
			code = readIFDShortValue(tiff, order, typ, count, valueOff)
			haveCode = true
			return true
		}
		return false
	})

	if !haveCode {
		return ColorSpaceNotFound, true
	}

	if code == ColorSpaceUncalibrated && haveWP && havePC {
		if matchesAdobeRGB(tiff, order, whitePointOff, primaryChromaOff) {
			code = ColorSpaceAdobeRGB
		}
	}

	return uint(code), true
}

// walkIFD reads the 2-byte entry count at off and iterates that many
// 12-byte entries, invoking fn(tag, type, count, value) for each. fn
// returns true to stop early. The "value" passed to fn is simply the raw
// 4-byte value/offset field of the entry -- interpretation (inline value
// vs. offset) is the caller's job, since only a handful of known tags are
// read here.
func walkIFD(tiff []byte, order binary.ByteOrder, off uint32, fn func(tag, typ, count, value uint32) bool) bool {
	if int(off)+2 > len(tiff) {
		return false
	}
	count := order.Uint16(tiff[off : off+2])
	entries := tiff[off+2:]
	for i := 0; i < int(count); i++ {
		start := i * 12
		if start+12 > len(entries) {
			return false
		}
		e := entries[start : start+12]
		tag := uint32(order.Uint16(e[0:2]))
		typ := uint32(order.Uint16(e[2:4]))
		cnt := order.Uint32(e[4:8])
		val := order.Uint32(e[8:12])
		if fn(tag, typ, cnt, val) {
			break
		}
	}
	return true
}

// readIFDShortValue extracts a SHORT (type 3) tag's value: when the
// value fits inline (count*2 <= 4), it occupies the first bytes of the
// value field in the file's byte order; there is no separate offset to
// dereference for a single SHORT.
func readIFDShortValue(tiff []byte, order binary.ByteOrder, typ, count, value uint32) uint32 {
	if typ != 3 {
		return value
	}
	// The 4-byte value field holds the inline SHORT at its front, encoded
	// in the file's byte order, regardless of host endianness.
	b := make([]byte, 4)
	order.PutUint32(b, value)
	return uint32(order.Uint16(b[0:2]))
}

// matchesAdobeRGB reads the 2 WhitePoint rationals (16 bytes, at
// tiff[wpOff:]) and 6 PrimaryChromaticities rationals (48 bytes, at
// tiff[pcOff:]) and compares their raw 32-bit numerator/denominator
// values -- not the divided ratio -- against the Adobe RGB constant.
func matchesAdobeRGB(tiff []byte, order binary.ByteOrder, wpOff, pcOff uint32) bool {
	wp, ok := readRationalInts(tiff, order, wpOff, 2)
	if !ok {
		return false
	}
	pc, ok := readRationalInts(tiff, order, pcOff, 6)
	if !ok {
		return false
	}
	var got [16]uint32
	copy(got[:4], wp)
	copy(got[4:], pc)
	return got == adobeRGBRationals
}

// readRationalInts reads n rationals (8 bytes each: numerator, then
// denominator, both uint32) starting at off, returning 2*n values.
func readRationalInts(tiff []byte, order binary.ByteOrder, off uint32, n int) ([]uint32, bool) {
	need := int(off) + n*8
	if need > len(tiff) {
		return nil, false
	}
	out := make([]uint32, 2*n)
	for i := 0; i < n; i++ {
		base := int(off) + i*8
		out[2*i] = order.Uint32(tiff[base : base+4])
		out[2*i+1] = order.Uint32(tiff[base+4 : base+8])
	}
	return out, true
}
