// Package convert owns the streaming decoder -> transform -> encoder
// pipeline for one JPEG file (spec §4.3, component C3). The libjpeg
// bindings here follow the cgo shape demonstrated by the pack's
// golibjpegturbo example (a C struct built with C.malloc, an error
// callback installed on jpeg_error_mgr, scanlines pumped one at a time
// through C.jpeg_write_scanlines/read_scanlines) but replace that
// example's bare panic-across-the-cgo-boundary with libjpeg's own
// documented setjmp/longjmp error-trap idiom: a panic that isn't
// recovered before control returns into C is unsafe, whereas longjmp
// confined entirely to the C side is the library's own sanctioned escape
// hatch, and still satisfies spec §4.3.2 ("a non-returning callback ...
// transfer control out of the conversion").
package convert

/*
#cgo pkg-config: libjpeg
#include <stdio.h>
#include <stdlib.h>
#include <string.h>
#include <setjmp.h>
#include <jpeglib.h>
#include <jerror.h>

typedef struct {
    struct jpeg_error_mgr pub;
    jmp_buf jmp;
    char msg[JMSG_LENGTH_MAX];
} iccflow_err;

static void iccflow_error_exit(j_common_ptr cinfo) {
    iccflow_err *err = (iccflow_err *)cinfo->err;
    (*cinfo->err->format_message)(cinfo, err->msg);
    longjmp(err->jmp, 1);
}

static void iccflow_init_err(iccflow_err *err, j_common_ptr cinfo) {
    jpeg_std_error(&err->pub);
    err->pub.error_exit = iccflow_error_exit;
    cinfo->err = &err->pub;
}

static int iccflow_read_header(struct jpeg_decompress_struct *cinfo, iccflow_err *err) {
    if (setjmp(err->jmp)) return 0;
    jpeg_read_header(cinfo, TRUE);
    return 1;
}

static int iccflow_start_decompress(struct jpeg_decompress_struct *cinfo, iccflow_err *err) {
    if (setjmp(err->jmp)) return 0;
    jpeg_start_decompress(cinfo);
    return 1;
}

static int iccflow_read_scanline(struct jpeg_decompress_struct *cinfo, iccflow_err *err, JSAMPROW row) {
    if (setjmp(err->jmp)) return 0;
    if (jpeg_read_scanlines(cinfo, &row, 1) != 1) return 0;
    return 1;
}

static int iccflow_finish_decompress(struct jpeg_decompress_struct *cinfo, iccflow_err *err) {
    if (setjmp(err->jmp)) return 0;
    jpeg_finish_decompress(cinfo);
    return 1;
}

static int iccflow_start_compress(struct jpeg_compress_struct *cinfo, iccflow_err *err) {
    if (setjmp(err->jmp)) return 0;
    jpeg_start_compress(cinfo, TRUE);
    return 1;
}

static int iccflow_write_scanline(struct jpeg_compress_struct *cinfo, iccflow_err *err, JSAMPROW row) {
    if (setjmp(err->jmp)) return 0;
    if (jpeg_write_scanlines(cinfo, &row, 1) != 1) return 0;
    return 1;
}

static int iccflow_write_marker(struct jpeg_compress_struct *cinfo, iccflow_err *err,
                                 int marker, const JOCTET *data, unsigned int len) {
    if (setjmp(err->jmp)) return 0;
    jpeg_write_marker(cinfo, marker, data, len);
    return 1;
}

static int iccflow_finish_compress(struct jpeg_compress_struct *cinfo, iccflow_err *err) {
    if (setjmp(err->jmp)) return 0;
    jpeg_finish_compress(cinfo);
    return 1;
}
*/
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"
)

const (
	jcsUnknown   = C.JCS_UNKNOWN
	jcsGrayscale = C.JCS_GRAYSCALE
	jcsRGB       = C.JCS_RGB
	jcsYCbCr     = C.JCS_YCbCr
	jcsCMYK      = C.JCS_CMYK
	jcsYCCK      = C.JCS_YCCK
)

// jpegColorSpace is the libjpeg J_COLOR_SPACE token matching a channel
// count, used to configure the encoder's in_color_space (spec §4.3 step
// 7).
func jpegColorSpace(channels int) (C.J_COLOR_SPACE, error) {
	switch channels {
	case 1:
		return jcsGrayscale, nil
	case 3:
		return jcsRGB, nil
	case 4:
		return jcsCMYK, nil
	default:
		return 0, errors.Errorf("convert: unsupported channel count %d", channels)
	}
}

// decoder wraps one open libjpeg decompress object bound to an input file.
type decoder struct {
	cinfo C.struct_jpeg_decompress_struct
	err   C.iccflow_err
	fh    *C.FILE
}

func openDecoder(path string) (*decoder, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	cMode := C.CString("rb")
	defer C.free(unsafe.Pointer(cMode))

	fh := C.fopen(cPath, cMode)
	if fh == nil {
		return nil, errors.Errorf("convert: open source %s", path)
	}

	d := &decoder{fh: fh}
	C.iccflow_init_err(&d.err, (C.j_common_ptr)(unsafe.Pointer(&d.cinfo)))
	C.jpeg_create_decompress(&d.cinfo)
	C.jpeg_stdio_src(&d.cinfo, fh)
	return d, nil
}

// readHeaderAndStart reads the JPEG header and starts decompression,
// returning the decoder-reported image geometry (spec §4.3 step 4).
// colorSpace is returned as a plain int (the J_COLOR_SPACE enum value)
// so callers outside this cgo-enabled file never need to spell the C
// type name.
func (d *decoder) readHeaderAndStart() (width, height, components, colorSpace int, err error) {
	if C.iccflow_read_header(&d.cinfo, &d.err) == 0 {
		return 0, 0, 0, 0, d.lastError("jpeg_read_header")
	}
	if C.iccflow_start_decompress(&d.cinfo, &d.err) == 0 {
		return 0, 0, 0, 0, d.lastError("jpeg_start_decompress")
	}
	return int(d.cinfo.output_width), int(d.cinfo.output_height),
		int(d.cinfo.output_components), int(d.cinfo.out_color_space), nil
}

func (d *decoder) readScanline(buf []byte) error {
	if C.iccflow_read_scanline(&d.cinfo, &d.err, C.JSAMPROW(unsafe.Pointer(&buf[0]))) == 0 {
		return d.lastError("jpeg_read_scanlines")
	}
	return nil
}

func (d *decoder) finish() error {
	if C.iccflow_finish_decompress(&d.cinfo, &d.err) == 0 {
		return d.lastError("jpeg_finish_decompress")
	}
	return nil
}

func (d *decoder) abort() {
	C.jpeg_abort_decompress(&d.cinfo)
}

func (d *decoder) close() {
	C.jpeg_destroy_decompress(&d.cinfo)
	if d.fh != nil {
		C.fclose(d.fh)
	}
}

func (d *decoder) lastError(where string) error {
	return errors.Errorf("convert: %s: %s", where, C.GoString(&d.err.msg[0]))
}

// encoder wraps one open libjpeg compress object bound to an output file.
type encoder struct {
	cinfo C.struct_jpeg_compress_struct
	err   C.iccflow_err
	fh    *C.FILE
}

func openEncoder(path string) (*encoder, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	cMode := C.CString("wb")
	defer C.free(unsafe.Pointer(cMode))

	fh := C.fopen(cPath, cMode)
	if fh == nil {
		return nil, errors.Errorf("convert: open destination %s", path)
	}

	e := &encoder{fh: fh}
	C.iccflow_init_err(&e.err, (C.j_common_ptr)(unsafe.Pointer(&e.cinfo)))
	C.jpeg_create_compress(&e.cinfo)
	C.jpeg_stdio_dest(&e.cinfo, fh)
	return e, nil
}

func (e *encoder) configure(width, height, components int, colorSpace C.J_COLOR_SPACE, quality int, optimize bool) {
	e.cinfo.image_width = C.JDIMENSION(width)
	e.cinfo.image_height = C.JDIMENSION(height)
	e.cinfo.input_components = C.int(components)
	e.cinfo.in_color_space = colorSpace
	C.jpeg_set_defaults(&e.cinfo)
	C.jpeg_set_quality(&e.cinfo, C.int(quality), C.TRUE)
	e.cinfo.optimize_coding = boolToC(optimize)
}

func (e *encoder) startCompress() error {
	if C.iccflow_start_compress(&e.cinfo, &e.err) == 0 {
		return e.lastError("jpeg_start_compress")
	}
	return nil
}

// writeICCProfile emits the destination profile across one or more APP2
// segments (spec §4.3.1), each carrying the 12-byte "ICC_PROFILE\0"
// signature, a 1-byte chunk index, a 1-byte chunk count, and up to
// maxICCChunkPayload bytes of profile data.
func (e *encoder) writeICCProfile(data []byte) error {
	const sig = "ICC_PROFILE\x00"
	total := len(data)
	n := iccChunkCount(total)
	for i := 0; i < n; i++ {
		start := i * maxICCChunkPayload
		end := start + maxICCChunkPayload
		if end > total {
			end = total
		}
		chunk := data[start:end]

		header := make([]byte, len(sig)+2)
		copy(header, sig)
		header[len(sig)] = byte(i + 1)
		header[len(sig)+1] = byte(n)
		payload := append(header, chunk...)

		var ptr *C.JOCTET
		if len(payload) > 0 {
			ptr = (*C.JOCTET)(unsafe.Pointer(&payload[0]))
		}
		if C.iccflow_write_marker(&e.cinfo, &e.err, C.int(C.JPEG_APP0+2), ptr, C.uint(len(payload))) == 0 {
			return e.lastError("jpeg_write_marker")
		}
	}
	return nil
}

// iccChunkCount computes the number of APP2 chunks a profile of the given
// length needs, per spec §4.3.1's "N = floor(L/65517) + 1" together with
// §8's boundary tests (a profile of exactly 65517 bytes is one chunk, not
// two with an empty trailing marker): ceiling division, with a single
// chunk for a zero-length profile.
func iccChunkCount(total int) int {
	if total == 0 {
		return 1
	}
	return (total + maxICCChunkPayload - 1) / maxICCChunkPayload
}

func (e *encoder) writeScanline(buf []byte) error {
	if C.iccflow_write_scanline(&e.cinfo, &e.err, C.JSAMPROW(unsafe.Pointer(&buf[0]))) == 0 {
		return e.lastError("jpeg_write_scanlines")
	}
	return nil
}

func (e *encoder) finish() error {
	if C.iccflow_finish_compress(&e.cinfo, &e.err) == 0 {
		return e.lastError("jpeg_finish_compress")
	}
	return nil
}

func (e *encoder) abort() {
	C.jpeg_abort_compress(&e.cinfo)
}

func (e *encoder) close() {
	C.jpeg_destroy_compress(&e.cinfo)
	if e.fh != nil {
		C.fclose(e.fh)
	}
}

func (e *encoder) lastError(where string) error {
	return errors.Errorf("convert: %s: %s", where, C.GoString(&e.err.msg[0]))
}

func boolToC(b bool) C.boolean {
	if b {
		return C.TRUE
	}
	return C.FALSE
}
