package convert

/*
#cgo pkg-config: lcms2
#include <lcms2.h>
*/
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"
)

// pixelFormat is the lcms2 TYPE_* token for a channel count, matching
// spec §4.3 step 6: "1->GRAY_8, 3->RGB_8, 4->CMYK_8_REV (reversed,
// because JPEG CMYK is stored inverted)".
func pixelFormat(channels int) (C.cmsUInt32Number, error) {
	switch channels {
	case 1:
		return C.TYPE_GRAY_8, nil
	case 3:
		return C.TYPE_RGB_8, nil
	case 4:
		return C.TYPE_CMYK_8_REV, nil
	default:
		return 0, errors.Errorf("convert: unsupported channel count %d", channels)
	}
}

// transform is one lcms2 color transform, built per spec §4.3 step 11
// from the resolved input/output profiles, pixel formats, rendering
// intent, and black-point-compensation/optimization flags.
type transform struct {
	h C.cmsHTRANSFORM
}

func buildTransform(inHandle, outHandle unsafe.Pointer, inFormat, outFormat C.cmsUInt32Number,
	intent int, blackPointCompensation, optimize bool) (*transform, error) {

	var flags C.cmsUInt32Number
	if blackPointCompensation {
		flags |= C.cmsFLAGS_BLACKPOINTCOMPENSATION
	}
	if !optimize {
		flags |= C.cmsFLAGS_NOOPTIMIZE
	}

	h := C.cmsCreateTransform(
		C.cmsHPROFILE(inHandle), inFormat,
		C.cmsHPROFILE(outHandle), outFormat,
		C.cmsUInt32Number(intent), flags)
	if h == nil {
		return nil, errors.New("convert: cmsCreateTransform failed")
	}
	return &transform{h: h}, nil
}

// apply transforms pixelCount pixels from src (the decoder buffer) into
// dst (the encoder buffer), one scanline per call in spec §4.3's
// streaming loop.
func (t *transform) apply(src, dst []byte, pixelCount int) {
	var srcPtr, dstPtr unsafe.Pointer
	if len(src) > 0 {
		srcPtr = unsafe.Pointer(&src[0])
	}
	if len(dst) > 0 {
		dstPtr = unsafe.Pointer(&dst[0])
	}
	C.cmsDoTransform(t.h, srcPtr, dstPtr, C.cmsUInt32Number(pixelCount))
}

func (t *transform) close() {
	if t != nil && t.h != nil {
		C.cmsDeleteTransform(t.h)
		t.h = nil
	}
}
