// Package profile wraps Little CMS (lcms2) through cgo the same way the
// pack's golibjpegturbo example wraps libjpeg-turbo: a thin Go shell
// around opaque C handles, with the C library's own error-reporting
// folded back into Go error returns rather than propagated as non-local
// control flow (lcms2, unlike libjpeg, reports failures through plain
// return values, so no non-local error exit is needed here -- only
// internal/convert's libjpeg bindings use one, a setjmp/longjmp trap kept
// on the C side).
package profile

/*
#cgo pkg-config: lcms2
#include <stdlib.h>
#include <string.h>
#include <lcms2.h>

static cmsHPROFILE open_from_mem(const void *data, cmsUInt32Number size) {
    return cmsOpenProfileFromMem(data, size);
}

static cmsHPROFILE build_gray(cmsCIExyY *whitePoint, cmsToneCurve *curve) {
    return cmsCreateGrayProfile(whitePoint, curve);
}
*/
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"
)

// handle is the opaque lcms2 profile handle underlying a Profile. It is
// exported only as unsafe.Pointer across the package boundary so that
// internal/convert -- which has its own cgo preamble for libjpeg -- can
// rebuild a cmsHPROFILE without sharing cgo-generated types directly.
type handle = C.cmsHPROFILE

func openFromMem(data []byte) (handle, bool) {
	if len(data) == 0 {
		return nil, false
	}
	h := C.open_from_mem(unsafe.Pointer(&data[0]), C.cmsUInt32Number(len(data)))
	return h, h != nil
}

func createSRGB() handle {
	return C.cmsCreate_sRGBProfile()
}

func createGray(gamma float64) (handle, error) {
	curve := C.cmsBuildGamma(nil, C.double(gamma))
	if curve == nil {
		return nil, errors.New("profile: cmsBuildGamma failed")
	}
	defer C.cmsFreeToneCurve(curve)

	whitePoint := C.cmsCIExyY{
		x: C.double(0.34567), // D50
		y: C.double(0.35850),
		Y: C.double(1.0),
	}
	h := C.build_gray(&whitePoint, curve)
	if h == nil {
		return nil, errors.New("profile: cmsCreateGrayProfile failed")
	}
	return h, nil
}

func closeHandle(h handle) {
	if h != nil {
		C.cmsCloseProfile(h)
	}
}

func channelsOf(h handle) int {
	colorSpace := C.cmsGetColorSpace(h)
	return int(C.cmsChannelsOf(colorSpace))
}

// descriptionOf reads the English/US description tag, matching spec
// §4.1's "extract name via the profile's description tag (English
// locale)".
func descriptionOf(h handle) string {
	lang := C.CString("en")
	defer C.free(unsafe.Pointer(lang))
	country := C.CString("US")
	defer C.free(unsafe.Pointer(country))

	buf := make([]C.wchar_t, 256)
	n := C.cmsGetProfileInfo(h, C.cmsInfoDescription, lang, country, nil, 0)
	if n == 0 {
		return ""
	}
	n = C.cmsGetProfileInfo(h, C.cmsInfoDescription, lang, country,
		&buf[0], C.cmsUInt32Number(len(buf)*int(unsafe.Sizeof(buf[0]))))
	if n == 0 {
		return ""
	}
	out := make([]rune, 0, len(buf))
	for _, c := range buf {
		if c == 0 {
			break
		}
		out = append(out, rune(c))
	}
	return string(out)
}

// serializeToMem backs Profile.Clone (spec §9 "profile cloning via
// serialize/reparse" -- lcms2 has no direct handle-copy API).
func serializeToMem(h handle) ([]byte, error) {
	var size C.cmsUInt32Number
	if C.cmsSaveProfileToMem(h, nil, &size) == 0 || size == 0 {
		return nil, errors.New("profile: cmsSaveProfileToMem (sizing) failed")
	}
	buf := make([]byte, int(size))
	if C.cmsSaveProfileToMem(h, unsafe.Pointer(&buf[0]), &size) == 0 {
		return nil, errors.New("profile: cmsSaveProfileToMem failed")
	}
	return buf, nil
}
