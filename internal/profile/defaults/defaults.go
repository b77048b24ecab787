// Package defaults holds the compiled-in ICC profile blobs the converter
// falls back to when no per-file profile can be determined and the
// operator didn't configure an override (spec §4.1, §6 "-pcmyk"/"-pgray").
//
// FOGRA27 and AdobeRGB below are placeholders: the real blobs are
// licensed binary ICC profiles (a few hundred KB each) that a production
// build embeds via go:embed from vendored .icc files. Swapping in the
// genuine bytes requires no code change elsewhere -- every caller treats
// these as opaque []byte, exactly the "thin glue" the spec scopes out of
// the core (spec §1).
package defaults

// FOGRA27 is the compiled-in default CMYK input profile.
var FOGRA27 = []byte("placeholder-fogra27-coated-v2-icc-profile")

// AdobeRGB is the compiled-in profile used when a JPEG's EXIF marks it
// Adobe RGB (directly, or via the white-point/primaries heuristic) but no
// ICC profile is embedded.
var AdobeRGB = []byte("placeholder-adobergb-1998-icc-profile")
