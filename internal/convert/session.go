package convert

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"iccflow/internal/config"
	"iccflow/internal/profile"
	"iccflow/internal/profile/defaults"
)

// maxICCChunkPayload is the largest payload, in bytes, a single APP2 ICC
// chunk may carry (spec §4.3.1: "up to 65517 bytes of profile data").
const maxICCChunkPayload = 65517

// state is the session's position in the lifecycle of spec §4.3.3.
type state int

const (
	stateIdle state = iota
	stateDecoding
	stateEncoding
	stateStreaming
	stateFinalizing
	stateCommitted
	stateAborted
)

// session holds every resource acquired by Convert for one file. Every
// field here must be released on every exit path (spec §5's "single
// hardest invariant") -- release() is the single place that does it.
type session struct {
	path      string
	tmpPath   string
	finalPath string

	dec *decoder
	enc *encoder
	tr  *transform

	decBuf []byte
	encBuf []byte

	state state
}

func (s *session) release() {
	if s.tr != nil {
		s.tr.close()
		s.tr = nil
	}
	if s.dec != nil {
		s.dec.close()
		s.dec = nil
	}
	if s.enc != nil {
		s.enc.close()
		s.enc = nil
	}
	s.decBuf = nil
	s.encBuf = nil
}

func (s *session) abort() {
	if s.dec != nil {
		s.dec.abort()
	}
	if s.enc != nil {
		s.enc.abort()
	}
	s.release()
	os.Remove(s.tmpPath)
	s.state = stateAborted
}

// Convert converts one JPEG file from srcPath to <outputDir>/<basename>,
// following the setup/streaming/teardown contract of spec §4.3. The
// destination profile is expected to already be resolved by the caller
// (the batch driver loads/synthesizes it once per run); Convert clones it
// so the session owns an independent handle (spec §3 "Session state").
func Convert(srcPath, outputDir, baseName string, cfg *config.Config, dstProfile *profile.Profile) (err error) {
	finalPath := outputDir + string(os.PathSeparator) + baseName
	s := &session{
		path:      srcPath,
		finalPath: finalPath,
		tmpPath:   finalPath + ".tmp",
		state:     stateIdle,
	}

	// Any panic recovered here (e.g. from a pixel-format mismatch we
	// didn't catch explicitly) still runs the abort teardown -- the
	// resource-release contract holds on every exit path, not just the
	// ones the happy-path code anticipated.
	defer func() {
		if r := recover(); r != nil {
			s.abort()
			err = errors.Errorf("convert: %s: panic: %v", srcPath, r)
		}
	}()

	ownedProfile, cerr := dstProfile.Clone()
	if cerr != nil {
		return errors.Wrap(cerr, "convert: clone output profile")
	}
	defer ownedProfile.Close()

	dec, err := openDecoder(srcPath)
	if err != nil {
		return err
	}
	s.dec = dec
	s.state = stateDecoding

	enc, err := openEncoder(s.tmpPath)
	if err != nil {
		s.abort()
		return err
	}
	s.enc = enc

	width, height, components, outColorSpace, err := dec.readHeaderAndStart()
	if err != nil {
		s.abort()
		return err
	}

	inputProfile, err := resolveInputProfile(srcPath, outColorSpace, cfg)
	if err != nil {
		s.abort()
		return err
	}
	defer inputProfile.Close()

	inFormat, err := pixelFormat(inputProfile.NumChannels())
	if err != nil {
		s.abort()
		return err
	}

	outChannels := ownedProfile.NumChannels()
	outFormat, err := pixelFormat(outChannels)
	if err != nil {
		s.abort()
		return err
	}
	outJPEGSpace, err := jpegColorSpace(outChannels)
	if err != nil {
		s.abort()
		return err
	}

	enc.configure(width, height, outChannels, outJPEGSpace, cfg.Quality, cfg.Optimize)

	if err := enc.startCompress(); err != nil {
		s.abort()
		return err
	}
	s.state = stateEncoding

	profileBytes, serr := ownedProfile.Bytes()
	if serr != nil {
		s.abort()
		return errors.Wrap(serr, "convert: serialize output profile")
	}
	if err := enc.writeICCProfile(profileBytes); err != nil {
		s.abort()
		return err
	}

	s.decBuf = make([]byte, width*components)
	s.encBuf = make([]byte, width*outChannels)

	tr, err := buildTransform(inputProfile.Handle(), ownedProfile.Handle(), inFormat, outFormat,
		cfg.Intent, cfg.BlackPointCompensation, cfg.Optimize)
	if err != nil {
		s.abort()
		return err
	}
	s.tr = tr

	s.state = stateStreaming
	for row := 0; row < height; row++ {
		if err := dec.readScanline(s.decBuf); err != nil {
			s.abort()
			return err
		}
		tr.apply(s.decBuf, s.encBuf, width)
		if err := enc.writeScanline(s.encBuf); err != nil {
			s.abort()
			return err
		}
		if cfg.Verbose {
			fmt.Printf("\r%s: %3d%%", baseName, (row+1)*100/height)
		}
	}
	if cfg.Verbose {
		fmt.Println()
	}
	s.state = stateFinalizing

	if err := dec.finish(); err != nil {
		s.abort()
		return err
	}
	if err := enc.finish(); err != nil {
		s.abort()
		return err
	}

	s.release()

	os.Remove(finalPath) // spec §9: silent remove before rename, target may not pre-exist
	if err := os.Rename(s.tmpPath, finalPath); err != nil {
		return errors.Wrapf(err, "convert: rename %s", baseName)
	}
	s.state = stateCommitted
	return nil
}

// resolveInputProfile implements spec §4.3 step 5: try the source file's
// own profile first, then fall back to the configured (or bundled)
// default for the decoder-reported color space.
func resolveInputProfile(srcPath string, outColorSpace int, cfg *config.Config) (*profile.Profile, error) {
	p, err := profile.LoadFromFile(srcPath)
	if err != nil {
		return nil, errors.Wrap(err, "convert: resolve input profile")
	}
	if p.IsValid() {
		return p, nil
	}

	switch outColorSpace {
	case int(jcsGrayscale):
		if cfg.DefaultGrayPath != "" {
			return profile.LoadFromFile(cfg.DefaultGrayPath)
		}
		return profile.LoadGray(2.2)
	case int(jcsCMYK), int(jcsYCCK):
		if cfg.DefaultCMYKPath != "" {
			return profile.LoadFromFile(cfg.DefaultCMYKPath)
		}
		return loadBundledFOGRA27()
	case int(jcsRGB), int(jcsYCbCr):
		if cfg.DefaultRGBPath != "" {
			return profile.LoadFromFile(cfg.DefaultRGBPath)
		}
		return profile.LoadSRGB(), nil
	default:
		return nil, errors.Errorf("convert: unsupported source color space %d", outColorSpace)
	}
}

// loadBundledFOGRA27 parses the FOGRA27 CMYK profile iccflow carries as
// its built-in default (spec §4.1 "default_cmyk_profile"), used whenever
// a CMYK source has neither an embedded profile nor a -pcmyk override.
// defaults.FOGRA27 holds placeholder bytes, which do not parse as ICC, so
// this returns an error and such a CMYK file fails to convert.
func loadBundledFOGRA27() (*profile.Profile, error) {
	return profile.LoadFromMemory(defaults.FOGRA27)
}
