// Package config implements the CLI surface (spec §4.5, component C5):
// flag parsing, defaults, and validation for a batch ICC conversion run.
package config

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Exit codes, per spec §4.4/§7.
const (
	ExitOK                = 0
	ExitBadArgs           = 1
	ExitInputInaccessible = 2
	ExitSomeFileFailed    = 3
	ExitOutputDirFailed   = 4
)

// Config is the validated result of CLI parsing (spec §3 "ConverterConfig").
type Config struct {
	InputDir  string
	OutputDir string

	OutputProfilePath string
	DefaultRGBPath    string
	DefaultCMYKPath   string
	DefaultGrayPath   string

	Intent int // 0=perceptual 1=relative 2=saturation 3=absolute
	Quality int // 0..100

	BlackPointCompensation bool
	Optimize               bool
	Verbose                bool
}

// ErrHelp is returned by Parse when -h was given: the run should print usage
// and exit 0 without doing any work.
var ErrHelp = flag.ErrHelp

// Parse builds a Config from args (normally os.Args[1:]). It mirrors the
// flag table of spec §6 exactly, including the defaults (relative intent,
// quality 85, black-point compensation and optimization enabled).
func Parse(args []string, stderr io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("iccflow", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &Config{Intent: 1, Quality: 85, BlackPointCompensation: true, Optimize: true}

	var noBPC, noOpt bool

	fs.StringVar(&cfg.InputDir, "i", "", "input folder (required)")
	fs.StringVar(&cfg.OutputDir, "o", "", "output folder (required)")
	fs.StringVar(&cfg.OutputProfilePath, "p", "", "output ICC profile (file or JPEG); default sRGB")
	fs.StringVar(&cfg.DefaultRGBPath, "prgb", "", "default input RGB profile; default sRGB")
	fs.StringVar(&cfg.DefaultCMYKPath, "pcmyk", "", "default input CMYK profile; default bundled FOGRA27")
	fs.StringVar(&cfg.DefaultGrayPath, "pgray", "", "default input Gray profile; default D50 gamma-2.2 gray")
	fs.IntVar(&cfg.Intent, "c", 1, "rendering intent 0=perceptual 1=relative 2=saturation 3=absolute")
	fs.IntVar(&cfg.Quality, "q", 85, "JPEG quality 0..100")
	fs.BoolVar(&noBPC, "nbpc", false, "disable black-point compensation")
	fs.BoolVar(&noOpt, "no", false, "disable transform optimization")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose per-scanline progress")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: iccflow -i <input> -o <output> [options]\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, ErrHelp
		}
		return nil, err
	}

	cfg.BlackPointCompensation = !noBPC
	cfg.Optimize = !noOpt

	cfg.InputDir = strings.TrimRight(cfg.InputDir, "/\\")
	cfg.OutputDir = strings.TrimRight(cfg.OutputDir, "/\\")

	if cfg.InputDir == "" || cfg.OutputDir == "" {
		return nil, errors.New("config: -i and -o are required")
	}
	if cfg.Intent < 0 || cfg.Intent > 3 {
		return nil, errors.Errorf("config: rendering intent %d out of range [0,3]", cfg.Intent)
	}
	if cfg.Quality < 0 || cfg.Quality > 100 {
		return nil, errors.Errorf("config: quality %d out of range [0,100]", cfg.Quality)
	}

	return cfg, nil
}
