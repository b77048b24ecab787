// Package batch implements the batch driver (spec §4.4, component C4):
// directory walk, per-file dispatch into internal/convert, pass-through
// copy of non-JPEG files, and exit-code aggregation. The per-file
// isolation (one failure doesn't abort the run, and the failing file's
// original is still mirrored to output) follows the statistics-aggregation
// shape of the pack's batchMedia folder processor, adapted from a
// resize/re-encode loop to an ICC-conversion loop.
package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"iccflow/internal/config"
	"iccflow/internal/convert"
	"iccflow/internal/profile"
)

// Result summarizes one run: how many files were converted, copied
// through untouched, or failed, and the exit code the process should
// report (spec §4.4 "Exit codes"). Copied counts every non-JPEG file
// passed through, including those left in place without a copy when the
// input and output folders are the same.
type Result struct {
	Converted int
	Copied    int
	Failed    int
	ExitCode  int
}

// Run walks cfg.InputDir and dispatches every entry, writing one
// diagnostic line per failing file to stderr (spec §7 "one diagnostic
// line per failing file").
func Run(cfg *config.Config, stderr io.Writer) Result {
	if err := os.MkdirAll(cfg.OutputDir, 0777); err != nil {
		fmt.Fprintf(stderr, "iccflow: create output directory %s: %v\n", cfg.OutputDir, err)
		return Result{ExitCode: config.ExitOutputDirFailed}
	}

	entries, err := os.ReadDir(cfg.InputDir)
	if err != nil {
		fmt.Fprintf(stderr, "iccflow: open input directory %s: %v\n", cfg.InputDir, err)
		return Result{ExitCode: config.ExitInputInaccessible}
	}

	dstProfile, err := loadOutputProfile(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "iccflow: load output profile: %v\n", err)
		return Result{ExitCode: config.ExitBadArgs}
	}
	defer dstProfile.Close()

	sameDir := samePath(cfg.InputDir, cfg.OutputDir)

	var res Result
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		srcPath := filepath.Join(cfg.InputDir, name)

		if isJPEGName(name) {
			if cerr := convert.Convert(srcPath, cfg.OutputDir, name, cfg, dstProfile); cerr != nil {
				fmt.Fprintf(stderr, "iccflow: %s: convert failed: %v\n", name, cerr)
				res.Failed++
				if !sameDir {
					if perr := copyFile(srcPath, filepath.Join(cfg.OutputDir, name)); perr != nil {
						fmt.Fprintf(stderr, "iccflow: %s: pass-through copy failed: %v\n", name, perr)
					}
				}
				continue
			}
			res.Converted++
			continue
		}

		if !sameDir {
			if perr := copyFile(srcPath, filepath.Join(cfg.OutputDir, name)); perr != nil {
				fmt.Fprintf(stderr, "iccflow: %s: copy failed: %v\n", name, perr)
				res.Failed++
				continue
			}
		}
		res.Copied++
	}

	if res.Failed > 0 {
		res.ExitCode = config.ExitSomeFileFailed
	} else {
		res.ExitCode = config.ExitOK
	}
	return res
}

// loadOutputProfile resolves the destination profile once per run (spec
// §4.3 setup step 1): the configured path if any, else sRGB.
func loadOutputProfile(cfg *config.Config) (*profile.Profile, error) {
	if cfg.OutputProfilePath == "" {
		return profile.LoadSRGB(), nil
	}
	p, err := profile.LoadFromFile(cfg.OutputProfilePath)
	if err != nil {
		return nil, errors.Wrap(err, "output profile")
	}
	if !p.IsValid() {
		return nil, errors.Errorf("output profile %s did not yield a usable profile", cfg.OutputProfilePath)
	}
	return p, nil
}

func isJPEGName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg")
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

// copyFile mirrors a non-converted file byte-for-byte (spec §4.4,
// "otherwise, if input != output, byte-for-byte copy to output").
func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return errors.Wrap(err, "stat source")
	}

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrap(err, "create destination")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrap(err, "copy")
	}
	return nil
}
