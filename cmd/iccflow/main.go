// Command iccflow batch-converts the JPEG images in a folder from
// whatever ICC profile each one carries (or implies) into a single
// destination profile, mirroring non-JPEG files through untouched.
package main

import (
	"fmt"
	"os"

	"iccflow/internal/batch"
	"iccflow/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args, os.Stderr)
	if err == config.ErrHelp {
		return config.ExitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "iccflow: %v\n", err)
		return config.ExitBadArgs
	}

	res := batch.Run(cfg, os.Stderr)
	if res.ExitCode == config.ExitOK {
		fmt.Printf("iccflow: %d converted, %d copied\n", res.Converted, res.Copied)
	}
	return res.ExitCode
}
