// Command hl7-stitch merges observation segments from a response capture
// into the matching result messages, file name by file name.
//
// Usage:
//
//	hl7-stitch [flags] <resultsDir> <responsesDir> <outDir>
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/eastgenomics/hl7-epic-integration/pkg/stitch"
)

func main() {
	tag := pflag.String("segment", "OBX", "segment type to merge")
	terminal := pflag.StringSlice("terminal", []string{"SPM", "ZSP"}, "segments the merged block is inserted before")
	pflag.Parse()

	args := pflag.Args()
	if len(args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <resultsDir> <responsesDir> <outDir>\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	opts := stitch.Options{Tag: *tag, Terminal: *terminal}
	if err := stitch.Run(args[0], args[1], args[2], opts, logger); err != nil {
		logger.Error("stitch failed", "error", err)
		os.Exit(1)
	}
}
