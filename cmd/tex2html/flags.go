package main

import (
	"time"

	flag "github.com/spf13/pflag"
)

// cliFlags holds all flags for the convert command.
type cliFlags struct {
	output      string
	configPath  string
	engine      string
	timeout     time.Duration
	chunkWindow int
	highlight   string
	diag        string
	workers     int
	verbose     bool
	version     bool
}

// parseFlags parses command-line arguments.
// Returns the flags, the positional arguments (input files), or an error.
func parseFlags(args []string) (*cliFlags, []string, error) {
	fl := &cliFlags{}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.StringVarP(&fl.output, "output", "o", "", "output HTML file (default: input with .html extension)")
	fs.StringVar(&fl.configPath, "config", "", "config file path or name")
	fs.StringVar(&fl.engine, "engine", "", "conversion engine binary (default: pandoc from PATH)")
	fs.DurationVar(&fl.timeout, "timeout", 0, "per-document conversion deadline cap (e.g. 90s)")
	fs.IntVar(&fl.chunkWindow, "chunk-window", 0, "character window size for unstructured documents")
	fs.StringVar(&fl.highlight, "highlight", "", "chroma style for code blocks (e.g. github)")
	fs.StringVar(&fl.diag, "diag", "", "serve diagnostics HTTP on this address (e.g. localhost:8377)")
	fs.IntVarP(&fl.workers, "workers", "w", 0, "parallel sessions for batch conversion (0 = auto)")
	fs.BoolVarP(&fl.verbose, "verbose", "v", false, "verbose progress and logging")
	fs.BoolVar(&fl.version, "version", false, "print version and exit")

	if err := fs.Parse(args[1:]); err != nil {
		return nil, nil, err
	}

	return fl, fs.Args(), nil
}
