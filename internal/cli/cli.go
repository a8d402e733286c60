// Package cli parses the command line of the forward demo and builds its logger.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ExitError carries the process exit code for a command line error.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Config is the parsed command line.
type Config struct {
	Recipe     string
	LogLevel   string
	LogFormat  string
	Width      int
	Height     int
	Frames     uint32
	Workers    int
	MaxFrames  uint64
	Validation bool
}

// Parse processes args. It reports true when the program should exit cleanly, as it
// does for -h.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	fs := flag.NewFlagSet("forward", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, `
forward - renders an HCL render graph recipe into a window.

Usage:
  forward [options] [RECIPE]

Options:
`)
		fs.PrintDefaults()
	}

	recipe := fs.String("recipe", "", "Path to the .hcl recipe file.")
	logLevel := fs.String("log-level", "info", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	logFormat := fs.String("log-format", "text", "Log output format: 'text' or 'json'.")
	width := fs.Int("width", 1280, "Initial window width.")
	height := fs.Int("height", 720, "Initial window height.")
	frames := fs.Uint("frames", 0, "Frames in flight. 0 uses the recipe value or the default of 3.")
	workers := fs.Int("workers", 0, "Command recording goroutines. 0 uses the recipe value or 1.")
	maxFrames := fs.Uint64("max-frames", 0, "Exit after rendering this many frames. 0 runs until the window closes.")
	validation := fs.Bool("validation", false, "Enable the Vulkan validation layer.")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := *recipe
	if path == "" && fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		fs.Usage()
		return nil, true, nil
	}

	cfg := &Config{
		Recipe:     path,
		LogLevel:   strings.ToLower(*logLevel),
		LogFormat:  strings.ToLower(*logFormat),
		Width:      *width,
		Height:     *height,
		Frames:     uint32(*frames),
		Workers:    *workers,
		MaxFrames:  *maxFrames,
		Validation: *validation,
	}
	if err := cfg.validate(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, false, nil
}

func (c *Config) validate() error {
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", c.LogFormat)
	}
	if _, ok := levels[c.LogLevel]; !ok {
		return fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn' or 'error'", c.LogLevel)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid window size %dx%d", c.Width, c.Height)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid workers %d", c.Workers)
	}
	return nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger builds the logger described by c. It does not set the default logger.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levels[c.LogLevel]}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
