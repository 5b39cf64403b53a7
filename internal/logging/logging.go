// Package logging builds the engine's injected logrus logger from the CLI's
// verbosity and formatting flags. The logger is always passed in explicitly
// (never read from a package-level global), so the engine can run headless
// in tests — spec.md §9 calls out the original program's logger as the one
// piece of global mutable state worth avoiding.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Format selects one of the line layouts spec.md §6's --log-format offers.
type Format string

const (
	FormatMsg               Format = "msg"
	FormatLevelMsg          Format = "level_msg"
	FormatTimeLevelMsg      Format = "time_level_msg"
	FormatTimeLevelFuncMsg  Format = "time_level_function_msg"
)

// Color selects the --log-color behavior.
type Color string

const (
	ColorAuto Color = "auto"
	ColorNone Color = "none"
	ColorANSI Color = "ansi"
)

// Options mirrors the subset of CLI flags that affect log rendering.
type Options struct {
	Quiet   int  // number of -q occurrences: 1 suppresses info, 2 suppresses warnings too
	Verbose int  // number of -v occurrences: 1 keeps info, 2 debug, 3 trace
	Format  Format
	Color   Color
	Output  io.Writer // defaults to os.Stderr
}

// New builds a *logrus.Logger configured per opts.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	if opts.Output != nil {
		log.SetOutput(opts.Output)
	} else {
		log.SetOutput(os.Stderr)
	}

	switch {
	case opts.Quiet >= 2:
		log.SetLevel(logrus.ErrorLevel)
	case opts.Quiet == 1:
		log.SetLevel(logrus.WarnLevel)
	case opts.Verbose >= 3:
		log.SetLevel(logrus.TraceLevel)
	case opts.Verbose == 2:
		log.SetLevel(logrus.DebugLevel)
	case opts.Verbose == 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	formatter := &logrus.TextFormatter{}
	switch opts.Format {
	case FormatMsg:
		formatter.DisableTimestamp = true
		formatter.DisableLevelTruncation = true
		formatter.DisableQuote = true
	case FormatLevelMsg:
		formatter.DisableTimestamp = true
	case FormatTimeLevelFuncMsg:
		log.SetReportCaller(true)
	case FormatTimeLevelMsg, "":
		// default TextFormatter already prints time+level+msg
	}

	switch opts.Color {
	case ColorNone:
		formatter.DisableColors = true
	case ColorANSI:
		formatter.ForceColors = true
	case ColorAuto, "":
		// let logrus auto-detect via terminal check
	}

	log.SetFormatter(formatter)
	return log
}
