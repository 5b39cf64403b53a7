// Package cli wires fsremap's cobra command tree (grounded on
// _examples/dsmmcken-dh-cli/go_src/internal/cmd/root.go's NewRootCmd/Execute
// pattern): logging/config flags on the root command, a default
// RunE that performs one remap, and a "doctor" subcommand for environment checks.
package cli

import (
	"fmt"
	"os"

	"github.com/asaskevich/govalidator"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fstransform/fsremap/internal/config"
	"github.com/fstransform/fsremap/internal/logging"
)

// defaults resolves the built-in flag defaults, overridden by whatever
// config.Load finds in config.toml. A missing or unreadable config file
// falls back to fsremap's built-in defaults untouched. config.toml is looked
// up through config.Home, which honours FSREMAP_HOME; --job-dir is applied
// only later, by PersistentPreRunE, so it does not change which config.toml
// is read.
func defaults() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}
	if cfg.IOBackend == "" {
		cfg.IOBackend = "posix"
	}
	if cfg.ClearFreeSpace == "" {
		cfg.ClearFreeSpace = "minimal"
	}
	return cfg
}

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	forceRun     bool
	simulateRun  bool
	ioBackend    string
	memBuffer    string
	secondary    string
	primary      string
	storageTotal string
	clearMode    string
	jobID        uint64
	jobDirFlag   string

	quietCount   int
	verboseCount int
	logColor     string
	logFormat    string
)

// NewRootCmd builds the fsremap command tree.
func NewRootCmd() *cobra.Command {
	root := newRootCmd()
	root.AddCommand(newDoctorCmd())
	return root
}

func newRootCmd() *cobra.Command {
	cfg := defaults()

	root := &cobra.Command{
		Use:           "fsremap [OPTIONS] DEVICE LOOP-FILE [ZERO-FILE]",
		Short:         "Block-remapping filesystem relocation engine",
		Long:          "fsremap relocates a loop-mounted filesystem's blocks to shrink the space its old copy occupies on DEVICE, using bounded scratch storage.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.RangeArgs(2, 3),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if quietCount > 0 && verboseCount > 0 {
				return fmt.Errorf("--quiet and --verbose are mutually exclusive")
			}
			if logColor != "" && !govalidator.IsIn(logColor, "auto", "none", "ansi") {
				return fmt.Errorf("--log-color must be one of auto|none|ansi, got %q", logColor)
			}
			if logFormat != "" && !govalidator.IsIn(logFormat, "msg", "level_msg", "time_level_msg", "time_level_function_msg") {
				return fmt.Errorf("--log-format must be one of msg|level_msg|time_level_msg|time_level_function_msg, got %q", logFormat)
			}
			if !govalidator.IsIn(ioBackend, "posix", "test", "self-test") {
				return fmt.Errorf("--io must be one of posix|test|self-test, got %q", ioBackend)
			}
			if clearMode != "" && !govalidator.IsIn(clearMode, "all", "minimal", "none") {
				return fmt.Errorf("--x-clear must be one of all|minimal|none, got %q", clearMode)
			}
			// A job_dir from config.toml is only the flag's default, so it
			// yields to FSREMAP_HOME; an explicit --job-dir beats both.
			if jobDirFlag != "" && (cmd.Flags().Changed("job-dir") || os.Getenv("FSREMAP_HOME") == "") {
				config.SetHome(jobDirFlag)
			}
			return nil
		},
		RunE: runRemap,
	}

	root.SetVersionTemplate("fsremap {{.Version}}\n")

	memBufferDefault := ""
	if cfg.MemBufferBytes > 0 {
		memBufferDefault = fmt.Sprintf("%d", cfg.MemBufferBytes)
	}

	flags := root.Flags()
	flags.BoolVarP(&forceRun, "force-run", "f", false, "demote sanity-check failures to warnings")
	flags.BoolVarP(&simulateRun, "no-action", "n", false, "skip all block reads/writes; run scheduler against a null backend")
	flags.BoolVar(&simulateRun, "simulate-run", false, "alias for --no-action")
	flags.StringVar(&ioBackend, "io", cfg.IOBackend, "I/O backend: posix|test|self-test")
	flags.StringVar(&memBuffer, "mem-buffer", memBufferDefault, "upper bound on RAM scratch, e.g. 64M")
	flags.StringVar(&secondary, "secondary-storage", "", "force secondary-storage size")
	flags.StringVar(&primary, "primary-storage", "", "force primary-storage size")
	flags.StringVar(&storageTotal, "storage", "", "force total scratch size (primary + secondary)")
	flags.StringVar(&clearMode, "x-clear", cfg.ClearFreeSpace, "free-space clearing mode all|minimal|none; recorded in the job descriptor, no clearing pass is run")
	flags.Uint64Var(&jobID, "job-id", 0, "use an explicit job id")
	flags.StringVar(&jobDirFlag, "job-dir", cfg.JobDir, "root for job directories (default ~/.fstransform)")

	flags.CountVarP(&quietCount, "quiet", "q", "decrease log verbosity (repeatable: -q, -qq)")
	flags.CountVarP(&verboseCount, "verbose", "v", "increase log verbosity (repeatable: -v, -vv, -vvv)")
	flags.StringVar(&logColor, "log-color", "auto", "log color: auto|none|ansi")
	flags.StringVar(&logFormat, "log-format", "level_msg", "log format: msg|level_msg|time_level_msg|time_level_function_msg")

	return root
}

// Execute runs the fsremap command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func newLogger(cmd *cobra.Command) *logrus.Logger {
	return logging.New(logging.Options{
		Quiet:   quietCount,
		Verbose: verboseCount,
		Format:  logging.Format(logFormat),
		Color:   logging.Color(logColor),
		Output:  cmd.ErrOrStderr(),
	})
}
