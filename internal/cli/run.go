package cli

import (
	"crypto/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fstransform/fsremap/internal/analyzer"
	"github.com/fstransform/fsremap/internal/ferr"
	"github.com/fstransform/fsremap/internal/humanize"
	"github.com/fstransform/fsremap/internal/ioengine"
	"github.com/fstransform/fsremap/internal/jobdir"
	"github.com/fstransform/fsremap/internal/progress"
	"github.com/fstransform/fsremap/internal/scheduler"
	"github.com/fstransform/fsremap/internal/storage"
)

// runRemap is the default command's RunE: open a backend for the requested
// DEVICE/LOOP-FILE/ZERO-FILE triple, run the analyzer, plan scratch storage,
// and drain the relocation map through the scheduler. Any *ferr.Error that
// reached this point without being marked Reported gets the spec.md §7
// catch-all log line before the process exits non-zero.
func runRemap(cmd *cobra.Command, args []string) error {
	log := newLogger(cmd)

	job, err := jobdir.Acquire(jobID)
	if err != nil {
		return logUnreported(log, ferr.Wrap(ferr.IO, err, "acquiring job directory"))
	}
	defer job.Release()
	log.Infof("job %d: persistent storage in %s", job.ID(), job.Path())

	if prior, err := job.LoadDescriptor(); err == nil && prior.RunToken != "" {
		log.Infof("job %d: found the descriptor of earlier run %s in this job directory", job.ID(), prior.RunToken)
	}

	descriptor := &jobdir.Descriptor{
		ID:             job.ID(),
		RunToken:       jobdir.NewRunToken(rand.Reader),
		ForceRun:       forceRun,
		SimulateRun:    simulateRun,
		ClearFreeSpace: clearMode,
	}
	if err := job.SaveDescriptor(descriptor); err != nil {
		return logUnreported(log, ferr.Wrap(ferr.IO, err, "persisting job descriptor"))
	}

	backend, devLengthBytes, err := openBackend(args)
	if err != nil {
		return logUnreported(log, err)
	}
	defer backend.Close()

	loopFileExtents, freeSpaceExtents, _, err := backend.ReadExtents()
	if err != nil {
		return logUnreported(log, ferr.Wrap(ferr.IO, err, "reading extents"))
	}

	if simulateRun {
		backend = ioengine.NewNullBackend(backend.EffectiveBlockSizeLog2(), devLengthBytes, loopFileExtents, freeSpaceExtents)
	}

	result, err := analyzer.Analyze(loopFileExtents, freeSpaceExtents, devLengthBytes, 4096, log)
	if err != nil {
		return logUnreported(log, err)
	}
	if err := job.SaveRelocation(result.RelocationMap); err != nil {
		return logUnreported(log, ferr.Wrap(ferr.IO, err, "persisting relocation map"))
	}

	if result.WorkCount == 0 {
		log.Info("nothing to relocate")
		return nil
	}

	plan, err := planStorage(result)
	if err != nil {
		return logUnreported(log, err)
	}
	if err := backend.CreateStorage(plan.SecondaryLength); err != nil {
		return logUnreported(log, ferr.Wrap(ferr.IO, err, "creating secondary storage"))
	}
	log.Infof("scratch storage: %s primary, %s secondary",
		humanize.Count(uint64(len(plan.PrimaryExtents)), "fragments"),
		humanize.PrettySizeString(plan.SecondaryLength))

	sched := scheduler.New(backend, result.RelocationMap, plan, forceRun, log)

	var reporter *progress.Reporter
	if verboseCount == 0 && quietCount == 0 {
		reporter = progress.NewReporter(cmd.ErrOrStderr(), sched.WorkCount())
		defer reporter.Close()
	}

	runErr := sched.Run(cmd.Context().Done())
	if saveErr := job.SaveRelocation(result.RelocationMap); saveErr != nil {
		log.WithError(saveErr).Warn("failed to persist relocation map after run")
	}
	if runErr != nil {
		return logUnreported(log, runErr)
	}
	if warnings := sched.Warnings(); warnings != nil {
		log.Warnf("force mode: %v", warnings)
	}

	log.Info("relocation completed successfully")
	return nil
}

func logUnreported(log *logrus.Logger, err error) error {
	if !ferr.IsReported(err) {
		log.Errorf("failed with unreported error: %v", err)
	}
	return err
}

func openBackend(args []string) (ioengine.Backend, uint64, error) {
	switch ioBackend {
	case "self-test":
		b := ioengine.NewSelfTestBackend(time.Now().UnixNano())
		if err := b.Open(); err != nil {
			return nil, 0, ferr.Wrap(ferr.IO, err, "opening self-test backend")
		}
		return b, b.DeviceLengthBytes(), nil
	case "test":
		if len(args) < 3 {
			return nil, 0, ferr.New(ferr.InvalidInput, "--io=test requires DEVICE LOOP-EXTENTS-FILE FREE-SPACE-EXTENTS-FILE")
		}
		b := ioengine.NewTestBackend(args[1], args[2], 0)
		if err := b.Open(); err != nil {
			return nil, 0, ferr.Wrap(ferr.IO, err, "opening test backend")
		}
		return b, b.DeviceLengthBytes(), nil
	default:
		if len(args) < 2 {
			return nil, 0, ferr.New(ferr.InvalidInput, "usage: fsremap [OPTIONS] DEVICE LOOP-FILE [ZERO-FILE]")
		}
		zeroFile := args[0]
		if len(args) >= 3 {
			zeroFile = args[2]
		}
		b := ioengine.NewPosixBackend(args[0], args[1], zeroFile, nil)
		if err := b.Open(); err != nil {
			return nil, 0, ferr.Wrap(ferr.IO, err, "opening posix backend")
		}
		return b, b.DeviceLengthBytes(), nil
	}
}

// planStorage runs the spec.md §4.4 budget formula, then applies any
// explicit --primary-storage/--secondary-storage overrides on top of its
// output (spec.md §6: both force an exact size rather than participate in
// auto-detection).
func planStorage(result *analyzer.Result) (storage.Plan, error) {
	blockSize := uint64(1) << result.EffBlockSizeLog2

	b := storage.Budget{
		WorkCount: result.WorkCount,
		BlockSize: blockSize,
		PageSize:  4096,
	}

	if storageTotal != "" {
		n, err := humanize.ParseSize(storageTotal)
		if err != nil {
			return storage.Plan{}, ferr.Wrap(ferr.InvalidInput, err, "--storage")
		}
		b.UserTotal = n
	} else if memBuffer != "" {
		n, err := humanize.ParseSize(memBuffer)
		if err != nil {
			return storage.Plan{}, ferr.Wrap(ferr.InvalidInput, err, "--mem-buffer")
		}
		b.UserTotal = n
	}

	plan := storage.PlanBudget(b, result.PrimaryCandidates)

	if primary != "" {
		n, err := humanize.ParseSize(primary)
		if err != nil {
			return storage.Plan{}, ferr.Wrap(ferr.InvalidInput, err, "--primary-storage")
		}
		plan.PrimaryExtents = storage.TakePrefix(result.PrimaryCandidates, n, blockSize)
	}
	if secondary != "" {
		n, err := humanize.ParseSize(secondary)
		if err != nil {
			return storage.Plan{}, ferr.Wrap(ferr.InvalidInput, err, "--secondary-storage")
		}
		plan.SecondaryLength = n
	}

	return plan, nil
}
