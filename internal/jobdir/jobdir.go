// Package jobdir implements the engine's crash-recoverable job directory
// (spec.md §4.7, component C9): allocating/locking a numbered job directory
// under the fsremap home, and persisting the relocation and storage extent
// maps and the run descriptor to and from disk; free-space extents are not
// persisted (grounded on ft_job::init in _examples/original_source/src/job.cc).
package jobdir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/oklog/ulid"
	"golang.org/x/sys/unix"

	"github.com/fstransform/fsremap/internal/config"
	"github.com/fstransform/fsremap/internal/extent"
	"github.com/fstransform/fsremap/internal/ioengine"
)

const (
	relocationFileName = "relocation-extents"
	storageFileName    = "storage-extents"
	descriptorFileName = "descriptor.json"
	lockFileName       = "lock"
	logFileName        = "fsremap.log"
)

// Descriptor is the metadata persisted alongside the extent files,
// identifying a resumable run.
type Descriptor struct {
	ID             uint64 `mapstructure:"id"`
	RunToken       string `mapstructure:"run_token"`
	ForceRun       bool   `mapstructure:"force_run"`
	SimulateRun    bool   `mapstructure:"simulate_run"`
	ClearFreeSpace string `mapstructure:"clear_free_space"`
}

// JobDir represents an acquired, locked job directory.
type JobDir struct {
	path    string
	id      uint64
	lockFD  int
	logFile *os.File
}

// Acquire locates a free job directory (or the one matching requestedID, if
// non-zero) under config.Home(), creates it, takes an exclusive advisory
// lock, and opens its log file. Mirrors ft_job::init's linear-scan-for-a-
// free-slot behavior.
func Acquire(requestedID uint64) (*JobDir, error) {
	if err := config.EnsureHome(); err != nil {
		return nil, fmt.Errorf("jobdir: %w", err)
	}

	jobMin, jobMax := uint64(1), ^uint64(0)
	if requestedID != 0 {
		jobMin, jobMax = requestedID, requestedID+1
	}

	var lastErr error
	for id := jobMin; id != jobMax; id++ {
		dir := jobPath(id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			lastErr = err
			continue
		}
		jd, err := tryLock(dir, id)
		if err != nil {
			lastErr = err
			continue
		}
		return jd, nil
	}
	if requestedID != 0 {
		return nil, fmt.Errorf("jobdir: failed to acquire job id %d: %w", requestedID, lastErr)
	}
	return nil, fmt.Errorf("jobdir: failed to locate a free job id in range %d..%d: %w", jobMin, jobMax-1, lastErr)
}

func jobPath(id uint64) string {
	return filepath.Join(config.Home(), fmt.Sprintf("job.%d", id))
}

func tryLock(dir string, id uint64) (*JobDir, error) {
	lockPath := filepath.Join(dir, lockFileName)
	fd, err := unix.Open(lockPath, unix.O_CREAT|unix.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %q: %w", lockPath, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("job directory %q is already locked by another run: %w", dir, err)
	}

	logFile, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		unix.Flock(fd, unix.LOCK_UN)
		unix.Close(fd)
		return nil, fmt.Errorf("opening job log: %w", err)
	}

	return &JobDir{path: dir, id: id, lockFD: fd, logFile: logFile}, nil
}

// ID returns the acquired job id.
func (j *JobDir) ID() uint64 { return j.id }

// Path returns the job directory's filesystem path.
func (j *JobDir) Path() string { return j.path }

// LogWriter exposes the job's append-only log file for the logging package
// to write to, mirroring ft_job::init_log's ff_log_register.
func (j *JobDir) LogWriter() *os.File { return j.logFile }

// NewRunToken mints a sortable, unique identifier for one scheduler run,
// stamped into the persisted Descriptor so a resumed run can be told apart
// from the run that crashed.
func NewRunToken(entropy ulid.EntropySource) string {
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// SaveRelocation persists the unified relocation map, overwriting any
// previous copy. runRemap calls it after the analyzer pass and once more
// after the scheduler run returns; it is not called between scheduler
// flushes.
func (j *JobDir) SaveRelocation(m *extent.Map) error {
	return j.writeExtentFile(relocationFileName, m.Entries())
}

// SaveStorage persists the in-flight storage_map (entries currently
// evicted to scratch, awaiting a STORAGE2DEV flush).
func (j *JobDir) SaveStorage(m *extent.Map) error {
	return j.writeExtentFile(storageFileName, m.Entries())
}

func (j *JobDir) writeExtentFile(name string, entries []extent.Extent) error {
	v := append(extent.Vector(nil), entries...)
	v.SortByPhysical()
	tmpPath := filepath.Join(j.path, name+".tmp")
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("jobdir: creating %s: %w", name, err)
	}
	if err := ioengine.WriteExtentFile(f, v); err != nil {
		f.Close()
		return fmt.Errorf("jobdir: writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("jobdir: closing %s: %w", name, err)
	}
	return os.Rename(tmpPath, filepath.Join(j.path, name))
}

// LoadRelocation reconstructs the relocation map from the job directory's
// persisted copy, for a resumed run. Returns an empty map if none exists yet.
func (j *JobDir) LoadRelocation() (*extent.Map, error) {
	return j.readExtentFile(relocationFileName)
}

// LoadStorage reconstructs the storage map from the job directory's
// persisted copy.
func (j *JobDir) LoadStorage() (*extent.Map, error) {
	return j.readExtentFile(storageFileName)
}

// SaveDescriptor persists d as the job directory's descriptor.json,
// overwriting any previous copy. Called once a run's RunToken is minted, so
// a crash mid-run leaves behind enough metadata (spec.md §4.7/§5) to tell a
// resumed invocation apart from the run that crashed.
func (j *JobDir) SaveDescriptor(d *Descriptor) error {
	raw := map[string]interface{}{
		"id":               d.ID,
		"run_token":        d.RunToken,
		"force_run":        d.ForceRun,
		"simulate_run":     d.SimulateRun,
		"clear_free_space": d.ClearFreeSpace,
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("jobdir: marshaling descriptor: %w", err)
	}
	tmpPath := filepath.Join(j.path, descriptorFileName+".tmp")
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("jobdir: writing descriptor: %w", err)
	}
	return os.Rename(tmpPath, filepath.Join(j.path, descriptorFileName))
}

// LoadDescriptor reconstructs the job's descriptor from its persisted,
// loosely-typed JSON form via mapstructure, so a resumed run can recover
// RunToken and the force/simulate/clear flags the crashed run was using.
// Returns a zero-value Descriptor if no descriptor was ever saved.
func (j *JobDir) LoadDescriptor() (*Descriptor, error) {
	data, err := os.ReadFile(filepath.Join(j.path, descriptorFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &Descriptor{}, nil
		}
		return nil, fmt.Errorf("jobdir: opening descriptor: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("jobdir: parsing descriptor: %w", err)
	}

	var d Descriptor
	if err := mapstructure.Decode(raw, &d); err != nil {
		return nil, fmt.Errorf("jobdir: decoding descriptor: %w", err)
	}
	return &d, nil
}

func (j *JobDir) readExtentFile(name string) (*extent.Map, error) {
	f, err := os.Open(filepath.Join(j.path, name))
	if err != nil {
		if os.IsNotExist(err) {
			return extent.NewMap(), nil
		}
		return nil, fmt.Errorf("jobdir: opening %s: %w", name, err)
	}
	defer f.Close()

	v, _, err := ioengine.ReadExtentFile(f)
	if err != nil {
		return nil, fmt.Errorf("jobdir: reading %s: %w", name, err)
	}
	m := extent.NewMap()
	for _, e := range v {
		m.InsertRaw(e)
	}
	return m, nil
}

// Release unlocks and closes the job directory's resources, in LIFO order
// of acquisition, per spec.md §5's cancellation contract.
func (j *JobDir) Release() error {
	var firstErr error
	if j.logFile != nil {
		if err := j.logFile.Close(); err != nil {
			firstErr = err
		}
		j.logFile = nil
	}
	if j.lockFD >= 0 {
		unix.Flock(j.lockFD, unix.LOCK_UN)
		if err := unix.Close(j.lockFD); err != nil && firstErr == nil {
			firstErr = err
		}
		j.lockFD = -1
	}
	return firstErr
}
