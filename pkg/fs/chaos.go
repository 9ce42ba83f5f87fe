package fs

import (
	"io/fs"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
type ChaosConfig struct {
	// Read faults
	ReadFailRate float64 // Fail read operations on open files
	OpenFailRate float64 // Fail Open/OpenFile/ReadFile

	// Write faults
	WriteFailRate float64 // Fail write operations on open files

	// Other faults
	ReadDirFailRate float64 // Fail ReadDir
	MkdirFailRate   float64 // Fail MkdirAll
	RemoveFailRate  float64 // Fail Remove/RemoveAll
	RenameFailRate  float64 // Fail Rename
	StatFailRate    float64 // Fail Stat/Exists
	ChtimesFailRate float64 // Fail Chtimes
}

// DefaultChaosConfig returns a config with reasonable fault rates for testing.
func DefaultChaosConfig() ChaosConfig {
	return ChaosConfig{
		ReadFailRate:    0.02,
		OpenFailRate:    0.02,
		WriteFailRate:   0.02,
		ReadDirFailRate: 0.02,
		MkdirFailRate:   0.01,
		RemoveFailRate:  0.02,
		RenameFailRate:  0.02,
		StatFailRate:    0.01,
		ChtimesFailRate: 0.01,
	}
}

// ChaosMode controls how Chaos behaves.
type ChaosMode uint8

const (
	// ChaosModePassthrough behaves like the underlying FS.
	// Fault rates are ignored. This is the zero value and the default.
	ChaosModePassthrough ChaosMode = iota

	// ChaosModeInject enables fault-rate injection.
	ChaosModeInject
)

// Chaos wraps an [FS] and injects random failures for testing.
//
// Errors are reality-aware: ENOENT is only injected when the file really
// does not exist on the underlying filesystem, so callers that branch on
// [os.IsNotExist] behave the same as against real faults.
//
// All injected errors are real OS errors (a syscall.Errno wrapped in an
// *fs.PathError), so errors.Is() and os.IsNotExist() work correctly.
// Use [IsInjected] in tests to distinguish injected errors from real ones.
//
// Use [Chaos.SetMode] to control behavior.
// Use [Chaos.Stats] to inspect how many faults were injected.
type Chaos struct {
	fs     FS
	config ChaosConfig
	mode   atomic.Uint32

	mu  sync.Mutex
	rng *rand.Rand

	// Counters for testing verification
	openFails    atomic.Int64
	readFails    atomic.Int64
	writeFails   atomic.Int64
	readDirFails atomic.Int64
	mkdirFails   atomic.Int64
	removeFails  atomic.Int64
	renameFails  atomic.Int64
	statFails    atomic.Int64
	chtimesFails atomic.Int64
}

// NewChaos creates a new Chaos filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
func NewChaos(fsys FS, seed int64, config ChaosConfig) *Chaos {
	return &Chaos{
		fs:     fsys,
		rng:    rand.New(rand.NewSource(seed)), //nolint:gosec // reproducible test randomness
		config: config,
	}
}

// SetMode updates Chaos behavior.
//
// SetMode is safe to call concurrently with filesystem operations.
// The zero value (and default for a new [Chaos]) is [ChaosModePassthrough].
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	OpenFails    int64
	ReadFails    int64
	WriteFails   int64
	ReadDirFails int64
	MkdirFails   int64
	RemoveFails  int64
	RenameFails  int64
	StatFails    int64
	ChtimesFails int64
}

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:    c.openFails.Load(),
		ReadFails:    c.readFails.Load(),
		WriteFails:   c.writeFails.Load(),
		ReadDirFails: c.readDirFails.Load(),
		MkdirFails:   c.mkdirFails.Load(),
		RemoveFails:  c.removeFails.Load(),
		RenameFails:  c.renameFails.Load(),
		StatFails:    c.statFails.Load(),
		ChtimesFails: c.chtimesFails.Load(),
	}
}

// TotalFaults returns the total number of injected faults.
func (c *Chaos) TotalFaults() int64 {
	s := c.Stats()

	return s.OpenFails + s.ReadFails + s.WriteFails + s.ReadDirFails +
		s.MkdirFails + s.RemoveFails + s.RenameFails + s.StatFails +
		s.ChtimesFails
}

// should returns true with the given probability when chaos is injecting.
func (c *Chaos) should(rate float64) bool {
	if ChaosMode(c.mode.Load()) != ChaosModeInject {
		return false
	}

	c.mu.Lock()
	roll := c.rng.Float64()
	c.mu.Unlock()

	return roll < rate
}

// pickErrno selects an errno that is logically consistent with the real
// state of the path: ENOENT is only valid when the path does not exist.
func (c *Chaos) pickErrno(path string, withENOENT bool) syscall.Errno {
	if withENOENT {
		exists, err := c.fs.Exists(path)
		if err == nil && !exists {
			return syscall.ENOENT
		}
	}

	valid := []syscall.Errno{syscall.EIO, syscall.EACCES, syscall.ENOSPC}

	c.mu.Lock()
	errno := valid[c.rng.Intn(len(valid))]
	c.mu.Unlock()

	return errno
}

// pathError creates an *fs.PathError matching what the real OS returns,
// so errors.Is() and os.IsNotExist() work correctly.
func pathError(op, path string, errno syscall.Errno) error {
	pe := &fs.PathError{Op: op, Path: path, Err: errno}
	markInjectedPathError(pe)

	return pe
}

// --- File Operations ---

func (c *Chaos) Open(path string) (File, error) {
	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		return nil, pathError("open", path, c.pickErrno(path, true))
	}

	f, err := c.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, chaos: c, path: path}, nil
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		// O_CREATE opens cannot fail with ENOENT for the file itself.
		return nil, pathError("open", path, c.pickErrno(path, flag&os.O_CREATE == 0))
	}

	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, chaos: c, path: path}, nil
}

func (c *Chaos) ReadFile(path string) ([]byte, error) {
	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		return nil, pathError("open", path, c.pickErrno(path, true))
	}

	return c.fs.ReadFile(path)
}

// --- Directory Operations ---

func (c *Chaos) ReadDir(path string) ([]os.DirEntry, error) {
	if c.should(c.config.ReadDirFailRate) {
		c.readDirFails.Add(1)

		return nil, pathError("readdirent", path, c.pickErrno(path, true))
	}

	return c.fs.ReadDir(path)
}

func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	if c.should(c.config.MkdirFailRate) {
		c.mkdirFails.Add(1)

		return pathError("mkdir", path, c.pickErrno(path, false))
	}

	return c.fs.MkdirAll(path, perm)
}

// --- Metadata ---

func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	if c.should(c.config.StatFailRate) {
		c.statFails.Add(1)

		return nil, pathError("stat", path, c.pickErrno(path, true))
	}

	return c.fs.Stat(path)
}

func (c *Chaos) Exists(path string) (bool, error) {
	if c.should(c.config.StatFailRate) {
		c.statFails.Add(1)

		return false, pathError("stat", path, syscall.EIO)
	}

	return c.fs.Exists(path)
}

// --- Mutations ---

func (c *Chaos) Remove(path string) error {
	if c.should(c.config.RemoveFailRate) {
		c.removeFails.Add(1)

		return pathError("remove", path, c.pickErrno(path, true))
	}

	return c.fs.Remove(path)
}

func (c *Chaos) RemoveAll(path string) error {
	if c.should(c.config.RemoveFailRate) {
		c.removeFails.Add(1)

		// RemoveAll never reports ENOENT.
		return pathError("removeall", path, c.pickErrno(path, false))
	}

	return c.fs.RemoveAll(path)
}

func (c *Chaos) Rename(oldpath, newpath string) error {
	if c.should(c.config.RenameFailRate) {
		c.renameFails.Add(1)

		return pathError("rename", oldpath, c.pickErrno(oldpath, true))
	}

	return c.fs.Rename(oldpath, newpath)
}

func (c *Chaos) Chtimes(path string, atime, mtime time.Time) error {
	if c.should(c.config.ChtimesFailRate) {
		c.chtimesFails.Add(1)

		return pathError("chtimes", path, c.pickErrno(path, true))
	}

	return c.fs.Chtimes(path, atime, mtime)
}

// --- File wrapper ---

// chaosFile wraps a [File] and injects read/write failures.
type chaosFile struct {
	f     File
	chaos *Chaos
	path  string
}

func (cf *chaosFile) Read(p []byte) (int, error) {
	if cf.chaos.should(cf.chaos.config.ReadFailRate) {
		cf.chaos.readFails.Add(1)

		// Reads of an open file cannot fail with ENOENT.
		return 0, pathError("read", cf.path, syscall.EIO)
	}

	return cf.f.Read(p)
}

func (cf *chaosFile) Write(p []byte) (int, error) {
	if cf.chaos.should(cf.chaos.config.WriteFailRate) {
		cf.chaos.writeFails.Add(1)

		return 0, pathError("write", cf.path, syscall.ENOSPC)
	}

	return cf.f.Write(p)
}

func (cf *chaosFile) Seek(offset int64, whence int) (int64, error) {
	return cf.f.Seek(offset, whence)
}

func (cf *chaosFile) Close() error {
	return cf.f.Close()
}

func (cf *chaosFile) Stat() (os.FileInfo, error) {
	return cf.f.Stat()
}

func (cf *chaosFile) Sync() error {
	if cf.chaos.should(cf.chaos.config.WriteFailRate) {
		cf.chaos.writeFails.Add(1)

		return pathError("sync", cf.path, syscall.EIO)
	}

	return cf.f.Sync()
}

// Compile-time interface checks.
var (
	_ FS   = (*Chaos)(nil)
	_ File = (*chaosFile)(nil)
)
