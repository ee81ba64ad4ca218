package archive

import (
	"fmt"
	"os"
	"path/filepath"
)

// Staged is a two-phase write: content is built at a temporary path next to
// the final one (same directory, so the same volume), verified by the
// caller, then renamed over the final path. Until Commit the final path is
// never touched.
type Staged struct {
	final     string
	temp      string
	committed bool
}

// Stage reserves a unique temporary path alongside final.
func Stage(final string) (*Staged, error) {
	dir, base := filepath.Split(final)
	if dir == "" {
		dir = "."
	}

	f, err := os.CreateTemp(dir, "."+base+".tmp.*")
	if err != nil {
		return nil, fmt.Errorf("reserve staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("reserve staging file: %w", err)
	}

	return &Staged{final: final, temp: f.Name()}, nil
}

// Path returns the temporary path to build into.
func (s *Staged) Path() string {
	return s.temp
}

// Final returns the destination path.
func (s *Staged) Final() string {
	return s.final
}

// Commit atomically replaces the final path with the staged file. The
// result keeps the permissions of the file it replaces, or 0644 when the
// final path is new.
func (s *Staged) Commit() error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(s.final); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.Chmod(s.temp, mode); err != nil {
		return fmt.Errorf("set mode on %s: %w", s.temp, err)
	}

	if err := os.Rename(s.temp, s.final); err != nil {
		return fmt.Errorf("commit %s: %w", s.final, err)
	}
	s.committed = true
	return nil
}

// Abort removes the staged file. It is a no-op after Commit.
func (s *Staged) Abort() {
	if s.committed {
		return
	}
	_ = os.Remove(s.temp)
}
