// Package diskspace answers free-space questions about the volume holding a
// path and turns them into admit/reject decisions.
package diskspace

import (
	"os"

	"github.com/shirou/gopsutil/v3/disk"
)

// Usage is a volume's size in bytes.
type Usage struct {
	Total uint64
	Used  uint64
	Free  uint64
}

// Decision is the outcome of an admission check.
type Decision int

const (
	// Unavailable means the volume could not be queried; callers skip the check.
	Unavailable Decision = iota
	Admitted
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Admitted:
		return "admitted"
	case Rejected:
		return "rejected"
	default:
		return "unavailable"
	}
}

// Checker issues admission decisions for a path.
type Checker interface {
	Admit(path string, minFree uint64) Decision
}

// UsageFunc queries a volume. It exists so tests can inject readings.
type UsageFunc func(path string) (Usage, error)

// Guard is a stateless DiskSpaceGuard backed by gopsutil.
type Guard struct {
	usage UsageFunc
}

// NewGuard creates a guard reading real volume statistics.
func NewGuard() *Guard {
	return &Guard{usage: gopsutilUsage}
}

// NewGuardWith creates a guard over a custom usage source.
func NewGuardWith(fn UsageFunc) *Guard {
	return &Guard{usage: fn}
}

// Usage returns the volume usage for path. ok is false when the path does not
// exist or the volume cannot be queried.
func (g *Guard) Usage(path string) (Usage, bool) {
	if _, err := os.Stat(path); err != nil {
		return Usage{}, false
	}
	u, err := g.usage(path)
	if err != nil {
		return Usage{}, false
	}
	return u, true
}

// Admit reports whether the volume holding path has at least minFree bytes free.
func (g *Guard) Admit(path string, minFree uint64) Decision {
	u, ok := g.Usage(path)
	if !ok {
		return Unavailable
	}
	if u.Free < minFree {
		return Rejected
	}
	return Admitted
}

func gopsutilUsage(path string) (Usage, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Total: stat.Total, Used: stat.Used, Free: stat.Free}, nil
}
