package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job describes one document conversion request.
type Job struct {
	ID          uuid.UUID
	Source      string // PDF to convert
	Destination string // final archive path
}

// Workspace is the job-owned working tree. It is created at job start and
// removed at job end regardless of outcome.
type Workspace struct {
	Root      string
	RasterDir string // intermediate images
	PackDir   string // compressed images, packed as-is into the archive
}

// IntermediateImage is one rasterized page waiting to be transcoded.
type IntermediateImage struct {
	Path     string
	Page     int // 1-based page number in the source document
	Token    string
	Sequence int // zero-based, assigned after global ordering
}

// CompressedImage is one transcoded page.
type CompressedImage struct {
	Path string
	Size int64
}

// Stage identifies a pipeline stage transition.
type Stage string

const (
	StageExtracting    Stage = "extracting"
	StageConverting    Stage = "converting"
	StageRecompressing Stage = "recompressing"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

// StageEvent is emitted to the progress sink on every stage transition.
type StageEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	Source    string    `json:"source"`
	Stage     Stage     `json:"stage"`
	Reason    Reason    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// String renders the event the way a presentation layer shows it, e.g.
// "failed:files missing".
func (e StageEvent) String() string {
	if e.Stage == StageFailed && e.Reason != "" {
		return fmt.Sprintf("%s:%s", e.Stage, e.Reason)
	}
	return string(e.Stage)
}

// Status is the terminal state of a job.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is the outcome of one conversion job.
type Result struct {
	JobID       uuid.UUID
	Source      string
	Destination string
	Fingerprint string
	Status      Status
	Reason      Reason
	Pages       int // intermediate images produced
	Transcoded  int // compressed images that made it into the pack directory
	Sharded     bool
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Succeeded reports whether the archive was committed to its destination.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSucceeded
}
