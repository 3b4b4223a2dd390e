package models

import (
	"errors"
	"fmt"
)

type JobState int

const (
	JobPending JobState = iota
	JobInFlight
	JobSucceeded
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobInFlight:
		return "in_flight"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	default:
		return fmt.Sprintf("JobState(%d)", int(s))
	}
}

func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

var ErrInvalidTransition = errors.New("invalid job state transition")

// DownloadJob binds one object to its product. State only moves forward:
// Pending -> InFlight -> Succeeded | Failed. Retries stay inside InFlight.
type DownloadJob struct {
	Product   Product
	Entry     ObjectEntry
	LocalPath string
	State     JobState
	Attempts  int
	UpToDate  bool
	Err       error
}

func NewDownloadJob(product Product, entry ObjectEntry, localPath string) *DownloadJob {
	return &DownloadJob{Product: product, Entry: entry, LocalPath: localPath}
}

func (j *DownloadJob) Start() error {
	if j.State != JobPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, JobInFlight)
	}
	j.State = JobInFlight
	return nil
}

func (j *DownloadJob) Succeed() error {
	if j.State != JobInFlight {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, JobSucceeded)
	}
	j.State = JobSucceeded
	return nil
}

// Fail moves a pending or in-flight job to Failed. A pending job can fail
// without ever starting, e.g. when the run is cancelled before a slot frees up.
func (j *DownloadJob) Fail(err error) error {
	if j.State.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, JobFailed)
	}
	j.State = JobFailed
	j.Err = err
	return nil
}

type FailureScope string

const (
	ScopePage    FailureScope = "page"
	ScopeProduct FailureScope = "product"
	ScopeObject  FailureScope = "object"
)

type Failure struct {
	Scope     FailureScope `json:"scope"`
	ProductID string       `json:"product_id,omitempty"`
	Product   string       `json:"product,omitempty"`
	Key       string       `json:"key,omitempty"`
	Kind      string       `json:"kind"`
	Reason    string       `json:"reason"`
}

type DownloadItem struct {
	Product   string `json:"product"`
	RemoteKey string `json:"remote_key"`
	LocalPath string `json:"local_path,omitempty"`
	Size      int64  `json:"size"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts,omitempty"`
}

// RunResult aggregates every job of a run. Failures are never dropped.
type RunResult struct {
	OutputDir        string         `json:"output_dir"`
	ListOnly         bool           `json:"list_only"`
	Products         int            `json:"products"`
	Succeeded        int            `json:"succeeded"`
	Failed           int            `json:"failed"`
	Skipped          int            `json:"skipped"`
	UpToDate         int            `json:"up_to_date"`
	TotalFiles       int            `json:"total_files"`
	TotalSizeBytes   int64          `json:"total_size_bytes"`
	TotalSizeHuman   string         `json:"total_size_human"`
	Items            []DownloadItem `json:"items"`
	Failures         []Failure      `json:"failures"`
	OperationTime    string         `json:"operation_time"`
	DownloadDuration string         `json:"download_duration"`
}
