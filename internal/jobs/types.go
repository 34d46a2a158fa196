package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeLedgerRun replays one transaction file into a fresh ledger.
	JobTypeLedgerRun JobType = "ledger_run"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ErrJobNotFound is returned by stores for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// LedgerRunJob is a single ledger run submitted to the service.
// Every run gets its own ledger; jobs never share account state.
type LedgerRunJob struct {
	// JobID is the unique identifier for this job. It doubles as the run ID.
	JobID string `json:"job_id"`

	// Source is the gs:// URI to read, or empty when Input carries the CSV.
	Source string `json:"source,omitempty"`

	// InputName is a display name for the input file.
	InputName string `json:"input_name,omitempty"`

	// Input is the uploaded CSV body.
	Input []byte `json:"-"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	// Applied is the number of records applied by the last attempt.
	Applied int `json:"applied"`

	// Accounts is the final snapshot of a completed run.
	Accounts []domain.AccountState `json:"accounts,omitempty"`

	// Report is the rendered CSV of a completed run.
	Report []byte `json:"-"`
}

// Clone returns a copy that can be handed to another goroutine.
// Input is shared since it is never written after submission.
func (j *LedgerRunJob) Clone() *LedgerRunJob {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Accounts != nil {
		c.Accounts = append(c.Accounts[:0:0], j.Accounts...)
	}
	if j.Report != nil {
		c.Report = append([]byte(nil), j.Report...)
	}
	return &c
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *LedgerRunJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *LedgerRunJob) GetType() JobType {
	return JobTypeLedgerRun
}

// GetStatus implements the Job interface.
func (j *LedgerRunJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishLedgerRun publishes a ledger run job.
	PublishLedgerRun(ctx context.Context, job *LedgerRunJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// Returned errors are retried unless wrapped with Permanent.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *LedgerRunJob) error

	// GetJob retrieves a job by ID. Unknown IDs yield ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*LedgerRunJob, error)

	// ListJobs retrieves jobs with optional filtering, oldest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*LedgerRunJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
