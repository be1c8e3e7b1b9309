package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// JobStatus represents the state of a normalization job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusReading     JobStatus = "reading"
	StatusNormalizing JobStatus = "normalizing"
	StatusWriting     JobStatus = "writing"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks the normalization of one document, read either from Path or
// from uploaded bytes.
type Job struct {
	mu sync.Mutex

	ID    string `json:"job_id"`
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Write bool   `json:"write"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	InputHash  string    `json:"input_hash,omitempty"`
	OutputHash string    `json:"output_hash,omitempty"`
	Changed    bool      `json:"changed"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Internal: not serialized.
	input  []byte
	output string
	err    error
	errors []string
	done   chan struct{}
}

// Progress tracks what happened to nested Markdown blocks.
type Progress struct {
	Eligible       int      `json:"eligible"`
	Rewritten      int      `json:"rewritten"`
	NestedFailures int      `json:"nested_failures"`
	Errors         []string `json:"errors"`
}

// NewJob creates a queued job. ID is derived from name and creation time.
func NewJob(name string) *Job {
	now := time.Now()
	return &Job{
		ID:        ContentHashHex([]byte(fmt.Sprintf("%s-%d", name, now.UnixNano())))[:20],
		Name:      name,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
		done:      make(chan struct{}),
	}
}

// NewFileJob creates a job that reads path and, if write is set, writes the
// result back to it.
func NewFileJob(path string, write bool) *Job {
	job := NewJob(path)
	job.Path = path
	job.Write = write
	return job
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs not updated within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically. Moving to a terminal status
// releases anyone blocked on Done.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return
	}
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
	if status.Terminal() && j.done != nil {
		close(j.done)
	}
}

// Fail records err and marks the job failed.
func (j *Job) Fail(phase string, err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	j.AddError(err.Error())
	j.SetStatus(StatusFailed, phase)
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetCounts records nested block counts from a normalization run.
func (j *Job) SetCounts(eligible, rewritten, failures int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Eligible = eligible
	j.Progress.Rewritten = rewritten
	j.Progress.NestedFailures = failures
	j.UpdatedAt = time.Now()
}

// SetInput sets the raw document bytes for jobs without a Path.
func (j *Job) SetInput(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.input = data
	j.InputHash = ContentHashHex(data)
}

// Input returns the raw document bytes.
func (j *Job) Input() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.input
}

// SetOutput stores the normalized text and whether it differs from the input.
func (j *Job) SetOutput(out string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.output = out
	j.OutputHash = ContentHashHex([]byte(out))
	j.Changed = j.OutputHash != j.InputHash
	j.UpdatedAt = time.Now()
}

// Output returns the normalized text.
func (j *Job) Output() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.output
}

// Err returns the error that failed the job, if any.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done is closed once the job completes or fails.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	Name      string    `json:"name"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Changed   bool      `json:"changed"`
	Progress  Progress  `json:"progress"`
	Output    string    `json:"output,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state. Output is included
// once the job has completed.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	snap := JobSnapshot{
		ID:      j.ID,
		Name:    j.Name,
		Status:  j.Status,
		Phase:   j.Phase,
		Changed: j.Changed,
		Progress: Progress{
			Eligible:       j.Progress.Eligible,
			Rewritten:      j.Progress.Rewritten,
			NestedFailures: j.Progress.NestedFailures,
			Errors:         errs,
		},
		UpdatedAt: j.UpdatedAt,
	}
	if j.Status == StatusCompleted {
		snap.Output = j.output
	}
	return snap
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
