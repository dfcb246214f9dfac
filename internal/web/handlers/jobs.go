package handlers

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/kozaktomas/photo-variants/internal/job"
	"github.com/kozaktomas/photo-variants/internal/orchestrator"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// errJobActive is returned when a user already has a job in flight.
var errJobActive = errors.New("a job is already running for this user")

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// VariantJob is a variant-generation run started over HTTP.
type VariantJob struct {
	EventBroadcaster

	ID          string
	UserID      string
	SessionID   string
	Status      JobStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Rejected    []string
	Suppressed  int
	Result      *JobResult

	job    *job.Job
	layout job.Layout
	token  *orchestrator.Token
}

// JobResult is the outcome of a finished run.
type JobResult struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	Written int    `json:"written"`
	Archive bool   `json:"archive"`
}

// JobView is the JSON shape of a job.
type JobView struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Status      JobStatus  `json:"status"`
	Phase       string     `json:"phase,omitempty"`
	Progress    int        `json:"progress"`
	N           int        `json:"n"`
	M           int        `json:"m"`
	Photos      int        `json:"photos"`
	Unique      int        `json:"unique_photos"`
	Suppressed  int        `json:"suppressed"`
	Rejected    []string   `json:"rejected,omitempty"`
	Watermark   bool       `json:"watermark"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
}

// GetStatus returns the current job status (implements SSEJob).
func (j *VariantJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

func (j *VariantJob) setStatus(s JobStatus) {
	j.mu.Lock()
	j.Status = s
	j.mu.Unlock()
}

// finish records the run outcome.
func (j *VariantJob) finish(res orchestrator.Result) JobStatus {
	now := time.Now()
	status := JobStatusCompleted
	switch res.Outcome {
	case orchestrator.Stopped:
		status = JobStatusCancelled
	case orchestrator.Failed:
		status = JobStatusFailed
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.CompletedAt = &now
	j.Result = &JobResult{
		Outcome: res.Outcome.String(),
		Reason:  res.Reason,
		Written: res.Written,
		Archive: res.ArchivePath != "",
	}
	return status
}

// Cancel requests a stop. The run stops at the next unit boundary.
func (j *VariantJob) Cancel() {
	j.mu.RLock()
	token := j.token
	j.mu.RUnlock()

	token.Cancel()
	j.SendEvent(JobEvent{Type: "cancelling", Message: "Stop requested"})
}

// View returns a consistent snapshot for JSON responses.
func (j *VariantJob) View() JobView {
	state := j.job.State()
	n, m := j.job.Params()

	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobView{
		ID:          j.ID,
		UserID:      j.UserID,
		Title:       j.job.Title,
		Status:      j.Status,
		Phase:       state.Phase,
		Progress:    state.Progress,
		N:           n,
		M:           m,
		Photos:      len(j.job.Photos),
		Unique:      len(j.job.Unique),
		Suppressed:  j.Suppressed,
		Rejected:    j.Rejected,
		Watermark:   j.job.Watermark != nil,
		Error:       state.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
}

// ArchivePath returns the finished archive, or "" while none exists.
func (j *VariantJob) ArchivePath() string {
	if j.GetStatus() != JobStatusCompleted {
		return ""
	}
	return j.job.GetArchivePath()
}

// JobManager tracks jobs and allows one active job per user.
type JobManager struct {
	jobs   map[string]*VariantJob
	active map[string]string // user ID -> job ID
	mu     sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:   make(map[string]*VariantJob),
		active: make(map[string]string),
	}
}

// Add registers j as the active job of its user. It fails with errJobActive
// when the user already has an unfinished job.
func (m *JobManager) Add(j *VariantJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[j.UserID]; ok {
		return errJobActive
	}
	m.jobs[j.ID] = j
	m.active[j.UserID] = j.ID
	return nil
}

// HasActive reports whether userID has an unfinished job.
func (m *JobManager) HasActive(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[userID]
	return ok
}

// Release clears the active slot held by j.
func (m *JobManager) Release(j *VariantJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[j.UserID] == j.ID {
		delete(m.active, j.UserID)
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *VariantJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns the jobs of a user, oldest first.
func (m *JobManager) ListJobs(userID string) []*VariantJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var jobs []*VariantJob
	for _, j := range m.jobs {
		if j.UserID == userID {
			jobs = append(jobs, j)
		}
	}
	slices.SortFunc(jobs, func(a, b *VariantJob) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return jobs
}

// CancelAll requests a stop of every active job.
func (m *JobManager) CancelAll() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.active {
		m.jobs[id].Cancel()
	}
	return len(m.active)
}
