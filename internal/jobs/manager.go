package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"boincwatch/pkg/logger"
)

// Job represents a periodic background task.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// AlignedJob is a job that runs at aligned time boundaries (e.g., on the hour).
type AlignedJob interface {
	Job
	AlignToInterval() bool
}

// RunState is the lifecycle state of one job.
type RunState string

const (
	RunStateIdle      RunState = "IDLE"
	RunStateRunning   RunState = "RUNNING"
	RunStateSucceeded RunState = "SUCCEEDED"
	RunStateFailed    RunState = "FAILED"
)

// JobStatus is a point-in-time view of one registered job.
type JobStatus struct {
	Name         string        `json:"name"`
	State        RunState      `json:"state"`
	LastStarted  *time.Time    `json:"last_started,omitempty"`
	LastDuration time.Duration `json:"last_duration_ns,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

type jobRecord struct {
	job     Job
	mu      sync.Mutex
	running bool
	status  JobStatus
}

// Manager orchestrates the lifecycle of background jobs. Triggers for
// a job whose previous run is still in flight are dropped, never run
// concurrently. A failing or panicking run is contained at the job
// boundary; the schedule stays alive.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	records []*jobRecord
	started bool

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewManager creates a job manager bound to the provided context.
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:     ctx,
		cancel:  cancel,
		records: make([]*jobRecord, 0),
	}
}

// Register adds a job to the manager.
func (m *Manager) Register(job Job) {
	if job == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, &jobRecord{
		job:    job,
		status: JobStatus{Name: job.Name(), State: RunStateIdle},
	})
}

// Start launches all registered jobs.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	records := append([]*jobRecord(nil), m.records...)
	m.mu.Unlock()

	for _, rec := range records {
		m.wg.Add(1)
		go m.runJob(rec)
	}
}

// Stop signals all jobs to stop.
func (m *Manager) Stop() {
	m.cancel()
}

// Wait blocks until all jobs exit.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Statuses returns the current state of every registered job.
func (m *Manager) Statuses() []JobStatus {
	m.mu.Lock()
	records := append([]*jobRecord(nil), m.records...)
	m.mu.Unlock()

	statuses := make([]JobStatus, 0, len(records))
	for _, rec := range records {
		rec.mu.Lock()
		statuses = append(statuses, rec.status)
		rec.mu.Unlock()
	}
	return statuses
}

// TriggerNow runs the named job once, outside its schedule, honoring
// the same overlap guard. Returns false when no such job is registered.
func (m *Manager) TriggerNow(name string) bool {
	m.mu.Lock()
	records := append([]*jobRecord(nil), m.records...)
	m.mu.Unlock()

	for _, rec := range records {
		if rec.job.Name() == name {
			go m.executeJob(rec)
			return true
		}
	}
	return false
}

func (m *Manager) runJob(rec *jobRecord) {
	defer m.wg.Done()

	job := rec.job
	interval := job.Interval()
	if interval <= 0 {
		interval = time.Minute
	}

	// Check if job should align to interval boundaries
	alignedJob, shouldAlign := job.(AlignedJob)
	if shouldAlign && alignedJob.AlignToInterval() {
		now := time.Now()
		next := now.Truncate(interval).Add(interval)
		waitDuration := next.Sub(now)

		logger.InfoCtx(m.ctx, "job %s will start at next aligned time: %v (in %v)", job.Name(), next.Format("15:04:05"), waitDuration)

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(waitDuration):
			m.executeJob(rec)
		}
	} else {
		// Run immediately once.
		m.executeJob(rec)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.executeJob(rec)
		}
	}
}

func (m *Manager) executeJob(rec *jobRecord) {
	job := rec.job

	rec.mu.Lock()
	if rec.running {
		rec.mu.Unlock()
		logger.WarnCtx(m.ctx, "job %s is still running, dropping this trigger", job.Name())
		return
	}
	rec.running = true
	started := time.Now()
	rec.status.State = RunStateRunning
	rec.status.LastStarted = &started
	rec.mu.Unlock()

	err := m.runContained(job)

	rec.mu.Lock()
	rec.running = false
	rec.status.LastDuration = time.Since(started)
	if err != nil {
		rec.status.State = RunStateFailed
		rec.status.LastError = err.Error()
	} else {
		rec.status.State = RunStateSucceeded
		rec.status.LastError = ""
	}
	rec.mu.Unlock()

	if err != nil {
		logger.WarnCtx(m.ctx, "background job %s failed: %v", job.Name(), err)
	}
}

// runContained invokes the job, converting a panic into a failed run
// so one bad cycle never takes the scheduler down.
func (m *Manager) runContained(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.ErrorCtx(m.ctx, "job %s panicked: %v\nstack:\n%s", job.Name(), r, debug.Stack())
		}
	}()
	return job.Run(m.ctx)
}
