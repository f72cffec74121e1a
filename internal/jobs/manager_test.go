package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name     string
	interval time.Duration
	runs     atomic.Int32
	block    chan struct{}
	err      error
	panics   bool
}

func (j *fakeJob) Name() string            { return j.name }
func (j *fakeJob) Interval() time.Duration { return j.interval }

func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if j.panics {
		panic("boom")
	}
	return j.err
}

func waitForState(t *testing.T, m *Manager, name string, state RunState) JobStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, st := range m.Statuses() {
			if st.Name == name && st.State == state {
				return st
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached state %s", name, state)
	return JobStatus{}
}

func TestManagerRunsJobImmediately(t *testing.T) {
	m := NewManager(context.Background())
	job := &fakeJob{name: "stats", interval: time.Hour}
	m.Register(job)
	m.Start()
	defer func() { m.Stop(); m.Wait() }()

	st := waitForState(t, m, "stats", RunStateSucceeded)
	assert.Equal(t, int32(1), job.runs.Load())
	assert.Empty(t, st.LastError)
	require.NotNil(t, st.LastStarted)
}

func TestManagerRecordsFailure(t *testing.T) {
	m := NewManager(context.Background())
	job := &fakeJob{name: "stats", interval: time.Hour, err: errors.New("poll failed")}
	m.Register(job)
	m.Start()
	defer func() { m.Stop(); m.Wait() }()

	st := waitForState(t, m, "stats", RunStateFailed)
	assert.Equal(t, "poll failed", st.LastError)
}

func TestManagerContainsPanic(t *testing.T) {
	m := NewManager(context.Background())
	job := &fakeJob{name: "stats", interval: time.Hour, panics: true}
	m.Register(job)
	m.Start()
	defer func() { m.Stop(); m.Wait() }()

	st := waitForState(t, m, "stats", RunStateFailed)
	assert.Contains(t, st.LastError, "panic")
}

func TestManagerDropsOverlappingTrigger(t *testing.T) {
	m := NewManager(context.Background())
	job := &fakeJob{name: "stats", interval: time.Hour, block: make(chan struct{})}
	m.Register(job)
	m.Start()
	defer func() { m.Stop(); m.Wait() }()

	waitForState(t, m, "stats", RunStateRunning)

	// A second trigger while the first run is in flight is dropped.
	require.True(t, m.TriggerNow("stats"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.block)
	waitForState(t, m, "stats", RunStateSucceeded)
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestManagerTriggerUnknownJob(t *testing.T) {
	m := NewManager(context.Background())
	assert.False(t, m.TriggerNow("nope"))
}
