package model

import "time"

// HostState classifies the liveness/work state of a polled host.
type HostState string

const (
	// HostStateDown means connect, auth or protocol failure; the error
	// is captured on the result.
	HostStateDown HostState = "DOWN"
	// HostStateOK means at least one task is actually consuming CPU.
	HostStateOK HostState = "OK"
	// HostStateNoRunningTasks means tasks are queued but none has
	// consumed CPU time past the running threshold.
	HostStateNoRunningTasks HostState = "NO_RUNNING_TASKS"
	// HostStateNoTasks means the host reported no tasks at all.
	HostStateNoTasks HostState = "NO_TASKS"
)

// ProjectSnapshot is one project's credit reading on one host.
type ProjectSnapshot struct {
	Name            string
	MasterURL       string
	HostTotalCredit float64
	UserTotalCredit float64
}

// TaskSnapshot is one in-progress task reading on one host.
type TaskSnapshot struct {
	ProjectURL                string
	TaskName                  string
	AppName                   string
	CurrentCPUTime            float64
	ElapsedTime               float64
	EstimatedCPUTimeRemaining float64
	FractionDone              float64
	ReceivedTime              time.Time
}

// AppSnapshot is one installed application reading on one host.
type AppSnapshot struct {
	ProjectURL       string
	Name             string
	UserFriendlyName string
}

// HostPollResult is the immutable outcome of polling one host. It is
// produced once per cycle and passed by value through the pipeline;
// nothing mutates it after creation. Discarded at cycle end.
type HostPollResult struct {
	HostName string
	IP       string
	State    HostState
	ErrorMsg string

	Projects []ProjectSnapshot
	Tasks    []TaskSnapshot
	Apps     []AppSnapshot

	// LatestTaskDownloadTimePerProjectURL is the max received-time
	// among a project's tasks on this host. Empty for hosts with no
	// tasks (not an error).
	LatestTaskDownloadTimePerProjectURL map[string]time.Time

	TasksRunning int
}

// Alive reports whether the host responded at all this cycle.
func (r HostPollResult) Alive() bool {
	return r.State != HostStateDown
}

// LatestTaskDownloadTime returns the newest received-time across all
// projects on this host, or nil when the host had no tasks.
func (r HostPollResult) LatestTaskDownloadTime() *time.Time {
	var latest *time.Time
	for _, t := range r.LatestTaskDownloadTimePerProjectURL {
		t := t
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}
	return latest
}
