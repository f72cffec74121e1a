package boincrpc

import "time"

// ClientState is the full state snapshot reported by a BOINC core
// client in response to a get_state request.
type ClientState struct {
	HostInfo  HostInfo
	Projects  []Project
	Apps      []App
	Workunits []Workunit
	Results   []Result
}

// HostInfo describes the machine running the core client.
type HostInfo struct {
	DomainName string `xml:"domain_name"`
	OSName     string `xml:"os_name"`
	PNCPUs     int    `xml:"p_ncpus"`
}

// Project is an attached compute project with its lifetime credit
// counters, both for the local host and for the whole user account.
type Project struct {
	MasterURL       string  `xml:"master_url"`
	ProjectName     string  `xml:"project_name"`
	UserTotalCredit float64 `xml:"user_total_credit"`
	UserAvgCredit   float64 `xml:"user_expavg_credit"`
	HostTotalCredit float64 `xml:"host_total_credit"`
	HostAvgCredit   float64 `xml:"host_expavg_credit"`
}

// App is an application installed for a project. ProjectURL is not part
// of the app element; the client_state document nests entities under
// their owning project and the decoder assigns it positionally.
type App struct {
	ProjectURL       string `xml:"-"`
	Name             string `xml:"name"`
	UserFriendlyName string `xml:"user_friendly_name"`
}

// Workunit links a unit of work to its application.
type Workunit struct {
	ProjectURL string `xml:"-"`
	Name       string `xml:"name"`
	AppName    string `xml:"app_name"`
}

// Result is a task instance on the host. Time fields are seconds of
// CPU/wall time as reported by the client.
type Result struct {
	ProjectURL                string
	Name                      string
	WorkunitName              string
	ReceivedTime              time.Time
	CurrentCPUTime            float64
	ElapsedTime               float64
	EstimatedCPUTimeRemaining float64
	FractionDone              float64
}

type resultXML struct {
	Name                      string         `xml:"name"`
	WUName                    string         `xml:"wu_name"`
	ReceivedTime              float64        `xml:"received_time"`
	EstimatedCPUTimeRemaining float64        `xml:"estimated_cpu_time_remaining"`
	FinalCPUTime              float64        `xml:"final_cpu_time"`
	FinalElapsedTime          float64        `xml:"final_elapsed_time"`
	FractionDone              float64        `xml:"fraction_done"`
	ActiveTask                *activeTaskXML `xml:"active_task"`
}

type activeTaskXML struct {
	CurrentCPUTime float64 `xml:"current_cpu_time"`
	ElapsedTime    float64 `xml:"elapsed_time"`
	FractionDone   float64 `xml:"fraction_done"`
}

func (r resultXML) toResult(projectURL string) Result {
	out := Result{
		ProjectURL:                projectURL,
		Name:                      r.Name,
		WorkunitName:              r.WUName,
		EstimatedCPUTimeRemaining: r.EstimatedCPUTimeRemaining,
		CurrentCPUTime:            r.FinalCPUTime,
		ElapsedTime:               r.FinalElapsedTime,
		FractionDone:              r.FractionDone,
	}
	if r.ReceivedTime > 0 {
		sec := int64(r.ReceivedTime)
		nsec := int64((r.ReceivedTime - float64(sec)) * 1e9)
		out.ReceivedTime = time.Unix(sec, nsec).UTC()
	}
	if r.ActiveTask != nil {
		out.CurrentCPUTime = r.ActiveTask.CurrentCPUTime
		out.ElapsedTime = r.ActiveTask.ElapsedTime
		out.FractionDone = r.ActiveTask.FractionDone
	}
	return out
}
