package model

import "time"

// Rollup partition keys recognized by the downstream stats API.
const (
	RollupScopeHost    = "HostStats"
	RollupScopeProject = "ProjectStats"
)

// StatsRollup is a derived credit rollup for one host or project.
// Window deltas are nil, not zero, when the key has no snapshot at or
// after the window boundary.
type StatsRollup struct {
	PartitionKey           string     `json:"partitionKey"`
	RowKey                 string     `json:"rowKey"`
	CreditTotal            float64    `json:"creditTotal"`
	CreditToday            *float64   `json:"creditToday,omitempty"`
	CreditThisWeek         *float64   `json:"creditThisWeek,omitempty"`
	CreditThisMonth        *float64   `json:"creditThisMonth,omitempty"`
	CreditThisYear         *float64   `json:"creditThisYear,omitempty"`
	LatestTaskDownloadTime *time.Time `json:"latestTaskDownloadTime,omitempty"`
}

// AppRuntimeRollup is windowed CPU-hour usage for one
// (host, project, app) triple. Partitioned by host downstream, with
// "project|app" as the row key.
type AppRuntimeRollup struct {
	HostName          string  `json:"partitionKey"`
	ProjectAppKey     string  `json:"rowKey"`
	ProjectName       string  `json:"projectName"`
	AppName           string  `json:"appName"`
	CPUHoursTotal     float64 `json:"cpuHoursTotal"`
	CPUHoursToday     float64 `json:"cpuHoursToday"`
	CPUHoursThisWeek  float64 `json:"cpuHoursThisWeek"`
	CPUHoursThisMonth float64 `json:"cpuHoursThisMonth"`
	CPUHoursThisYear  float64 `json:"cpuHoursThisYear"`
}

// EfficiencyRollup is credit earned per CPU-hour for one host/project
// pair, derived from boundary snapshots around the observed facts.
type EfficiencyRollup struct {
	HostName         string  `json:"partitionKey"`
	ProjectName      string  `json:"rowKey"`
	CPUHoursTotal    float64 `json:"cpuHoursTotal"`
	PointsTotal      float64 `json:"pointsTotal"`
	PointsPerCPUHour float64 `json:"pointsPerCpuHour"`
}
