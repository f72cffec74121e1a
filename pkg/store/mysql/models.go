package mysql

import "time"

// HostStats is one day-keyed credit snapshot for a host. Repeated
// polls within the same day overwrite the row, last write wins.
type HostStats struct {
	YYYYMMDD               string     `gorm:"column:yyyymmdd;type:char(8);primaryKey" json:"yyyymmdd"`
	HostName               string     `gorm:"column:host_name;type:varchar(255);primaryKey" json:"host_name"`
	TotalCredit            float64    `gorm:"column:total_credit;not null;default:0" json:"total_credit"`
	Timestamp              *time.Time `gorm:"column:timestamp;type:datetime(3)" json:"timestamp,omitempty"`
	LatestTaskDownloadTime *time.Time `gorm:"column:latest_task_download_time;type:datetime(3)" json:"latest_task_download_time,omitempty"`
}

// TableName specifies the table name for HostStats
func (HostStats) TableName() string {
	return "host_stats"
}

// ProjectStats is one day-keyed credit snapshot for a project,
// keyed by the stable project id from the identity resolver.
type ProjectStats struct {
	YYYYMMDD               string     `gorm:"column:yyyymmdd;type:char(8);primaryKey" json:"yyyymmdd"`
	ProjectID              string     `gorm:"column:project_id;type:char(36);primaryKey" json:"project_id"`
	MasterURL              string     `gorm:"column:master_url;type:varchar(500)" json:"master_url"`
	ProjectName            string     `gorm:"column:project_name;type:varchar(255)" json:"project_name"`
	TotalCredit            float64    `gorm:"column:total_credit;not null;default:0" json:"total_credit"`
	Timestamp              *time.Time `gorm:"column:timestamp;type:datetime(3)" json:"timestamp,omitempty"`
	LatestTaskDownloadTime *time.Time `gorm:"column:latest_task_download_time;type:datetime(3)" json:"latest_task_download_time,omitempty"`
}

// TableName specifies the table name for ProjectStats
func (ProjectStats) TableName() string {
	return "project_stats"
}

// HostProjectStats is the host x project join surface the efficiency
// computation relies on.
type HostProjectStats struct {
	YYYYMMDD               string     `gorm:"column:yyyymmdd;type:char(8);primaryKey" json:"yyyymmdd"`
	HostName               string     `gorm:"column:host_name;type:varchar(255);primaryKey" json:"host_name"`
	ProjectName            string     `gorm:"column:project_name;type:varchar(255);primaryKey" json:"project_name"`
	TotalCredit            float64    `gorm:"column:total_credit;not null;default:0" json:"total_credit"`
	Timestamp              *time.Time `gorm:"column:timestamp;type:datetime(3)" json:"timestamp,omitempty"`
	LatestTaskDownloadTime *time.Time `gorm:"column:latest_task_download_time;type:datetime(3)" json:"latest_task_download_time,omitempty"`
}

// TableName specifies the table name for HostProjectStats
func (HostProjectStats) TableName() string {
	return "host_project_stats"
}

// BoincTask is a task fact, refreshed in place every collection cycle
// the task is still observed.
type BoincTask struct {
	ProjectName               string     `gorm:"column:project_name;type:varchar(255);primaryKey" json:"project_name"`
	TaskName                  string     `gorm:"column:task_name;type:varchar(255);primaryKey" json:"task_name"`
	HostName                  string     `gorm:"column:host_name;type:varchar(255);primaryKey" json:"host_name"`
	AppName                   string     `gorm:"column:app_name;type:varchar(255)" json:"app_name"`
	CurrentCPUTime            float64    `gorm:"column:current_cpu_time;not null;default:0" json:"current_cpu_time"`
	ElapsedTime               float64    `gorm:"column:elapsed_time;not null;default:0" json:"elapsed_time"`
	EstimatedCPUTimeRemaining float64    `gorm:"column:estimated_cpu_time_remaining;not null;default:0" json:"estimated_cpu_time_remaining"`
	FractionDone              float64    `gorm:"column:fraction_done;not null;default:0" json:"fraction_done"`
	ReceivedTime              *time.Time `gorm:"column:received_time;type:datetime(3)" json:"received_time,omitempty"`
	UpdatedAt                 time.Time  `gorm:"column:updated_at;type:datetime(3);not null" json:"updated_at"`
}

// TableName specifies the table name for BoincTask
func (BoincTask) TableName() string {
	return "boinc_tasks"
}

// BoincApp is an application installed for a project.
type BoincApp struct {
	ProjectName      string    `gorm:"column:project_name;type:varchar(255);primaryKey" json:"project_name"`
	Name             string    `gorm:"column:name;type:varchar(255);primaryKey" json:"name"`
	ProjectURL       string    `gorm:"column:project_url;type:varchar(500)" json:"project_url"`
	UserFriendlyName string    `gorm:"column:user_friendly_name;type:varchar(255)" json:"user_friendly_name"`
	UpdatedAt        time.Time `gorm:"column:updated_at;type:datetime(3);not null" json:"updated_at"`
}

// TableName specifies the table name for BoincApp
func (BoincApp) TableName() string {
	return "boinc_apps"
}

// Project is a stable project identity. Immutable after creation
// except for display name refreshes.
type Project struct {
	ProjectID   string    `gorm:"column:project_id;type:char(36);primaryKey" json:"project_id"`
	DisplayName string    `gorm:"column:display_name;type:varchar(255);not null" json:"display_name"`
	CreatedAt   time.Time `gorm:"column:created_at;type:datetime(3);not null" json:"created_at"`
}

// TableName specifies the table name for Project
func (Project) TableName() string {
	return "projects"
}

// ProjectMapping maps a normalized (name, url) pair to a project id.
// Either side may drift independently over the project's lifetime.
type ProjectMapping struct {
	ProjectName string `gorm:"column:project_name;type:varchar(255);primaryKey" json:"project_name"`
	ProjectURL  string `gorm:"column:project_url;type:varchar(500);primaryKey" json:"project_url"`
	ProjectID   string `gorm:"column:project_id;type:char(36);not null;index:idx_mapping_project_id" json:"project_id"`
}

// TableName specifies the table name for ProjectMapping
func (ProjectMapping) TableName() string {
	return "project_mappings"
}
