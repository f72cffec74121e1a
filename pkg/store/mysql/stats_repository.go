package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// StatsRepository handles day-keyed snapshot persistence in MySQL.
type StatsRepository struct {
	ds *Datastore
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(ds *Datastore) *StatsRepository {
	return &StatsRepository{ds: ds}
}

// UpsertHostStats overwrites the (yyyymmdd, host_name) row in place or
// inserts it. A missing Timestamp defaults to now.
func (r *StatsRepository) UpsertHostStats(ctx context.Context, stats *HostStats) error {
	if stats.YYYYMMDD == "" || stats.HostName == "" {
		return fmt.Errorf("invalid host stats key (%q, %q)", stats.YYYYMMDD, stats.HostName)
	}
	var existing HostStats
	err := r.ds.DB(ctx).
		Where("yyyymmdd = ? AND host_name = ?", stats.YYYYMMDD, stats.HostName).
		First(&existing).Error
	switch {
	case err == nil:
		existing.TotalCredit = stats.TotalCredit
		existing.Timestamp = timestampOrNow(stats.Timestamp)
		existing.LatestTaskDownloadTime = stats.LatestTaskDownloadTime
		return r.ds.DB(ctx).Save(&existing).Error
	case err == gorm.ErrRecordNotFound:
		stats.Timestamp = timestampOrNow(stats.Timestamp)
		return r.ds.DB(ctx).Create(stats).Error
	default:
		return fmt.Errorf("failed to query host stats: %w", err)
	}
}

// UpsertProjectStats overwrites the (yyyymmdd, project_id) row in
// place or inserts it.
func (r *StatsRepository) UpsertProjectStats(ctx context.Context, stats *ProjectStats) error {
	if stats.YYYYMMDD == "" || stats.ProjectID == "" {
		return fmt.Errorf("invalid project stats key (%q, %q)", stats.YYYYMMDD, stats.ProjectID)
	}
	var existing ProjectStats
	err := r.ds.DB(ctx).
		Where("yyyymmdd = ? AND project_id = ?", stats.YYYYMMDD, stats.ProjectID).
		First(&existing).Error
	switch {
	case err == nil:
		existing.MasterURL = stats.MasterURL
		existing.ProjectName = stats.ProjectName
		existing.TotalCredit = stats.TotalCredit
		existing.Timestamp = timestampOrNow(stats.Timestamp)
		existing.LatestTaskDownloadTime = stats.LatestTaskDownloadTime
		return r.ds.DB(ctx).Save(&existing).Error
	case err == gorm.ErrRecordNotFound:
		stats.Timestamp = timestampOrNow(stats.Timestamp)
		return r.ds.DB(ctx).Create(stats).Error
	default:
		return fmt.Errorf("failed to query project stats: %w", err)
	}
}

// UpsertHostProjectStats overwrites the (yyyymmdd, host_name,
// project_name) row in place or inserts it.
func (r *StatsRepository) UpsertHostProjectStats(ctx context.Context, stats *HostProjectStats) error {
	if stats.YYYYMMDD == "" || stats.HostName == "" || stats.ProjectName == "" {
		return fmt.Errorf("invalid host project stats key (%q, %q, %q)",
			stats.YYYYMMDD, stats.HostName, stats.ProjectName)
	}
	var existing HostProjectStats
	err := r.ds.DB(ctx).
		Where("yyyymmdd = ? AND host_name = ? AND project_name = ?",
			stats.YYYYMMDD, stats.HostName, stats.ProjectName).
		First(&existing).Error
	switch {
	case err == nil:
		existing.TotalCredit = stats.TotalCredit
		existing.Timestamp = timestampOrNow(stats.Timestamp)
		existing.LatestTaskDownloadTime = stats.LatestTaskDownloadTime
		return r.ds.DB(ctx).Save(&existing).Error
	case err == gorm.ErrRecordNotFound:
		stats.Timestamp = timestampOrNow(stats.Timestamp)
		return r.ds.DB(ctx).Create(stats).Error
	default:
		return fmt.Errorf("failed to query host project stats: %w", err)
	}
}

// LatestHostStatsOnOrBefore returns, per host, the newest snapshot
// with a date key at or before the given yyyymmdd.
func (r *StatsRepository) LatestHostStatsOnOrBefore(ctx context.Context, yyyymmdd string) ([]HostStats, error) {
	var rows []HostStats
	err := r.ds.DB(ctx).Raw(`
		SELECT h.* FROM host_stats h
		INNER JOIN (
			SELECT host_name, MAX(yyyymmdd) AS boundary_ymd
			FROM host_stats
			WHERE yyyymmdd <= ?
			GROUP BY host_name
		) latest ON h.host_name = latest.host_name AND h.yyyymmdd = latest.boundary_ymd`,
		yyyymmdd).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query latest host stats: %w", err)
	}
	return rows, nil
}

// EarliestHostStatsOnOrAfter returns, per host, the oldest snapshot
// with a date key at or after the given yyyymmdd.
func (r *StatsRepository) EarliestHostStatsOnOrAfter(ctx context.Context, yyyymmdd string) ([]HostStats, error) {
	var rows []HostStats
	err := r.ds.DB(ctx).Raw(`
		SELECT h.* FROM host_stats h
		INNER JOIN (
			SELECT host_name, MIN(yyyymmdd) AS boundary_ymd
			FROM host_stats
			WHERE yyyymmdd >= ?
			GROUP BY host_name
		) earliest ON h.host_name = earliest.host_name AND h.yyyymmdd = earliest.boundary_ymd`,
		yyyymmdd).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query earliest host stats: %w", err)
	}
	return rows, nil
}

// LatestProjectStatsOnOrBefore returns, per project id, the newest
// snapshot with a date key at or before the given yyyymmdd.
func (r *StatsRepository) LatestProjectStatsOnOrBefore(ctx context.Context, yyyymmdd string) ([]ProjectStats, error) {
	var rows []ProjectStats
	err := r.ds.DB(ctx).Raw(`
		SELECT p.* FROM project_stats p
		INNER JOIN (
			SELECT project_id, MAX(yyyymmdd) AS boundary_ymd
			FROM project_stats
			WHERE yyyymmdd <= ?
			GROUP BY project_id
		) latest ON p.project_id = latest.project_id AND p.yyyymmdd = latest.boundary_ymd`,
		yyyymmdd).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query latest project stats: %w", err)
	}
	return rows, nil
}

// EarliestProjectStatsOnOrAfter returns, per project id, the oldest
// snapshot with a date key at or after the given yyyymmdd.
func (r *StatsRepository) EarliestProjectStatsOnOrAfter(ctx context.Context, yyyymmdd string) ([]ProjectStats, error) {
	var rows []ProjectStats
	err := r.ds.DB(ctx).Raw(`
		SELECT p.* FROM project_stats p
		INNER JOIN (
			SELECT project_id, MIN(yyyymmdd) AS boundary_ymd
			FROM project_stats
			WHERE yyyymmdd >= ?
			GROUP BY project_id
		) earliest ON p.project_id = earliest.project_id AND p.yyyymmdd = earliest.boundary_ymd`,
		yyyymmdd).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query earliest project stats: %w", err)
	}
	return rows, nil
}

// LatestHostProjectStatsOnOrBefore returns the newest snapshot for one
// host/project pair at or before the given yyyymmdd, or nil.
func (r *StatsRepository) LatestHostProjectStatsOnOrBefore(ctx context.Context, hostName, projectName, yyyymmdd string) (*HostProjectStats, error) {
	var row HostProjectStats
	err := r.ds.DB(ctx).
		Where("host_name = ? AND project_name = ? AND yyyymmdd <= ?", hostName, projectName, yyyymmdd).
		Order("yyyymmdd DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest host project stats: %w", err)
	}
	return &row, nil
}

// EarliestHostProjectStatsOnOrAfter returns the oldest snapshot for
// one host/project pair at or after the given yyyymmdd, or nil.
func (r *StatsRepository) EarliestHostProjectStatsOnOrAfter(ctx context.Context, hostName, projectName, yyyymmdd string) (*HostProjectStats, error) {
	var row HostProjectStats
	err := r.ds.DB(ctx).
		Where("host_name = ? AND project_name = ? AND yyyymmdd >= ?", hostName, projectName, yyyymmdd).
		Order("yyyymmdd ASC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query earliest host project stats: %w", err)
	}
	return &row, nil
}

// HasProjectStats reports whether any project snapshot exists. Used by
// the one-time bootstrap import.
func (r *StatsRepository) HasProjectStats(ctx context.Context) (bool, error) {
	var count int64
	if err := r.ds.DB(ctx).Model(&ProjectStats{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count project stats: %w", err)
	}
	return count > 0, nil
}

func timestampOrNow(ts *time.Time) *time.Time {
	if ts != nil {
		return ts
	}
	now := time.Now().UTC()
	return &now
}
