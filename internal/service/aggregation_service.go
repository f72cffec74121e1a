package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"boincwatch/internal/model"
	"boincwatch/pkg/logger"
	"boincwatch/pkg/store/mysql"
)

// farFutureDayKey bounds the "latest snapshot" lookup from above.
const farFutureDayKey = "99991231"

// rollupStore is the read surface of the stats repository the rollup
// computation needs.
type rollupStore interface {
	LatestHostStatsOnOrBefore(ctx context.Context, yyyymmdd string) ([]mysql.HostStats, error)
	EarliestHostStatsOnOrAfter(ctx context.Context, yyyymmdd string) ([]mysql.HostStats, error)
	LatestProjectStatsOnOrBefore(ctx context.Context, yyyymmdd string) ([]mysql.ProjectStats, error)
	EarliestProjectStatsOnOrAfter(ctx context.Context, yyyymmdd string) ([]mysql.ProjectStats, error)
	LatestHostProjectStatsOnOrBefore(ctx context.Context, hostName, projectName, yyyymmdd string) (*mysql.HostProjectStats, error)
	EarliestHostProjectStatsOnOrAfter(ctx context.Context, hostName, projectName, yyyymmdd string) (*mysql.HostProjectStats, error)
}

// taskReader lists the persisted task facts.
type taskReader interface {
	ListTasks(ctx context.Context) ([]mysql.BoincTask, error)
}

// RollupPublisher ships computed rollups downstream.
type RollupPublisher interface {
	Enabled() bool
	PublishStats(ctx context.Context, rows []model.StatsRollup) bool
	PublishAppRuntimes(ctx context.Context, rows []model.AppRuntimeRollup) bool
	PublishEfficiency(ctx context.Context, rows []model.EfficiencyRollup) bool
}

// AggregationService derives windowed credit and runtime rollups from
// the persisted snapshots and task facts. A window delta is the latest
// snapshot minus the earliest snapshot at or after the window start;
// a key with no snapshot inside the window gets a nil delta, never a
// fabricated zero.
type AggregationService struct {
	stats     rollupStore
	tasks     taskReader
	publisher RollupPublisher

	// excludedProject is a housekeeping pseudo-project skipped by the
	// efficiency rollup. Matched case-insensitively.
	excludedProject string
}

// NewAggregationService creates a new aggregation service
func NewAggregationService(stats rollupStore, tasks taskReader, publisher RollupPublisher, excludedProject string) *AggregationService {
	return &AggregationService{
		stats:           stats,
		tasks:           tasks,
		publisher:       publisher,
		excludedProject: strings.ToLower(strings.TrimSpace(excludedProject)),
	}
}

// windowStarts returns the day keys of the today/week/month/year
// window boundaries. The "today" window is anchored on yesterday's
// snapshot so overnight accrual counts; weeks start on Sunday.
func windowStarts(now time.Time) (today, week, month, year string) {
	now = now.UTC()
	today = now.AddDate(0, 0, -1).Format(DayKeyFormat)
	week = now.AddDate(0, 0, -int(now.Weekday())).Format(DayKeyFormat)
	month = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format(DayKeyFormat)
	year = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC).Format(DayKeyFormat)
	return
}

// ComputeStatsRollups builds the host-scope and project-scope credit
// rollups for the given reference time.
func (s *AggregationService) ComputeStatsRollups(ctx context.Context, now time.Time) ([]model.StatsRollup, error) {
	today, week, month, year := windowStarts(now)

	hostRollups, err := s.computeHostRollups(ctx, today, week, month, year)
	if err != nil {
		return nil, err
	}
	projectRollups, err := s.computeProjectRollups(ctx, today, week, month, year)
	if err != nil {
		return nil, err
	}
	return append(hostRollups, projectRollups...), nil
}

func (s *AggregationService) computeHostRollups(ctx context.Context, today, week, month, year string) ([]model.StatsRollup, error) {
	latest, err := s.stats.LatestHostStatsOnOrBefore(ctx, farFutureDayKey)
	if err != nil {
		return nil, err
	}

	boundaries := make(map[string]map[string]float64, 4)
	for _, dayKey := range []string{today, week, month, year} {
		if _, ok := boundaries[dayKey]; ok {
			continue
		}
		rows, err := s.stats.EarliestHostStatsOnOrAfter(ctx, dayKey)
		if err != nil {
			return nil, err
		}
		credits := make(map[string]float64, len(rows))
		for _, r := range rows {
			credits[r.HostName] = r.TotalCredit
		}
		boundaries[dayKey] = credits
	}

	rollups := make([]model.StatsRollup, 0, len(latest))
	for _, row := range latest {
		rollups = append(rollups, model.StatsRollup{
			PartitionKey:           model.RollupScopeHost,
			RowKey:                 row.HostName,
			CreditTotal:            row.TotalCredit,
			CreditToday:            windowDelta(row.TotalCredit, boundaries[today], row.HostName),
			CreditThisWeek:         windowDelta(row.TotalCredit, boundaries[week], row.HostName),
			CreditThisMonth:        windowDelta(row.TotalCredit, boundaries[month], row.HostName),
			CreditThisYear:         windowDelta(row.TotalCredit, boundaries[year], row.HostName),
			LatestTaskDownloadTime: row.LatestTaskDownloadTime,
		})
	}
	return rollups, nil
}

func (s *AggregationService) computeProjectRollups(ctx context.Context, today, week, month, year string) ([]model.StatsRollup, error) {
	latest, err := s.stats.LatestProjectStatsOnOrBefore(ctx, farFutureDayKey)
	if err != nil {
		return nil, err
	}

	boundaries := make(map[string]map[string]float64, 4)
	for _, dayKey := range []string{today, week, month, year} {
		if _, ok := boundaries[dayKey]; ok {
			continue
		}
		rows, err := s.stats.EarliestProjectStatsOnOrAfter(ctx, dayKey)
		if err != nil {
			return nil, err
		}
		credits := make(map[string]float64, len(rows))
		for _, r := range rows {
			credits[r.ProjectID] = r.TotalCredit
		}
		boundaries[dayKey] = credits
	}

	rollups := make([]model.StatsRollup, 0, len(latest))
	for _, row := range latest {
		rowKey := row.ProjectName
		if rowKey == "" {
			rowKey = row.ProjectID
		}
		rollups = append(rollups, model.StatsRollup{
			PartitionKey:           model.RollupScopeProject,
			RowKey:                 rowKey,
			CreditTotal:            row.TotalCredit,
			CreditToday:            windowDelta(row.TotalCredit, boundaries[today], row.ProjectID),
			CreditThisWeek:         windowDelta(row.TotalCredit, boundaries[week], row.ProjectID),
			CreditThisMonth:        windowDelta(row.TotalCredit, boundaries[month], row.ProjectID),
			CreditThisYear:         windowDelta(row.TotalCredit, boundaries[year], row.ProjectID),
			LatestTaskDownloadTime: row.LatestTaskDownloadTime,
		})
	}
	return rollups, nil
}

func windowDelta(latest float64, boundary map[string]float64, key string) *float64 {
	base, ok := boundary[key]
	if !ok {
		return nil
	}
	delta := latest - base
	return &delta
}

// ComputeAppRuntimeRollups sums task CPU time per (host, project, app)
// triple. A task counts toward a window when it was last updated at or
// after the window start, so long-running tasks keep contributing to
// the short windows while they burn CPU.
func (s *AggregationService) ComputeAppRuntimeRollups(ctx context.Context, now time.Time) ([]model.AppRuntimeRollup, error) {
	tasks, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	today, week, month, year := windowStarts(now)

	type groupKey struct{ host, project, app string }
	groups := make(map[groupKey]*model.AppRuntimeRollup)

	for _, t := range tasks {
		app := t.AppName
		if app == "" {
			app = "unknown"
		}
		key := groupKey{host: t.HostName, project: t.ProjectName, app: app}
		g, ok := groups[key]
		if !ok {
			g = &model.AppRuntimeRollup{
				HostName:      t.HostName,
				ProjectAppKey: t.ProjectName + "|" + app,
				ProjectName:   t.ProjectName,
				AppName:       app,
			}
			groups[key] = g
		}
		hours := t.CurrentCPUTime / 3600.0
		g.CPUHoursTotal += hours
		updatedDay := t.UpdatedAt.UTC().Format(DayKeyFormat)
		if updatedDay >= today {
			g.CPUHoursToday += hours
		}
		if updatedDay >= week {
			g.CPUHoursThisWeek += hours
		}
		if updatedDay >= month {
			g.CPUHoursThisMonth += hours
		}
		if updatedDay >= year {
			g.CPUHoursThisYear += hours
		}
	}

	rollups := make([]model.AppRuntimeRollup, 0, len(groups))
	for _, g := range groups {
		rollups = append(rollups, *g)
	}
	return rollups, nil
}

// ComputeEfficiencyRollups derives credit per CPU-hour for each
// host/project pair that has task facts. Credit earned over the span
// is read from the snapshots bracketing the facts; spans whose facts
// all fall on one calendar day carry no usable credit delta and are
// skipped.
func (s *AggregationService) ComputeEfficiencyRollups(ctx context.Context, now time.Time) ([]model.EfficiencyRollup, error) {
	tasks, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	type groupKey struct{ host, project string }
	type group struct {
		cpuHours    float64
		minReceived *time.Time
		maxReceived *time.Time
	}
	groups := make(map[groupKey]*group)

	for _, t := range tasks {
		if s.excludedProject != "" && strings.ToLower(t.ProjectName) == s.excludedProject {
			continue
		}
		key := groupKey{host: t.HostName, project: t.ProjectName}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.cpuHours += t.CurrentCPUTime / 3600.0
		if t.ReceivedTime != nil {
			if g.minReceived == nil || t.ReceivedTime.Before(*g.minReceived) {
				g.minReceived = t.ReceivedTime
			}
			if g.maxReceived == nil || t.ReceivedTime.After(*g.maxReceived) {
				g.maxReceived = t.ReceivedTime
			}
		}
	}

	rollups := make([]model.EfficiencyRollup, 0, len(groups))
	for key, g := range groups {
		if g.minReceived == nil || g.cpuHours <= 0 {
			continue
		}
		startDay := g.minReceived.UTC().Format(DayKeyFormat)
		endDay := g.maxReceived.UTC().Format(DayKeyFormat)
		if startDay >= endDay {
			continue
		}

		start, err := s.stats.EarliestHostProjectStatsOnOrAfter(ctx, key.host, key.project, startDay)
		if err != nil {
			return nil, err
		}
		end, err := s.stats.LatestHostProjectStatsOnOrBefore(ctx, key.host, key.project, endDay)
		if err != nil {
			return nil, err
		}
		if start == nil || end == nil || start.YYYYMMDD == end.YYYYMMDD {
			continue
		}

		points := end.TotalCredit - start.TotalCredit
		rollups = append(rollups, model.EfficiencyRollup{
			HostName:         key.host,
			ProjectName:      key.project,
			CPUHoursTotal:    g.cpuHours,
			PointsTotal:      points,
			PointsPerCPUHour: points / g.cpuHours,
		})
	}
	return rollups, nil
}

// PublishAll computes every rollup kind and ships them downstream.
// All three kinds are attempted even when one fails; the publish is
// only considered successful when every row of every kind landed.
func (s *AggregationService) PublishAll(ctx context.Context, now time.Time) error {
	stats, err := s.ComputeStatsRollups(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to compute stats rollups: %w", err)
	}
	appRuntimes, err := s.ComputeAppRuntimeRollups(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to compute app runtime rollups: %w", err)
	}
	efficiency, err := s.ComputeEfficiencyRollups(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to compute efficiency rollups: %w", err)
	}

	if s.publisher == nil || !s.publisher.Enabled() {
		logger.DebugCtx(ctx, "downstream publishing disabled, computed %d/%d/%d rollup rows",
			len(stats), len(appRuntimes), len(efficiency))
		return nil
	}

	ok := s.publisher.PublishStats(ctx, stats)
	ok = s.publisher.PublishAppRuntimes(ctx, appRuntimes) && ok
	ok = s.publisher.PublishEfficiency(ctx, efficiency) && ok
	if !ok {
		return fmt.Errorf("one or more rollup rows were not accepted downstream")
	}
	logger.InfoCtx(ctx, "published %d stats, %d app runtime and %d efficiency rollups",
		len(stats), len(appRuntimes), len(efficiency))
	return nil
}
