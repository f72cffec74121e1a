package service

import (
	"context"
	"fmt"
	"time"

	"boincwatch/internal/model"
	"boincwatch/pkg/logger"
	"boincwatch/pkg/metrics"
	"boincwatch/pkg/store/mysql"
)

// DayKeyFormat is the layout of the snapshot date key.
const DayKeyFormat = "20060102"

// identityResolver resolves an observed project to its stable id.
type identityResolver interface {
	ResolveProjectID(ctx context.Context, name, url string) (string, error)
}

// snapshotStore is the slice of the stats repository the snapshot
// pipeline writes through.
type snapshotStore interface {
	UpsertHostStats(ctx context.Context, stats *mysql.HostStats) error
	UpsertProjectStats(ctx context.Context, stats *mysql.ProjectStats) error
	UpsertHostProjectStats(ctx context.Context, stats *mysql.HostProjectStats) error
}

// StatsService turns one cycle of poll results into day-keyed credit
// snapshots. Rows are validated before writing; a row that fails is
// logged and skipped so the rest of the cycle still lands.
type StatsService struct {
	repo     snapshotStore
	projects identityResolver
}

// NewStatsService creates a new stats service
func NewStatsService(repo snapshotStore, projects identityResolver) *StatsService {
	return &StatsService{repo: repo, projects: projects}
}

// RecordSnapshots persists host, project and host-project snapshots
// for the given cycle. Repeated cycles on the same day overwrite the
// same rows. Returns an error when any row failed, after attempting
// them all.
func (s *StatsService) RecordSnapshots(ctx context.Context, now time.Time, results []model.HostPollResult) error {
	now = now.UTC()
	dayKey := now.Format(DayKeyFormat)
	failed := 0

	for _, r := range results {
		if r.HostName == "" {
			// A down host with no configured alias has no usable key.
			logger.WarnCtx(ctx, "skipping snapshot for nameless host %s (state %s)", r.IP, r.State)
			continue
		}
		if err := s.recordHostSnapshots(ctx, dayKey, now, r); err != nil {
			failed++
		}
	}

	failed += s.recordProjectSnapshots(ctx, dayKey, now, results)

	if failed > 0 {
		return fmt.Errorf("%d snapshot writes failed this cycle", failed)
	}
	return nil
}

func (s *StatsService) recordHostSnapshots(ctx context.Context, dayKey string, now time.Time, r model.HostPollResult) error {
	var firstErr error

	hostCredit := 0.0
	for _, p := range r.Projects {
		hostCredit += p.HostTotalCredit
	}

	ts := now
	hostRow := &mysql.HostStats{
		YYYYMMDD:               dayKey,
		HostName:               r.HostName,
		TotalCredit:            hostCredit,
		Timestamp:              &ts,
		LatestTaskDownloadTime: r.LatestTaskDownloadTime(),
	}
	if err := s.repo.UpsertHostStats(ctx, hostRow); err != nil {
		logger.ErrorCtx(ctx, "failed to record host snapshot for %s: %v", r.HostName, err)
		metrics.SnapshotUpsertFailures.Inc()
		firstErr = err
	}

	for _, p := range r.Projects {
		projectKey := snapshotProjectKey(p)
		if projectKey == "" {
			logger.WarnCtx(ctx, "skipping host-project snapshot on %s: project has no name or url", r.HostName)
			continue
		}
		var download *time.Time
		if t, ok := r.LatestTaskDownloadTimePerProjectURL[p.MasterURL]; ok {
			t := t
			download = &t
		}
		row := &mysql.HostProjectStats{
			YYYYMMDD:               dayKey,
			HostName:               r.HostName,
			ProjectName:            projectKey,
			TotalCredit:            p.HostTotalCredit,
			Timestamp:              &ts,
			LatestTaskDownloadTime: download,
		}
		if err := s.repo.UpsertHostProjectStats(ctx, row); err != nil {
			logger.ErrorCtx(ctx, "failed to record host-project snapshot for %s/%s: %v", r.HostName, projectKey, err)
			metrics.SnapshotUpsertFailures.Inc()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// recordProjectSnapshots merges project readings across hosts. The
// user total is account-wide, so every live host reports the same
// value modulo scheduler lag; the largest reading wins. Returns the
// number of failed writes.
func (s *StatsService) recordProjectSnapshots(ctx context.Context, dayKey string, now time.Time, results []model.HostPollResult) int {
	type merged struct {
		snapshot model.ProjectSnapshot
		download *time.Time
	}
	byID := make(map[string]*merged)

	for _, r := range results {
		if !r.Alive() {
			continue
		}
		for _, p := range r.Projects {
			if snapshotProjectKey(p) == "" {
				continue
			}
			id, err := s.projects.ResolveProjectID(ctx, p.Name, p.MasterURL)
			if err != nil {
				logger.ErrorCtx(ctx, "failed to resolve project %q (%s): %v", p.Name, p.MasterURL, err)
				continue
			}
			cur, ok := byID[id]
			if !ok {
				cur = &merged{snapshot: p}
				byID[id] = cur
			} else if p.UserTotalCredit > cur.snapshot.UserTotalCredit {
				cur.snapshot = p
			}
			if t, ok := r.LatestTaskDownloadTimePerProjectURL[p.MasterURL]; ok {
				t := t
				if cur.download == nil || t.After(*cur.download) {
					cur.download = &t
				}
			}
		}
	}

	failed := 0
	ts := now
	for id, m := range byID {
		row := &mysql.ProjectStats{
			YYYYMMDD:               dayKey,
			ProjectID:              id,
			MasterURL:              m.snapshot.MasterURL,
			ProjectName:            m.snapshot.Name,
			TotalCredit:            m.snapshot.UserTotalCredit,
			Timestamp:              &ts,
			LatestTaskDownloadTime: m.download,
		}
		if err := s.repo.UpsertProjectStats(ctx, row); err != nil {
			logger.ErrorCtx(ctx, "failed to record project snapshot for %s: %v", id, err)
			metrics.SnapshotUpsertFailures.Inc()
			failed++
		}
	}
	return failed
}

// snapshotProjectKey is the name used on host-project rows: the
// display name when the project reports one, its url otherwise.
func snapshotProjectKey(p model.ProjectSnapshot) string {
	if name := NormalizeProjectKey(p.Name); name != "" {
		return p.Name
	}
	return NormalizeProjectKey(p.MasterURL)
}
