package service

import (
	"context"
	"time"

	"boincwatch/internal/model"
	"boincwatch/pkg/logger"
	"boincwatch/pkg/metrics"
	"boincwatch/pkg/store/mysql"
)

// taskStore is the slice of the task repository the fact collection
// writes through.
type taskStore interface {
	UpsertTasks(ctx context.Context, tasks []mysql.BoincTask) error
	UpsertApps(ctx context.Context, apps []mysql.BoincApp) error
	CleanupStaleTasks(ctx context.Context, before time.Time) (int64, error)
}

// TaskService persists per-task and per-app facts from poll results.
// Facts are keyed by natural identity and refreshed in place; rows for
// tasks no longer observed age out through retention.
type TaskService struct {
	repo taskStore
}

// NewTaskService creates a new task service
func NewTaskService(repo taskStore) *TaskService {
	return &TaskService{repo: repo}
}

// CollectFacts upserts the task and app facts observed this cycle.
func (s *TaskService) CollectFacts(ctx context.Context, now time.Time, results []model.HostPollResult) error {
	now = now.UTC()
	var tasks []mysql.BoincTask
	apps := make(map[string]mysql.BoincApp)

	for _, r := range results {
		if !r.Alive() || r.HostName == "" {
			continue
		}
		nameByURL := projectNamesByURL(r.Projects)

		for _, t := range r.Tasks {
			projectName := nameByURL[NormalizeProjectKey(t.ProjectURL)]
			if projectName == "" || t.TaskName == "" {
				logger.WarnCtx(ctx, "skipping task fact %q on %s: unresolvable project %q", t.TaskName, r.HostName, t.ProjectURL)
				continue
			}
			var received *time.Time
			if !t.ReceivedTime.IsZero() {
				rt := t.ReceivedTime
				received = &rt
			}
			tasks = append(tasks, mysql.BoincTask{
				ProjectName:               projectName,
				TaskName:                  t.TaskName,
				HostName:                  r.HostName,
				AppName:                   t.AppName,
				CurrentCPUTime:            t.CurrentCPUTime,
				ElapsedTime:               t.ElapsedTime,
				EstimatedCPUTimeRemaining: t.EstimatedCPUTimeRemaining,
				FractionDone:              t.FractionDone,
				ReceivedTime:              received,
				UpdatedAt:                 now,
			})
		}

		for _, a := range r.Apps {
			projectName := nameByURL[NormalizeProjectKey(a.ProjectURL)]
			if projectName == "" || a.Name == "" {
				continue
			}
			key := projectName + "|" + a.Name
			// Hosts disagree on display names when one runs an older
			// client; a non-empty display name wins the merge.
			existing, seen := apps[key]
			if seen && (existing.UserFriendlyName != "" || a.UserFriendlyName == "") {
				continue
			}
			apps[key] = mysql.BoincApp{
				ProjectName:      projectName,
				Name:             a.Name,
				ProjectURL:       a.ProjectURL,
				UserFriendlyName: a.UserFriendlyName,
				UpdatedAt:        now,
			}
		}
	}

	if err := s.repo.UpsertTasks(ctx, tasks); err != nil {
		return err
	}
	metrics.TaskFactsUpserted.Add(float64(len(tasks)))

	appRows := make([]mysql.BoincApp, 0, len(apps))
	for _, a := range apps {
		appRows = append(appRows, a)
	}
	if err := s.repo.UpsertApps(ctx, appRows); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "collected %d task facts and %d app facts", len(tasks), len(appRows))
	return nil
}

// CleanupStaleFacts removes task rows not refreshed within the
// retention window.
func (s *TaskService) CleanupStaleFacts(ctx context.Context, retention time.Duration) error {
	if retention <= 0 {
		return nil
	}
	removed, err := s.repo.CleanupStaleTasks(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		return err
	}
	if removed > 0 {
		logger.InfoCtx(ctx, "removed %d stale task facts", removed)
	}
	return nil
}

// projectNamesByURL maps normalized master urls to the project key
// used on persisted rows.
func projectNamesByURL(projects []model.ProjectSnapshot) map[string]string {
	out := make(map[string]string, len(projects))
	for _, p := range projects {
		key := snapshotProjectKey(p)
		if key == "" {
			continue
		}
		out[NormalizeProjectKey(p.MasterURL)] = key
	}
	return out
}
