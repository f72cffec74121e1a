package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// TaskRepository handles task and app fact persistence in MySQL.
type TaskRepository struct {
	ds *Datastore
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(ds *Datastore) *TaskRepository {
	return &TaskRepository{ds: ds}
}

// UpsertTasks bulk-upserts task facts keyed by (project, task, host).
func (r *TaskRepository) UpsertTasks(ctx context.Context, tasks []BoincTask) error {
	if len(tasks) == 0 {
		return nil
	}
	err := r.ds.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "project_name"}, {Name: "task_name"}, {Name: "host_name"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"app_name", "current_cpu_time", "elapsed_time",
			"estimated_cpu_time_remaining", "fraction_done",
			"received_time", "updated_at",
		}),
	}).Create(&tasks).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d tasks: %w", len(tasks), err)
	}
	return nil
}

// UpsertApps bulk-upserts app facts keyed by (project, name).
func (r *TaskRepository) UpsertApps(ctx context.Context, apps []BoincApp) error {
	if len(apps) == 0 {
		return nil
	}
	err := r.ds.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "project_name"}, {Name: "name"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"project_url", "user_friendly_name", "updated_at",
		}),
	}).Create(&apps).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d apps: %w", len(apps), err)
	}
	return nil
}

// ListTasks returns all task facts.
func (r *TaskRepository) ListTasks(ctx context.Context) ([]BoincTask, error) {
	var tasks []BoincTask
	if err := r.ds.DB(ctx).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// CleanupStaleTasks removes task facts not refreshed since the given
// time. Retention is operational hygiene, not a correctness concern.
func (r *TaskRepository) CleanupStaleTasks(ctx context.Context, before time.Time) (int64, error) {
	result := r.ds.DB(ctx).Where("updated_at < ?", before).Delete(&BoincTask{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clean up stale tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}
