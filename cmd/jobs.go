package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"boincwatch/internal/jobs"
	"boincwatch/internal/service"
	"boincwatch/pkg/config"
	"boincwatch/pkg/lock"
	"boincwatch/pkg/logger"
	"boincwatch/pkg/metrics"
)

func (app *Application) initJobs() error {
	if app.pollerService == nil || app.statsService == nil {
		logger.WarnCtx(app.ctx, "Service layer not fully initialized yet, skipping background task registration")
		return nil
	}

	manager := jobs.NewManager(app.ctx)

	statsInterval := time.Duration(app.config.Scheduling.StatsIntervalMinutes) * time.Minute
	if statsInterval <= 0 {
		statsInterval = 30 * time.Minute
	}
	taskInterval := time.Duration(app.config.Scheduling.TaskIntervalMinutes) * time.Minute
	if taskInterval <= 0 {
		taskInterval = 15 * time.Minute
	}
	retentionInterval := time.Duration(app.config.Scheduling.RetentionIntervalHours) * time.Hour
	if retentionInterval <= 0 {
		retentionInterval = 24 * time.Hour
	}
	retentionDays := app.config.Scheduling.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 14
	}

	// Job locks keep multiple replicas from polling the same fleet in
	// the same cycle. Without Redis they degrade to single-instance mode.
	var redisClient *redis.Client
	if app.redisClient != nil {
		redisClient = app.redisClient.GetClient()
	}

	statsLock := lock.NewRedisJobLock(redisClient, "jobs:stats-pipeline-lock")
	taskLock := lock.NewRedisJobLock(redisClient, "jobs:task-collection-lock")
	retentionLock := lock.NewRedisJobLock(redisClient, "jobs:task-retention-lock")

	manager.Register(newStatsPipelineJob(statsInterval, app.config, app.pollerService, app.statsService, app.aggregationService, statsLock))
	manager.Register(newTaskCollectionJob(taskInterval, app.config, app.pollerService, app.taskService, taskLock))
	manager.Register(newTaskRetentionJob(retentionInterval, time.Duration(retentionDays)*24*time.Hour, app.taskService, retentionLock))

	app.jobsManager = manager
	return nil
}

// statsPipelineJob runs the full collection cycle: poll the fleet,
// persist the day-keyed snapshots, then compute and publish rollups.
type statsPipelineJob struct {
	interval    time.Duration
	cfg         *config.Config
	poller      *service.PollerService
	stats       *service.StatsService
	aggregation *service.AggregationService
	jobLock     lock.JobLock
}

func newStatsPipelineJob(interval time.Duration, cfg *config.Config, poller *service.PollerService, stats *service.StatsService, aggregation *service.AggregationService, jobLock lock.JobLock) jobs.Job {
	return &statsPipelineJob{
		interval:    interval,
		cfg:         cfg,
		poller:      poller,
		stats:       stats,
		aggregation: aggregation,
		jobLock:     jobLock,
	}
}

func (j *statsPipelineJob) Name() string {
	return "stats-pipeline"
}

func (j *statsPipelineJob) Interval() time.Duration {
	return j.interval
}

func (j *statsPipelineJob) Run(ctx context.Context) error {
	if j.jobLock != nil {
		acquired, err := j.jobLock.TryLock(ctx)
		if err != nil || !acquired {
			logger.DebugCtx(ctx, "another instance is running the stats pipeline, skipping this cycle")
			return nil
		}
		defer j.jobLock.Unlock(ctx)
	}

	now := time.Now().UTC()
	results := j.poller.PollAll(ctx, j.cfg.Hosts)
	metrics.PollCyclesTotal.Inc()

	if err := j.stats.RecordSnapshots(ctx, now, results); err != nil {
		// Snapshots that did land still feed the rollups below.
		logger.WarnCtx(ctx, "stats pipeline recorded partial snapshots: %v", err)
	}

	alive := 0
	for _, r := range results {
		if r.Alive() {
			alive++
		}
	}
	if alive == 0 {
		// A dead fleet produces no new signal; publishing would only
		// restate stale aggregates.
		logger.WarnCtx(ctx, "no host responded this cycle, skipping rollup publish")
		return nil
	}

	if err := j.aggregation.PublishAll(ctx, now); err != nil {
		return fmt.Errorf("stats pipeline publish: %w", err)
	}
	return nil
}

// taskCollectionJob refreshes per-task and per-app facts.
type taskCollectionJob struct {
	interval time.Duration
	cfg      *config.Config
	poller   *service.PollerService
	tasks    *service.TaskService
	jobLock  lock.JobLock
}

func newTaskCollectionJob(interval time.Duration, cfg *config.Config, poller *service.PollerService, tasks *service.TaskService, jobLock lock.JobLock) jobs.Job {
	return &taskCollectionJob{
		interval: interval,
		cfg:      cfg,
		poller:   poller,
		tasks:    tasks,
		jobLock:  jobLock,
	}
}

func (j *taskCollectionJob) Name() string {
	return "task-collection"
}

func (j *taskCollectionJob) Interval() time.Duration {
	return j.interval
}

func (j *taskCollectionJob) Run(ctx context.Context) error {
	if j.jobLock != nil {
		acquired, err := j.jobLock.TryLock(ctx)
		if err != nil || !acquired {
			logger.DebugCtx(ctx, "another instance is running task collection, skipping this cycle")
			return nil
		}
		defer j.jobLock.Unlock(ctx)
	}

	results := j.poller.PollAll(ctx, j.cfg.Hosts)
	return j.tasks.CollectFacts(ctx, time.Now().UTC(), results)
}

// taskRetentionJob removes task facts no longer being refreshed.
type taskRetentionJob struct {
	interval  time.Duration
	retention time.Duration
	tasks     *service.TaskService
	jobLock   lock.JobLock
}

func newTaskRetentionJob(interval, retention time.Duration, tasks *service.TaskService, jobLock lock.JobLock) jobs.Job {
	return &taskRetentionJob{
		interval:  interval,
		retention: retention,
		tasks:     tasks,
		jobLock:   jobLock,
	}
}

func (j *taskRetentionJob) Name() string {
	return "task-retention"
}

func (j *taskRetentionJob) Interval() time.Duration {
	return j.interval
}

func (j *taskRetentionJob) Run(ctx context.Context) error {
	if j.jobLock != nil {
		acquired, err := j.jobLock.TryLock(ctx)
		if err != nil || !acquired {
			logger.DebugCtx(ctx, "another instance is running task retention, skipping this cycle")
			return nil
		}
		defer j.jobLock.Unlock(ctx)
	}

	logger.DebugCtx(ctx, "running task retention cleanup")
	return j.tasks.CleanupStaleFacts(ctx, j.retention)
}
