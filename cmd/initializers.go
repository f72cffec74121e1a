package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"boincwatch/app/handler"
	"boincwatch/app/router"
	"boincwatch/internal/service"
	"boincwatch/pkg/config"
	"boincwatch/pkg/logger"
	"boincwatch/pkg/statsapi"
	mysqlstore "boincwatch/pkg/store/mysql"
	redisstore "boincwatch/pkg/store/redis"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
	})
	return nil
}

// initMySQL initializes MySQL
func (app *Application) initMySQL() error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		app.config.MySQL.User,
		app.config.MySQL.Password,
		app.config.MySQL.Host,
		app.config.MySQL.Port,
		app.config.MySQL.Database,
	)

	repo, err := mysqlstore.NewRepository(dsn)
	if err != nil {
		return err
	}
	if err := repo.GetDatastore().AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	app.mysqlRepo = repo
	app.registerCleanup(func() {
		repo.Close()
	})

	return nil
}

// initRedis initializes Redis. Optional; without it the job locks run
// in single-instance mode.
func (app *Application) initRedis() error {
	client, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}
	if client == nil {
		logger.InfoCtx(app.ctx, "Redis not configured, job locks run in single-instance mode")
		return nil
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
	})

	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	app.statsClient = statsapi.NewClient(app.config.Downstream)

	app.pollerService = service.NewPollerService(app.config.Polling)
	app.projectService = service.NewProjectService(app.mysqlRepo.Project)
	app.statsService = service.NewStatsService(app.mysqlRepo.Stats, app.projectService)
	app.taskService = service.NewTaskService(app.mysqlRepo.Task)
	app.aggregationService = service.NewAggregationService(
		app.mysqlRepo.Stats,
		app.mysqlRepo.Task,
		app.statsClient,
		app.config.Aggregation.ExcludedProject,
	)
	app.bootstrapService = service.NewBootstrapService(
		app.mysqlRepo.Stats,
		app.projectService,
		app.config.Bootstrap.CSVPath,
	)
	return nil
}

// initBootstrap runs the one-time historical credit import.
func (app *Application) initBootstrap() error {
	return app.bootstrapService.SeedFromCSV(app.ctx)
}

// initHTTPServer initializes the operational HTTP server
func (app *Application) initHTTPServer() error {
	if app.config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	app.ginEngine = gin.New()
	app.statusHandler = handler.NewStatusHandler(app.jobsManager)

	r := router.NewRouter(app.statusHandler)
	r.Setup(app.ginEngine)

	port := app.config.Server.Port
	if port == 0 {
		port = 8080
		app.config.Server.Port = port
	}
	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           app.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}
