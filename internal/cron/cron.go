package cron

import (
	"context"
	"sync"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/customeros/feedsync/config"
	"github.com/customeros/feedsync/interfaces"
	cron_config "github.com/customeros/feedsync/internal/cron/config"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/tracing"
	"github.com/customeros/feedsync/internal/utils"
)

// CONSTANTS
const (
	// GroupSync is the group for remote sync jobs
	GroupSync = "sync"

	DefaultResyncSchedule = "@every 5m"
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupSync: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg      *config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	stopCh   chan struct{}
	stopOnce sync.Once
	jobIDs   map[string]cronv3.EntryID
	sync     interfaces.SyncService
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewCronManager(cfg *config.Config, log logger.Logger, syncService interfaces.SyncService) *CronManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &CronManager{
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
		jobIDs: make(map[string]cronv3.EntryID),
		sync:   syncService,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		if cm.cron != nil {
			cm.log.Info("Stopping cron manager")
			ctx := cm.cron.Stop()
			// Wait for jobs to finish
			<-ctx.Done()
		}
		close(cm.stopCh)
		cm.cancel()
	})
}

// StopNoWait stops scheduling and cancels a running job without waiting
// for it.
func (cm *CronManager) StopNoWait() {
	cm.cancel()
	cm.stopOnce.Do(func() {
		if cm.cron != nil {
			cm.cron.Stop()
		}
		close(cm.stopCh)
	})
}

func (cm *CronManager) resyncSchedule(cronConfig cron_config.Config) string {
	if cronConfig.CronScheduleResync != "" {
		return cronConfig.CronScheduleResync
	}
	if cm.cfg != nil && cm.cfg.SyncConfig != nil && cm.cfg.SyncConfig.ResyncSchedule != "" {
		return cm.cfg.SyncConfig.ResyncSchedule
	}
	return DefaultResyncSchedule
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	// Load cron config from environment variables
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		return err
	}

	if cronConfig.CronScheduleHeartbeat != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Debug("Cron heartbeat")
		})
		if err != nil {
			return err
		}
		cm.jobIDs["heartbeat"] = id
	}

	if cm.sync != nil {
		schedule := cm.resyncSchedule(cronConfig)
		id, err := c.AddFunc(schedule, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupSync].Lock()
			defer jobLocks.locks[GroupSync].Unlock()
			cm.resync()
		})
		if err != nil {
			return err
		}
		cm.jobIDs["resync"] = id
		cm.log.Infof("Registered resync job with schedule: %s", schedule)
	}
	return nil
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() error {
	cm.log.Info("Starting cron manager")
	// Create a new cron with seconds field enabled and panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger), // Skip if still running
			cronv3.Recover(cronv3.DefaultLogger),            // Default recovery as backup
		),
	}
	c := cronv3.New(cronOptions...)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

func (cm *CronManager) resync() {
	span, ctx := tracing.StartTracerSpan(cm.ctx, "CronManager.resync")
	defer span.Finish()
	tracing.TagComponentCronJob(span)
	tracing.TagRunId(span, utils.GenerateRunID())

	if err := cm.sync.SyncIfIdle(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Warnf("Periodic sync failed: %v", err)
	}
}
