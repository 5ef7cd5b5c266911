package cron_config

type Config struct {
	// Heartbeat log line, every hour
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 0 * * * *"`
	// Overrides SYNC_RESYNC_SCHEDULE when set
	CronScheduleResync string `env:"CRON_SCHEDULE_RESYNC"`
}
