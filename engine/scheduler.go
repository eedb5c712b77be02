package engine

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger = slog.Default()

// InitializeSchedules starts the janitor that closes viewers nobody has polled for a while
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	c := cron.New()
	var janitorJob cron.Job
	janitorJob = cron.FuncJob(serverHandler.janitorJobFunc)
	janitorJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(janitorJob) //ensure we don't kick off another if old one is still running
	if _, err := c.AddJob(serverHandler.ServerConfig.JanitorSchedule, janitorJob); err != nil {
		Logger.Error("Invalid janitor schedule, idle viewers will not be reaped", "schedule", serverHandler.ServerConfig.JanitorSchedule, "error", err)
		return c
	}
	Logger.Info("Adding viewer janitor", "schedule", serverHandler.ServerConfig.JanitorSchedule, "idleTimeout", serverHandler.ServerConfig.IdleTimeout)

	if serverHandler.History != nil && serverHandler.ServerConfig.HistoryRetention > 0 {
		pruneJob := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cron.FuncJob(serverHandler.pruneHistory))
		if _, err := c.AddJob(serverHandler.ServerConfig.HistorySchedule, pruneJob); err != nil {
			Logger.Error("Invalid history schedule, old views will not be pruned", "schedule", serverHandler.ServerConfig.HistorySchedule, "error", err)
		} else {
			Logger.Info("Adding history pruning", "schedule", serverHandler.ServerConfig.HistorySchedule, "retention", serverHandler.ServerConfig.HistoryRetention)
		}
	}
	c.Start()
	return c
}

func (serverHandler *ServerHandler) janitorJobFunc() {
	// Add panic recovery to prevent entire application crash
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in janitor job", "panic", r)
		}
	}()

	if serverHandler.ServerConfig.IdleTimeout <= 0 {
		return
	}
	if reaped := serverHandler.Registry.ReapIdle(serverHandler.ServerConfig.IdleTimeout); reaped > 0 {
		Logger.Info("Janitor closed idle viewers", "count", reaped, "remaining", serverHandler.Registry.Len())
	}
}
