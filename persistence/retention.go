package persistence

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tripmesh/tripmesh-server/globals"
)

// StartRetentionSweep schedules the expired-message sweep. The buntdb
// backend expires entries natively and reports an empty sweep; the
// relational backend relies on this job to reclaim rows. The returned cron
// runner should be stopped on shutdown.
func StartRetentionSweep(store Store) *cron.Cron {
	runner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := runner.AddFunc("@every 10m", func() {
		count, err := store.SweepExpiredMessages()
		if err != nil {
			globals.AppLogger.Error("could not sweep expired messages", "error", err)
			return
		}
		if count > 0 {
			globals.AppLogger.Info("removed expired messages", "count", count)
		}
	})
	if err != nil {
		globals.AppLogger.Error("could not schedule retention sweep", "error", err)
		return runner
	}
	runner.Start()
	return runner
}
