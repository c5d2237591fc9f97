// Package maintenance runs periodic housekeeping on a cron schedule.
//
// Each Task is a named function returning how many items it removed. The
// server registers two: pruning usage rows older than the retention period
// and forgetting rate limiter keys that have been idle.
//
//	s := maintenance.NewScheduler("0 3 * * *",
//	    maintenance.UsageRetention(store, 30),
//	    maintenance.LimiterPrune(limiter, time.Hour),
//	)
//	if err := s.Start(ctx); err != nil {
//	    return err
//	}
//	defer s.Stop()
package maintenance
