// Package scheduler runs background jobs on cron schedules or fixed
// intervals.
//
// Jobs can be named, bounded by a timeout and given an overlap policy:
//
//	s := New(Config{Logger: log})
//	s.AddCronJobWithOptions("@every 1m", HealthCheck(db, m, log, 5*time.Second), JobOptions{
//		Name:          "db-health",
//		OverlapPolicy: SkipIfRunning,
//	})
//	s.Start()
//	defer s.Stop()
//
// Panics and errors are logged and never stop the scheduler. Cancelling
// the parent context given to NewWithContext stops every job, and
// StopContext bounds the wait for running jobs.
//
// Start wires the jobs the server needs: a database health check on the
// configured schedule and an hourly purge of dead refresh tokens.
package scheduler
