// Package queue runs background work inside the process.
//
// Scheduler fires named periodic tasks on a Schedule, for example the daily
// expired trial sweep:
//
//	s := queue.NewScheduler(queue.WithSchedulerLogger(log))
//	_ = s.AddTask("sweep-expired-trials", queue.DailyAt(2, 0), sweep)
//	go s.Start(ctx)
//
// Pool runs fire-and-forget work with bounded concurrency. Work always gets a
// context detached from the caller and bounded by the task timeout, so a
// request finishing does not cancel a refund half way. When every slot is
// busy the caller runs the work itself.
package queue
