// Package janitor purges expired password reset tokens on a cron schedule.
//
//	j := janitor.New(userStore, janitor.Options{Schedule: "*/15 * * * *"})
//	if err := j.Start(); err != nil { ... }
//	defer j.Stop(ctx)
//
// cmd/thoughtnest-janitor runs it standalone; the API server can run it
// in-process when janitor.enabled is set.
package janitor
