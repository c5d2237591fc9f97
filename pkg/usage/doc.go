// Package usage records per-caller request and token counts by UTC day.
//
// Successful /proxy and /stream calls are written with Increment; the
// security gate reads the current day's total to enforce the optional daily
// request quota. Two backends exist: MemoryStore for single-process
// deployments where counts may be lost on restart, and SQLStore which
// persists rows in SQLite through either the pure Go "sqlite" driver or the
// cgo "sqlite3" driver.
//
// Rows older than the retention period are removed by Prune, which the
// maintenance scheduler calls on its cron schedule.
package usage
