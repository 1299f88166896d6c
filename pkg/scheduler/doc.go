// Package scheduler implements the master controller: a dynamic
// master-worker dispatcher that drives the seven-phase pipeline
// (filter, growth, matsubara, loop-kernel, assemble, multipole,
// counterterm) over a pool of pkg/worker loops connected via
// pkg/wire.Conn. For each phase it builds the residual work list
// through pkg/storage, scatters items to whichever worker reports
// READY_FOR_WORK (lowest-numbered ready worker wins ties), commits
// each result before the next item reaches the same worker, and
// broadcasts TASK_END once the queue drains and every worker has gone
// idle.
package scheduler
