// Package worker implements the compute side of the dynamic
// master-worker dispatcher: a state machine driven entirely by the
// control tags crossing a pkg/wire.Conn (IDLE waiting on
// TASK_BEGIN/TERMINATE; EXECUTING waiting on NEW_ITEM/TASK_END, one
// RESULT per NEW_ITEM). Workers hold no global state beyond the
// parameter block carried in the current NEW_ITEM's dispatch payload
// and never touch pkg/storage directly.
package worker
