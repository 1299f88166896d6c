// Package types holds the plain data types exchanged between the
// master controller, the data manager, and the worker pool: the FRW
// model and sample entities, the parameter blocks, the
// growth/loop/assembled-Pk/Matsubara/multipole result rows, and the
// per-phase work-record/work-list types.
//
// Every cross-reference between these types is a token (pkg/token),
// never an owning pointer, so there are no reference cycles to reason
// about and no lifetime coupling between a row and the rows it
// depends on.
package types
