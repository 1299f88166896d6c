// Package log wraps zerolog with the component-scoped logger
// convention used throughout this repository: a process-wide logger
// configured once via Init, a WithComponent/WithPhase/WithWorker child
// logger threaded into each subsystem, and RouteErr, the central
// error-handler sink that classifies an error via
// pkg/errkind and logs it at the severity its Kind implies.
package log
