// Package metrics exposes the Prometheus instrumentation for the
// dispatch pipeline: work-list sizes and phase durations from
// pkg/scheduler, integration attempt/outcome counters from
// pkg/cubature, and commit/token counters from pkg/storage. All
// metrics are registered at package init and served at /metrics via
// Handler.
package metrics
