// Package config loads the run's argument cache: a read-only YAML
// document naming the linear spectrum file(s), the cosmological-model
// sweep, the (k, z, UV, IR, IR-resum) sample ranges, and tolerance
// overrides. Nothing in this
// package is mutated once loaded; pkg/scheduler treats it as
// read-only input for the lifetime of a run.
package config
