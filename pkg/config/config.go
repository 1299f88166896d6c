package config

import (
	"fmt"
	"os"

	"github.com/cuemby/oneloop/pkg/errkind"
	"gopkg.in/yaml.v3"
)

// Range describes a sampled axis, expanded to a slice of float64 by
// Values(). A Range with len(Explicit) > 0 ignores Min/Max/Count.
type Range struct {
	Min      float64   `yaml:"min,omitempty"`
	Max      float64   `yaml:"max,omitempty"`
	Count    int       `yaml:"count,omitempty"`
	Explicit []float64 `yaml:"values,omitempty"`
}

// Values expands the range to concrete sample points, linear in the
// axis as configured. The core imposes no particular spacing;
// logarithmic or other spacing is the caller's responsibility,
// expressed via Explicit).
func (r Range) Values() []float64 {
	if len(r.Explicit) > 0 {
		return r.Explicit
	}
	if r.Count <= 1 {
		return []float64{r.Min}
	}
	out := make([]float64, r.Count)
	step := (r.Max - r.Min) / float64(r.Count-1)
	for i := range out {
		out[i] = r.Min + step*float64(i)
	}
	return out
}

// Model is one entry of the cosmological-model sweep.
type Model struct {
	OmegaM      float64 `yaml:"omega_m"`
	OmegaLambda float64 `yaml:"omega_lambda"`
	H           float64 `yaml:"h"`
	TCMB        float64 `yaml:"t_cmb"`
	NEff        float64 `yaml:"n_eff"`
}

// Tolerances holds the integration tolerances copied into the growth,
// loop-kernel and Matsubara parameter blocks, and the filter smoothing
// width. Storage tokenization tolerances and the cubature retry policy
// are fixed and not set here.
type Tolerances struct {
	GrowthAbsTol         float64 `yaml:"growth_abs_tol"`
	GrowthRelTol         float64 `yaml:"growth_rel_tol"`
	LoopAbsTol13         float64 `yaml:"loop_abs_tol_13"`
	LoopRelTol13         float64 `yaml:"loop_rel_tol_13"`
	LoopAbsTol22         float64 `yaml:"loop_abs_tol_22"`
	LoopRelTol22         float64 `yaml:"loop_rel_tol_22"`
	MatsubaraAbsTol      float64 `yaml:"matsubara_abs_tol"`
	MatsubaraRelTol      float64 `yaml:"matsubara_rel_tol"`
	FilterSmoothingScale float64 `yaml:"filter_smoothing_scale"`
}

// Config is the run's argument cache. It is loaded once
// at startup and never mutated.
type Config struct {
	DataDir       string     `yaml:"data_dir"`
	LinearPkPaths []string   `yaml:"linear_pk_paths"`
	Models        []Model    `yaml:"models"`
	Redshifts     Range      `yaml:"redshifts"`
	Wavenumbers   Range      `yaml:"wavenumbers"`
	UVCutoffs     Range      `yaml:"uv_cutoffs"`
	IRCutoffs     Range      `yaml:"ir_cutoffs"`
	IRResumScales Range      `yaml:"ir_resum_scales"`
	Tolerances    Tolerances `yaml:"tolerances"`
	Workers       int        `yaml:"workers"`
	LogLevel      string     `yaml:"log_level"`
	LogJSON       bool       `yaml:"log_json"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.Configuration, fmt.Errorf("read config %s: %w", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errkind.Wrap(errkind.Configuration, fmt.Errorf("parse config %s: %w", path, err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, errkind.Wrap(errkind.Configuration, err)
	}
	return &cfg, nil
}

// Validate reports the first malformed or missing field, before any
// store is opened or mutated.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if len(c.LinearPkPaths) == 0 {
		return fmt.Errorf("at least one entry in linear_pk_paths is required")
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one entry in models is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	for _, r := range []struct {
		name string
		r    Range
	}{
		{"redshifts", c.Redshifts},
		{"wavenumbers", c.Wavenumbers},
		{"uv_cutoffs", c.UVCutoffs},
		{"ir_cutoffs", c.IRCutoffs},
		{"ir_resum_scales", c.IRResumScales},
	} {
		if len(r.r.Explicit) == 0 && r.r.Count <= 0 {
			return fmt.Errorf("%s: either values or a positive count is required", r.name)
		}
	}
	return nil
}
