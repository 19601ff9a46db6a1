package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"

	"github.com/kadirbelkuyu/dbxfer/internal/dialect"
)

const DefaultBatchSize = 1000

// TransferConfig holds the per-transfer settings shared by the CLI and plans.
type TransferConfig struct {
	SourceSchema string        `yaml:"source_schema,omitempty" toml:"source_schema" env:"DBXFER_SOURCE_SCHEMA"`
	TargetSchema string        `yaml:"target_schema,omitempty" toml:"target_schema" env:"DBXFER_TARGET_SCHEMA"`
	BatchSize    int           `yaml:"batch_size,omitempty" toml:"batch_size" env:"DBXFER_BATCH_SIZE"`
	Tables       []string      `yaml:"tables,omitempty" toml:"tables"`
	Hints        dialect.Hints `yaml:"hints,omitempty" toml:"hints"`
}

// Merge fills unset fields from defaults.
func (tc TransferConfig) Merge(defaults TransferConfig) TransferConfig {
	if tc.SourceSchema == "" {
		tc.SourceSchema = defaults.SourceSchema
	}
	if tc.TargetSchema == "" {
		tc.TargetSchema = defaults.TargetSchema
	}
	if tc.BatchSize <= 0 {
		tc.BatchSize = defaults.BatchSize
	}
	if len(tc.Tables) == 0 {
		tc.Tables = slices.Clone(defaults.Tables)
	}
	if tc.Hints == (dialect.Hints{}) {
		tc.Hints = defaults.Hints
	}
	return tc
}

// ApplyEnv overrides fields from DBXFER_* variables. On a malformed value
// the config is left untouched and the parse error is returned.
func ApplyEnv(tc *TransferConfig) error {
	parsed := *tc
	if err := env.Parse(&parsed); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	*tc = parsed
	return nil
}

type Job struct {
	Name           string `yaml:"name" toml:"name"`
	Source         string `yaml:"source" toml:"source"`
	Target         string `yaml:"target" toml:"target"`
	TransferConfig `yaml:",inline"`
}

// Plan describes several transfers run together.
type Plan struct {
	Workers  int            `yaml:"workers,omitempty" toml:"workers"`
	Defaults TransferConfig `yaml:"defaults,omitempty" toml:"defaults"`
	Jobs     []Job          `yaml:"jobs" toml:"jobs"`
}

func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var plan Plan
	if err := decode(path, data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (p *Plan) Validate() error {
	if len(p.Jobs) == 0 {
		return fmt.Errorf("plan has no jobs")
	}
	seen := make(map[string]bool, len(p.Jobs))
	for i := range p.Jobs {
		job := &p.Jobs[i]
		if job.Name == "" {
			job.Name = fmt.Sprintf("job-%d", i+1)
		}
		if seen[job.Name] {
			return fmt.Errorf("duplicate job name %q", job.Name)
		}
		seen[job.Name] = true
		if job.Source == "" || job.Target == "" {
			return fmt.Errorf("job %q needs both source and target", job.Name)
		}
	}
	if p.Workers <= 0 {
		p.Workers = 1
	}
	return nil
}

// Resolve returns the job's settings with plan defaults and the package
// default batch size applied.
func (p *Plan) Resolve(job Job) TransferConfig {
	tc := job.TransferConfig.Merge(p.Defaults)
	if tc.BatchSize <= 0 {
		tc.BatchSize = DefaultBatchSize
	}
	return tc
}

// Settings are process-wide knobs read only from the environment.
type Settings struct {
	ProfileDir string `env:"DBXFER_PROFILE_DIR" envDefault:"configs"`
}

func LoadSettings() (Settings, error) {
	return env.ParseAs[Settings]()
}
