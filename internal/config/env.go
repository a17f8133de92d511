package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// StageEnv holds the RUN_* stage toggles. Unset variables stay nil so they
// do not override a config file.
type StageEnv struct {
	WIG        *bool `envconfig:"RUN_WIG"`
	Bedgraph   *bool `envconfig:"RUN_BEDGRAPH"`
	Norm       *bool `envconfig:"RUN_NORM"`
	Target     *bool `envconfig:"RUN_TARGET"`
	TargetOnly *bool `envconfig:"RUN_TGT_ONLY"`
	Flanks     *bool `envconfig:"RUN_FLANKS"`
	YASS       *bool `envconfig:"RUN_YASS"`
	BLAST      *bool `envconfig:"RUN_BLAST"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// LoadStageEnv reads the RUN_* toggles from the environment. Values accept
// anything strconv.ParseBool does, so RUN_YASS=0 disables visualization.
func LoadStageEnv() (StageEnv, error) {
	var env StageEnv
	if err := envconfig.Process("", &env); err != nil {
		return StageEnv{}, fmt.Errorf("failed to read stage toggles from environment: %w", err)
	}
	return env, nil
}

// Apply overrides the stage flags of cfg with every variable that was set.
func (e StageEnv) Apply(cfg *Config) {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.Stages.WIG, e.WIG)
	set(&cfg.Stages.Bedgraph, e.Bedgraph)
	set(&cfg.Stages.Norm, e.Norm)
	set(&cfg.Stages.Target, e.Target)
	set(&cfg.Stages.TargetOnly, e.TargetOnly)
	set(&cfg.Stages.Flanks, e.Flanks)
	set(&cfg.Stages.YASS, e.YASS)
	set(&cfg.Stages.BLAST, e.BLAST)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = e.DatabaseURL
	}
}
