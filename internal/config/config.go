// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/nsa-pipeline/internal/schemas"
)

// Default values applied when neither a config file, the environment nor a
// flag sets them.
const (
	DefaultThreads       = 14
	DefaultMinLen        = 200
	DefaultMinMapQ       = 10
	DefaultHashWidth     = 8
	DefaultChunkSize     = "500M"
	DefaultControl       = "ACT1"
	DefaultBlastTask     = "megablast"
	DefaultBlastEValue   = 1e-10
	DefaultMaxTargetSeqs = 1
)

// StageFlags enables or disables each optional stage.
type StageFlags struct {
	WIG        bool `json:"wig" yaml:"wig"`
	Bedgraph   bool `json:"bedgraph" yaml:"bedgraph"`
	Norm       bool `json:"norm" yaml:"norm"`
	Target     bool `json:"target" yaml:"target"`
	TargetOnly bool `json:"target_only" yaml:"target_only"`
	Flanks     bool `json:"flanks" yaml:"flanks"`
	YASS       bool `json:"yass" yaml:"yass"`
	BLAST      bool `json:"blast" yaml:"blast"`
}

// Enabled reports the flag registered under a RUN_* style name such as
// "RUN_TARGET". Unknown names report false.
func (s StageFlags) Enabled(flag string) bool {
	switch flag {
	case "RUN_WIG":
		return s.WIG
	case "RUN_BEDGRAPH":
		return s.Bedgraph
	case "RUN_NORM":
		return s.Norm
	case "RUN_TARGET":
		return s.Target
	case "RUN_TGT_ONLY":
		return s.TargetOnly
	case "RUN_FLANKS":
		return s.Flanks
	case "RUN_YASS":
		return s.YASS
	case "RUN_BLAST":
		return s.BLAST
	}
	return false
}

// Tools names the executable used for each external collaborator.
type Tools struct {
	Minimap2    string `json:"minimap2,omitempty" yaml:"minimap2,omitempty"`
	Samtools    string `json:"samtools,omitempty" yaml:"samtools,omitempty"`
	IGVTools    string `json:"igvtools,omitempty" yaml:"igvtools,omitempty"`
	Bedtools    string `json:"bedtools,omitempty" yaml:"bedtools,omitempty"`
	Python      string `json:"python,omitempty" yaml:"python,omitempty"`
	YASS        string `json:"yass,omitempty" yaml:"yass,omitempty"`
	BLASTN      string `json:"blastn,omitempty" yaml:"blastn,omitempty"`
	MakeBLASTDB string `json:"makeblastdb,omitempty" yaml:"makeblastdb,omitempty"`
}

// BlastOptions are passed through to the classification search.
type BlastOptions struct {
	Task          string  `json:"task,omitempty" yaml:"task,omitempty"`
	EValue        float64 `json:"evalue,omitempty" yaml:"evalue,omitempty" validate:"gte=0"`
	MaxTargetSeqs int     `json:"max_target_seqs,omitempty" yaml:"max_target_seqs,omitempty" validate:"gte=0"`
}

// RenderOptions style the dot plots drawn for each positive read.
type RenderOptions struct {
	Width        int     `json:"width,omitempty" yaml:"width,omitempty" validate:"gte=0"`
	Margin       int     `json:"margin,omitempty" yaml:"margin,omitempty" validate:"gte=0"`
	ForwardColor string  `json:"forward_color,omitempty" yaml:"forward_color,omitempty"`
	ReverseColor string  `json:"reverse_color,omitempty" yaml:"reverse_color,omitempty"`
	Thickness    float64 `json:"thickness,omitempty" yaml:"thickness,omitempty" validate:"gte=0"`
}

// Config represents the pipeline configuration. It can be loaded from a JSON
// or YAML file; positional arguments, RUN_* variables and flags override it.
type Config struct {
	// Job selection
	Prefix  string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Start   int    `json:"start,omitempty" yaml:"start,omitempty" validate:"gte=0,lte=99"`
	End     int    `json:"end,omitempty" yaml:"end,omitempty" validate:"gte=0,lte=99,gtefield=Start"`
	RefBase string `json:"refbase,omitempty" yaml:"refbase,omitempty"`

	// Resources
	Threads   int    `json:"threads,omitempty" yaml:"threads,omitempty" validate:"gte=1"`
	MinLen    int    `json:"min_len,omitempty" yaml:"min_len,omitempty" validate:"gte=0"`
	MinMapQ   int    `json:"min_mapq,omitempty" yaml:"min_mapq,omitempty" validate:"gte=0,lte=255"`
	HashWidth int    `json:"hash_width,omitempty" yaml:"hash_width,omitempty" validate:"omitempty,gte=4,lte=16"`
	ChunkSize string `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`

	// Locations
	InputDir  string `json:"input_dir,omitempty" yaml:"input_dir,omitempty"`
	OutDir    string `json:"out_dir,omitempty" yaml:"out_dir,omitempty"`
	RefDir    string `json:"ref_dir,omitempty" yaml:"ref_dir,omitempty"`
	ScriptDir string `json:"script_dir,omitempty" yaml:"script_dir,omitempty"`
	Control   string `json:"control,omitempty" yaml:"control,omitempty"`

	Stages StageFlags    `json:"stages" yaml:"stages"`
	Tools  Tools         `json:"tools,omitempty" yaml:"tools,omitempty"`
	Blast  BlastOptions  `json:"blast,omitempty" yaml:"blast,omitempty"`
	Render RenderOptions `json:"render,omitempty" yaml:"render,omitempty"`

	// Behavior
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"` // PostgreSQL connection URL
	Verbose     bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`           // Print every external command
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Threads:   DefaultThreads,
		MinLen:    DefaultMinLen,
		MinMapQ:   DefaultMinMapQ,
		HashWidth: DefaultHashWidth,
		ChunkSize: DefaultChunkSize,
		InputDir:  ".",
		OutDir:    ".",
		RefDir:    "reference",
		ScriptDir: "scripts",
		Control:   DefaultControl,
		Stages: StageFlags{
			WIG:      true,
			Bedgraph: true,
			Norm:     true,
			Target:   true,
			YASS:     true,
			BLAST:    true,
		},
		Tools: Tools{
			Minimap2:    "minimap2",
			Samtools:    "samtools",
			IGVTools:    "igvtools",
			Bedtools:    "bedtools",
			Python:      "python3",
			YASS:        "yass",
			BLASTN:      "blastn",
			MakeBLASTDB: "makeblastdb",
		},
		Blast: BlastOptions{
			Task:          DefaultBlastTask,
			EValue:        DefaultBlastEValue,
			MaxTargetSeqs: DefaultMaxTargetSeqs,
		},
		Render: RenderOptions{
			Width:        750,
			Margin:       10,
			ForwardColor: "#000000",
			ReverseColor: "#000000",
			Thickness:    1.0,
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file and layers it over
// Defaults. The document is checked against the config JSON Schema first.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := schemas.ValidateConfig(data); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &cfg, nil
}

// yamlToJSON re-encodes a YAML document as JSON so a single schema and a
// single set of struct tags govern both formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return json.Marshal(doc)
}

// Validate checks that the configuration has valid values.
// Note: REFBASE and PREFIX are only required once positional arguments have
// been merged, so call Validate after all overrides are applied.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("'%s' failed '%s' (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.Prefix == "" {
		return fmt.Errorf("config error: 'prefix' is required")
	}
	if c.RefBase == "" {
		return fmt.Errorf("config error: 'refbase' is required")
	}
	if strings.ContainsAny(c.Prefix+c.RefBase+c.Control, `/\`) {
		return fmt.Errorf("config error: prefix, refbase and control must not contain path separators")
	}
	if c.InputDir != "" {
		if info, err := os.Stat(c.InputDir); err != nil || !info.IsDir() {
			return fmt.Errorf("config error: input directory not found: %s", c.InputDir)
		}
	}

	return nil
}

// Warnings returns configuration combinations that are legal but will not
// do what the operator probably expects.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Stages.YASS && !c.Stages.Target {
		warnings = append(warnings, "RUN_YASS=1 requires RUN_TARGET=1; visualization will be skipped")
	}
	if c.Stages.Norm && !c.Stages.Bedgraph {
		warnings = append(warnings, "RUN_NORM=1 requires RUN_BEDGRAPH=1; normalization will be skipped")
	}
	return warnings
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	mergeString(&result.Prefix, defaults.Prefix)
	mergeString(&result.RefBase, defaults.RefBase)
	mergeString(&result.ChunkSize, defaults.ChunkSize)
	mergeString(&result.InputDir, defaults.InputDir)
	mergeString(&result.OutDir, defaults.OutDir)
	mergeString(&result.RefDir, defaults.RefDir)
	mergeString(&result.ScriptDir, defaults.ScriptDir)
	mergeString(&result.Control, defaults.Control)
	mergeString(&result.DatabaseURL, defaults.DatabaseURL)

	mergeString(&result.Tools.Minimap2, defaults.Tools.Minimap2)
	mergeString(&result.Tools.Samtools, defaults.Tools.Samtools)
	mergeString(&result.Tools.IGVTools, defaults.Tools.IGVTools)
	mergeString(&result.Tools.Bedtools, defaults.Tools.Bedtools)
	mergeString(&result.Tools.Python, defaults.Tools.Python)
	mergeString(&result.Tools.YASS, defaults.Tools.YASS)
	mergeString(&result.Tools.BLASTN, defaults.Tools.BLASTN)
	mergeString(&result.Tools.MakeBLASTDB, defaults.Tools.MakeBLASTDB)

	mergeString(&result.Blast.Task, defaults.Blast.Task)
	mergeString(&result.Render.ForwardColor, defaults.Render.ForwardColor)
	mergeString(&result.Render.ReverseColor, defaults.Render.ReverseColor)

	// Numeric fields: use default if zero
	mergeInt(&result.HashWidth, defaults.HashWidth)
	mergeInt(&result.Blast.MaxTargetSeqs, defaults.Blast.MaxTargetSeqs)
	mergeInt(&result.Render.Width, defaults.Render.Width)
	if result.Blast.EValue == 0 {
		result.Blast.EValue = defaults.Blast.EValue
	}
	if result.Render.Thickness == 0 {
		result.Render.Thickness = defaults.Render.Thickness
	}

	// Threads, MinLen, MinMapQ, Start, Margin and the stage flags are never
	// merged: zero is either a legal choice or must reach Validate.

	return result
}

func mergeString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func mergeInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}
