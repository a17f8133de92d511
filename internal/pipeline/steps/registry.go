// Package steps provides the declarative stage definitions of a barcode job
// and validation of the artifact dependency graph between them.
package steps

import (
	"fmt"
	"slices"

	"github.com/jonathan/nsa-pipeline/internal/artifacts"
	"github.com/jonathan/nsa-pipeline/internal/cache"
)

// Stage names, in execution order
const (
	MergeReads        = "merge_reads"
	AlignReads        = "align_reads"
	WIGCoverage       = "wig_coverage"
	BedgraphCoverage  = "bedgraph_coverage"
	NormalizeBedgraph = "normalize_bedgraph"
	ExtractTargets    = "extract_targets"
	VisualizeTargets  = "visualize_targets"
	ExtractTargetOnly = "extract_target_only"
	ExtractFlanks     = "extract_flanks"
	AlignFlanks       = "align_flanks"
	ConvertFASTA      = "convert_fasta"
	BlastReference    = "blast_reference"
	BlastControl      = "blast_control"
	AppendSummary     = "append_summary"
)

// Stage categories
const (
	CategoryReads          = "reads"
	CategoryAlignment      = "alignment"
	CategoryCoverage       = "coverage"
	CategoryTargets        = "targets"
	CategoryFlanks         = "flanks"
	CategoryClassification = "classification"
)

// Enablement flags
const (
	FlagWIG        = "RUN_WIG"
	FlagBedgraph   = "RUN_BEDGRAPH"
	FlagNorm       = "RUN_NORM"
	FlagTarget     = "RUN_TARGET"
	FlagTargetOnly = "RUN_TGT_ONLY"
	FlagFlanks     = "RUN_FLANKS"
	FlagYASS       = "RUN_YASS"
	FlagBLAST      = "RUN_BLAST"
)

// StepDefinition defines metadata for a pipeline stage
type StepDefinition struct {
	Name     string
	Category string
	// Flag names the enablement toggle; empty means always enabled.
	Flag    string
	Inputs  []artifacts.Kind
	Outputs []artifacts.Kind
	// NonEmpty lists inputs that must also have content, not merely exist.
	NonEmpty []artifacts.Kind
	Policy   cache.Policy
	// ClearOnSkip removes the outputs of an earlier run when the stage is
	// skipped for missing input, so they cannot be mistaken for this run's.
	ClearOnSkip bool
}

// Order is the fixed total order of stages within a job
var Order = []string{
	MergeReads,
	AlignReads,
	WIGCoverage,
	BedgraphCoverage,
	NormalizeBedgraph,
	ExtractTargets,
	VisualizeTargets,
	ExtractTargetOnly,
	ExtractFlanks,
	AlignFlanks,
	ConvertFASTA,
	BlastReference,
	BlastControl,
	AppendSummary,
}

// StepRegistry holds all stage definitions
var StepRegistry = map[string]StepDefinition{
	MergeReads: {
		Name:     MergeReads,
		Category: CategoryReads,
		Inputs:   []artifacts.Kind{artifacts.KindRawReads},
		Outputs:  []artifacts.Kind{artifacts.KindMerged},
		Policy:   cache.Idempotent,
	},
	AlignReads: {
		Name:     AlignReads,
		Category: CategoryAlignment,
		Inputs:   []artifacts.Kind{artifacts.KindMerged, artifacts.KindAlignIndex},
		Outputs:  []artifacts.Kind{artifacts.KindBAM},
	},
	WIGCoverage: {
		Name:     WIGCoverage,
		Category: CategoryCoverage,
		Flag:     FlagWIG,
		Inputs:   []artifacts.Kind{artifacts.KindBAM, artifacts.KindReference},
		Outputs:  []artifacts.Kind{artifacts.KindWIG},
	},
	BedgraphCoverage: {
		Name:     BedgraphCoverage,
		Category: CategoryCoverage,
		Flag:     FlagBedgraph,
		Inputs:   []artifacts.Kind{artifacts.KindBAM},
		Outputs:  []artifacts.Kind{artifacts.KindBedgraph},
	},
	NormalizeBedgraph: {
		Name:     NormalizeBedgraph,
		Category: CategoryCoverage,
		Flag:     FlagNorm,
		Inputs:   []artifacts.Kind{artifacts.KindBedgraph, artifacts.KindReference},
		Outputs:  []artifacts.Kind{artifacts.KindNormBedgraph},
	},
	ExtractTargets: {
		Name:     ExtractTargets,
		Category: CategoryTargets,
		Flag:     FlagTarget,
		Inputs: []artifacts.Kind{
			artifacts.KindMerged,
			artifacts.KindFlankUp,
			artifacts.KindFlankDown,
			artifacts.KindTargetReference,
		},
		Outputs: []artifacts.Kind{artifacts.KindPositive},
	},
	VisualizeTargets: {
		Name:        VisualizeTargets,
		Category:    CategoryTargets,
		Flag:        FlagYASS,
		Inputs:      []artifacts.Kind{artifacts.KindPositive, artifacts.KindReference},
		Outputs:     []artifacts.Kind{artifacts.KindYassDir, artifacts.KindIDMap},
		NonEmpty:    []artifacts.Kind{artifacts.KindPositive},
		ClearOnSkip: true,
	},
	ExtractTargetOnly: {
		Name:     ExtractTargetOnly,
		Category: CategoryTargets,
		Flag:     FlagTargetOnly,
		Inputs:   []artifacts.Kind{artifacts.KindMerged, artifacts.KindTargetReference},
		Outputs:  []artifacts.Kind{artifacts.KindTargetOnly},
	},
	ExtractFlanks: {
		Name:     ExtractFlanks,
		Category: CategoryFlanks,
		Flag:     FlagFlanks,
		Inputs:   []artifacts.Kind{artifacts.KindMerged, artifacts.KindTargetReference},
		Outputs:  []artifacts.Kind{artifacts.KindFlanks},
	},
	AlignFlanks: {
		Name:     AlignFlanks,
		Category: CategoryFlanks,
		Flag:     FlagFlanks,
		Inputs:   []artifacts.Kind{artifacts.KindFlanks, artifacts.KindAlignIndex},
		Outputs:  []artifacts.Kind{artifacts.KindFlankBAM, artifacts.KindFlankBedgraph},
		NonEmpty: []artifacts.Kind{artifacts.KindFlanks},
	},
	ConvertFASTA: {
		Name:     ConvertFASTA,
		Category: CategoryClassification,
		Flag:     FlagBLAST,
		Inputs:   []artifacts.Kind{artifacts.KindMerged},
		Outputs:  []artifacts.Kind{artifacts.KindFASTA},
	},
	BlastReference: {
		Name:     BlastReference,
		Category: CategoryClassification,
		Flag:     FlagBLAST,
		Inputs:   []artifacts.Kind{artifacts.KindFASTA, artifacts.KindBlastDB},
		Outputs:  []artifacts.Kind{artifacts.KindBlastReference},
	},
	BlastControl: {
		Name:     BlastControl,
		Category: CategoryClassification,
		Flag:     FlagBLAST,
		Inputs:   []artifacts.Kind{artifacts.KindFASTA, artifacts.KindControlBlastDB},
		Outputs:  []artifacts.Kind{artifacts.KindBlastControl},
	},
	AppendSummary: {
		Name:     AppendSummary,
		Category: CategoryClassification,
		Flag:     FlagBLAST,
		Inputs: []artifacts.Kind{
			artifacts.KindFASTA,
			artifacts.KindBlastReference,
			artifacts.KindBlastControl,
		},
		Outputs: []artifacts.Kind{artifacts.KindSummary},
	},
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("missing dependencies for %s: %v", e.Step, e.MissingDependencies)
}

// Ordered returns the stage definitions in execution order
func Ordered() []StepDefinition {
	defs := make([]StepDefinition, 0, len(Order))
	for _, name := range Order {
		defs = append(defs, StepRegistry[name])
	}
	return defs
}

// Producer returns the stage that produces kind, or "" for source artifacts
func Producer(kind artifacts.Kind) string {
	for _, name := range Order {
		if slices.Contains(StepRegistry[name].Outputs, kind) {
			return name
		}
	}
	return ""
}

// Dependencies returns the stages whose outputs stepName consumes
func Dependencies(stepName string) ([]string, error) {
	def, ok := StepRegistry[stepName]
	if !ok {
		return nil, fmt.Errorf("unknown step: %s", stepName)
	}
	var deps []string
	for _, in := range def.Inputs {
		if p := Producer(in); p != "" && !slices.Contains(deps, p) {
			deps = append(deps, p)
		}
	}
	return deps, nil
}

// Downstream returns the stages of defs that consume the outputs of
// stepName, directly or transitively, in the order they appear in defs.
func Downstream(defs []StepDefinition, stepName string) ([]string, error) {
	found := false
	blocked := make(map[artifacts.Kind]bool)
	var out []string
	for _, def := range defs {
		switch {
		case def.Name == stepName:
			found = true
		case found && slices.ContainsFunc(def.Inputs, func(k artifacts.Kind) bool { return blocked[k] }):
			out = append(out, def.Name)
		default:
			continue
		}
		for _, k := range def.Outputs {
			blocked[k] = true
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown step: %s", stepName)
	}
	return out, nil
}

// ValidateGraph checks that Order and StepRegistry agree, that every
// non-source input is produced by an earlier stage and that no artifact
// has two producers.
func ValidateGraph() error {
	if len(Order) != len(StepRegistry) {
		return fmt.Errorf("stage order lists %d stages, registry has %d", len(Order), len(StepRegistry))
	}
	produced := make(map[artifacts.Kind]string)
	for _, name := range Order {
		def, ok := StepRegistry[name]
		if !ok {
			return fmt.Errorf("unknown step: %s", name)
		}
		if def.Name != name {
			return fmt.Errorf("step %s registered under name %s", def.Name, name)
		}

		var missing []string
		for _, in := range def.Inputs {
			if artifacts.IsSource(in) {
				continue
			}
			if _, ok := produced[in]; !ok {
				missing = append(missing, string(in))
			}
		}
		for _, ne := range def.NonEmpty {
			if !slices.Contains(def.Inputs, ne) {
				missing = append(missing, string(ne))
			}
		}
		if len(missing) > 0 {
			return &DependencyError{Step: name, MissingDependencies: missing}
		}

		for _, out := range def.Outputs {
			if prev, dup := produced[out]; dup {
				return fmt.Errorf("artifact %s produced by both %s and %s", out, prev, name)
			}
			produced[out] = name
		}
	}
	return nil
}

// Flags returns the distinct enablement flags in first-use order
func Flags() []string {
	var flags []string
	for _, name := range Order {
		if f := StepRegistry[name].Flag; f != "" && !slices.Contains(flags, f) {
			flags = append(flags, f)
		}
	}
	return flags
}
