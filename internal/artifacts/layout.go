// Package artifacts maps logical artifact kinds to deterministic file paths.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
)

// Kind names one logical artifact produced or consumed by a stage.
type Kind string

// Source artifacts exist before any job runs (inputs and shared indices).
const (
	KindRawReads         Kind = "raw_reads"
	KindReference        Kind = "reference"
	KindFlankUp          Kind = "flank_up_reference"
	KindFlankDown        Kind = "flank_down_reference"
	KindTargetReference  Kind = "target_reference"
	KindControlReference Kind = "control_reference"
	KindAlignIndex       Kind = "align_index"
	KindBlastDB          Kind = "blast_db"
	KindControlBlastDB   Kind = "control_blast_db"
)

// Per-barcode artifacts.
const (
	KindMerged         Kind = "merged_reads"
	KindBAM            Kind = "sorted_bam"
	KindWIG            Kind = "wig"
	KindBedgraph       Kind = "bedgraph"
	KindNormBedgraph   Kind = "norm_bedgraph"
	KindPositive       Kind = "positive"
	KindYassDir        Kind = "yass_dir"
	KindIDMap          Kind = "id_map"
	KindTargetOnly     Kind = "target_only_fasta"
	KindFlanks         Kind = "flanks_fasta"
	KindFlankBAM       Kind = "flanks_bam"
	KindFlankBedgraph  Kind = "flanks_bedgraph"
	KindFASTA          Kind = "merged_fasta"
	KindBlastReference Kind = "blast_reference"
	KindBlastControl   Kind = "blast_control"
)

// KindSummary is the run-wide summary ledger.
const KindSummary Kind = "summary"

// DefaultControl is the control gene searched alongside the reference.
const DefaultControl = "ACT1"

var sources = map[Kind]bool{
	KindRawReads:         true,
	KindReference:        true,
	KindFlankUp:          true,
	KindFlankDown:        true,
	KindTargetReference:  true,
	KindControlReference: true,
	KindAlignIndex:       true,
	KindBlastDB:          true,
	KindControlBlastDB:   true,
}

// IsSource reports whether kind exists independently of any stage in a job.
func IsSource(kind Kind) bool {
	return sources[kind]
}

// IsShared reports whether kind resolves to the same path for every barcode.
func IsShared(kind Kind) bool {
	return (sources[kind] && kind != KindRawReads) || kind == KindSummary
}

// JobID is the part of a barcode job that addresses its artifacts.
type JobID struct {
	Prefix  string
	Barcode string // zero-padded, e.g. "01"
	RefBase string
}

// String returns the job label used in warnings and the summary ledger.
func (id JobID) String() string {
	return id.Prefix + "." + id.Barcode
}

// Layout holds the directories artifacts are resolved against.
type Layout struct {
	InputDir string // holds barcodeNN/ read directories
	OutDir   string // per-barcode outputs and the summary ledger
	RefDir   string // references and their indices
	Control  string // control gene basename, defaults to ACT1
}

func (l Layout) control() string {
	if l.Control == "" {
		return DefaultControl
	}
	return l.Control
}

// Path resolves kind for the given job. It is a pure function of its inputs.
func (l Layout) Path(id JobID, kind Kind) string {
	out := func(name string) string { return filepath.Join(l.OutDir, name) }
	ref := func(name string) string { return filepath.Join(l.RefDir, name) }
	stem := id.Prefix + "." + id.Barcode
	refStem := stem + "." + id.RefBase

	switch kind {
	case KindRawReads:
		return filepath.Join(l.InputDir, "barcode"+id.Barcode)
	case KindReference:
		return ref(id.RefBase + ".fa")
	case KindFlankUp:
		return ref(id.RefBase + "_up.fa")
	case KindFlankDown:
		return ref(id.RefBase + "_down.fa")
	case KindTargetReference:
		return ref(id.RefBase + "_target.fa")
	case KindControlReference:
		return ref(l.control() + ".fa")
	case KindAlignIndex:
		return ref(id.RefBase + ".mmi")
	case KindBlastDB:
		return filepath.Join(l.RefDir, "blastdb", id.RefBase)
	case KindControlBlastDB:
		return filepath.Join(l.RefDir, "blastdb", l.control())

	case KindMerged:
		return out("merged." + stem + ".fastq")
	case KindBAM:
		return out(stem + ".exp.sort.bam")
	case KindWIG:
		return out(stem + ".exp." + id.RefBase + ".wig")
	case KindBedgraph:
		return out(stem + ".exp." + id.RefBase + ".bedgraph")
	case KindNormBedgraph:
		return out(stem + ".exp." + id.RefBase + ".norm.bedgraph")
	case KindPositive:
		return out("RCC." + refStem + ".positive")
	case KindYassDir:
		return out(refStem + ".yass")
	case KindIDMap:
		return filepath.Join(l.OutDir, refStem+".yass", "id_map.tsv")
	case KindTargetOnly:
		return out(refStem + ".tgt.fasta")
	case KindFlanks:
		return out(refStem + ".tgt_flanks.fa")
	case KindFlankBAM:
		return out(refStem + ".flanks.sort.bam")
	case KindFlankBedgraph:
		return out(refStem + ".flanks.bedgraph")
	case KindFASTA:
		return out("merged." + stem + ".fasta")
	case KindBlastReference:
		return out(refStem + ".blast.tsv")
	case KindBlastControl:
		return out(stem + "." + l.control() + ".blast.tsv")
	case KindSummary:
		return out(id.Prefix + "." + id.RefBase + ".summary.csv")
	}
	panic(fmt.Sprintf("artifacts: unknown kind %q", kind))
}

// Paths resolves every kind in kinds.
func (l Layout) Paths(id JobID, kinds []Kind) []string {
	paths := make([]string, 0, len(kinds))
	for _, k := range kinds {
		paths = append(paths, l.Path(id, k))
	}
	return paths
}

// Marker returns the file whose presence means the artifact of kind at path
// exists. BLAST databases are named by their -out prefix and have no file of
// their own, so their nucleotide index stands in for them.
func Marker(kind Kind, path string) string {
	switch kind {
	case KindBlastDB, KindControlBlastDB:
		return path + ".nin"
	}
	return path
}

// Present reports whether the artifact of kind at path exists.
func Present(kind Kind, path string) bool {
	return Exists(Marker(kind, path))
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NonEmpty reports whether path exists and has content. Directories count
// as non-empty when they hold at least one entry.
func NonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		return err == nil && len(entries) > 0
	}
	return info.Size() > 0
}
