package summary

import (
	"fmt"
	"math"
	"strconv"
)

// InfSentinel is written in place of REF/control when the control hit count is zero.
const InfSentinel = "inf"

// Header returns the ledger header for a control reference name.
func Header(control string) []string {
	return []string{
		"Sample",
		"TotalReads",
		"REF_HitReads",
		control + "_HitReads",
		"REF/Total",
		control + "/Total",
		"REF/" + control,
	}
}

// Row is one ledger line for a barcode job that ran classification.
type Row struct {
	SampleID      string
	TotalReads    int
	RefHits       int
	ActHits       int
	RefRatio      float64
	ActRatio      float64
	RefToActRatio float64
}

// NewRow computes the ratio columns. Ratios over total are 0 when total is
// 0; REF/control is +Inf whenever control hits are 0.
func NewRow(sampleID string, total, refHits, actHits int) Row {
	row := Row{
		SampleID:   sampleID,
		TotalReads: total,
		RefHits:    refHits,
		ActHits:    actHits,
	}
	if total > 0 {
		row.RefRatio = float64(refHits) / float64(total)
		row.ActRatio = float64(actHits) / float64(total)
	}
	if actHits == 0 {
		row.RefToActRatio = math.Inf(1)
	} else {
		row.RefToActRatio = float64(refHits) / float64(actHits)
	}
	return row
}

// Record renders the row as ledger fields.
func (r Row) Record() []string {
	return []string{
		r.SampleID,
		strconv.Itoa(r.TotalReads),
		strconv.Itoa(r.RefHits),
		strconv.Itoa(r.ActHits),
		formatRatio(r.RefRatio),
		formatRatio(r.ActRatio),
		formatRatio(r.RefToActRatio),
	}
}

func formatRatio(v float64) string {
	if math.IsInf(v, 1) {
		return InfSentinel
	}
	return fmt.Sprintf("%.6f", v)
}

// ParseRow is the inverse of Record.
func ParseRow(fields []string) (Row, error) {
	if len(fields) != 7 {
		return Row{}, fmt.Errorf("expected 7 fields, got %d", len(fields))
	}
	var (
		row Row
		err error
	)
	row.SampleID = fields[0]
	ints := []*int{&row.TotalReads, &row.RefHits, &row.ActHits}
	for i, dst := range ints {
		if *dst, err = strconv.Atoi(fields[i+1]); err != nil {
			return Row{}, fmt.Errorf("field %d: %w", i+2, err)
		}
	}
	floats := []*float64{&row.RefRatio, &row.ActRatio, &row.RefToActRatio}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(fields[i+4], 64); err != nil {
			return Row{}, fmt.Errorf("field %d: %w", i+5, err)
		}
	}
	return row, nil
}
