package models

import "time"

// RowKey identifies one feature-matrix row: a directed border pair at an hour.
type RowKey struct {
	TS   time.Time
	From string
	To   string
}

// FeatureMatrix is a joined, time-aligned table built per training or
// inference run. Rows are ordered chronologically; Columns names Rows'
// entries in order. Target is empty for inference matrices.
type FeatureMatrix struct {
	Columns []string
	Rows    [][]float64
	Index   []RowKey
	Target  []float64
}

func (m *FeatureMatrix) NumRows() int {
	return len(m.Rows)
}

// Slice returns the sub-matrix of rows [lo, hi).
func (m *FeatureMatrix) Slice(lo, hi int) *FeatureMatrix {
	out := &FeatureMatrix{
		Columns: m.Columns,
		Rows:    m.Rows[lo:hi],
		Index:   m.Index[lo:hi],
	}
	if m.Target != nil {
		out.Target = m.Target[lo:hi]
	}
	return out
}
