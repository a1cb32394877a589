// Package assign turns a cluster search result into the per-sequence bin table and
// the artifacts derived from it.
package assign

import (
	"strconv"

	"lrbinner/internal/cluster"
)

// Unbinned is the label of sequences outside every bin.
const Unbinned = "unbinned"

// Row is the assignment of one sequence. Bin is -1 when unbinned.
type Row struct {
	ID  string
	Bin int
}

// BinInfo describes one bin of a Table.
type BinInfo struct {
	ID       int
	Size     int
	Seed     string
	Density  float64
	Centroid []float64
}

// Table is the final assignment, one row per profiled sequence in input order.
type Table struct {
	Rows []Row
	Bins []BinInfo
}

// Assign builds the table for ids, where ids[i] names embedding row i of res.
func Assign(ids []string, res cluster.Result) Table {
	labels := res.Labels(len(ids))
	t := Table{Rows: make([]Row, len(ids)), Bins: make([]BinInfo, 0, len(res.Bins))}
	for i, id := range ids {
		t.Rows[i] = Row{ID: id, Bin: labels[i]}
	}
	for _, b := range res.Bins {
		t.Bins = append(t.Bins, BinInfo{
			ID:       b.ID,
			Size:     len(b.Members),
			Seed:     ids[b.Seed],
			Density:  b.Density,
			Centroid: b.Centroid,
		})
	}
	return t
}

// Label renders a bin id for output.
func Label(bin int) string {
	if bin < 0 {
		return Unbinned
	}
	return strconv.Itoa(bin)
}

// Binned returns the number of sequences in a bin.
func (t Table) Binned() int {
	n := 0
	for _, r := range t.Rows {
		if r.Bin >= 0 {
			n++
		}
	}
	return n
}

// Lookup maps sequence ids to bins.
func (t Table) Lookup() map[string]int {
	m := make(map[string]int, len(t.Rows))
	for _, r := range t.Rows {
		m[r.ID] = r.Bin
	}
	return m
}
