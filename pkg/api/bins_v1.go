// Package api holds the stable JSON schemas written by lrbinner.
package api

// BinSummaryV1 is the stable JSON schema of bins.json.
// Keep fields, names, and types stable. Add new fields only with ",omitempty".
type BinSummaryV1 struct {
	Schema    string  `json:"schema"` // "lrbinner.bins/v1"
	Mode      string  `json:"mode"`   // "reads" | "contigs"
	RunID     string  `json:"run_id,omitempty"`
	Sequences int     `json:"sequences"`
	Binned    int     `json:"binned"`
	Unbinned  int     `json:"unbinned"`
	Bins      []BinV1 `json:"bins"`
	// Assignments lists every sequence in input order.
	Assignments []AssignmentV1 `json:"assignments"`
}

// BinV1 describes one bin.
type BinV1 struct {
	Bin      int       `json:"bin"`
	Size     int       `json:"size"`
	Seed     string    `json:"seed"`
	Density  float64   `json:"density"`
	Centroid []float64 `json:"centroid,omitempty"`
}

// AssignmentV1 is the bin of one sequence. Bin is -1 when unbinned.
type AssignmentV1 struct {
	ID  string `json:"id"`
	Bin int    `json:"bin"`
}

// BinsSchemaV1 identifies BinSummaryV1 documents.
const BinsSchemaV1 = "lrbinner.bins/v1"
