package writers

import (
	"bufio"
	"io"

	"lrbinner/internal/assign"
	"lrbinner/internal/jsonlutil"
	"lrbinner/internal/jsonutil"
	"lrbinner/pkg/api"
)

const (
	FormatTSV   = "tsv"
	FormatLines = "lines"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

func init() {
	Register(FormatTSV, "bins.tsv", writeTSV)
	Register(FormatLines, "bins.txt", writeLines)
	Register(FormatJSON, "bins.json", writeJSON)
	Register(FormatJSONL, "bins.jsonl", writeJSONL)
}

// writeTSV writes "id\tbin" rows under a header.
func writeTSV(w io.Writer, t assign.Table, _ Meta) error {
	bw := bufio.NewWriter(w)
	_, _ = bw.WriteString("id\tbin\n")
	for _, r := range t.Rows {
		_, _ = bw.WriteString(r.ID)
		_ = bw.WriteByte('\t')
		_, _ = bw.WriteString(assign.Label(r.Bin))
		_ = bw.WriteByte('\n')
	}
	return bw.Flush()
}

// writeLines writes one bin label per sequence, in input order.
func writeLines(w io.Writer, t assign.Table, _ Meta) error {
	bw := bufio.NewWriter(w)
	for _, r := range t.Rows {
		_, _ = bw.WriteString(assign.Label(r.Bin))
		_ = bw.WriteByte('\n')
	}
	return bw.Flush()
}

func writeJSON(w io.Writer, t assign.Table, m Meta) error {
	return jsonutil.EncodePretty(w, ToAPISummary(t, m))
}

// writeJSONL writes one AssignmentV1 per line.
func writeJSONL(w io.Writer, t assign.Table, _ Meta) error {
	in, done := jsonlutil.Start[api.AssignmentV1](w, 256, IsBrokenPipe)
	for _, r := range t.Rows {
		in <- api.AssignmentV1{ID: r.ID, Bin: r.Bin}
	}
	close(in)
	return <-done
}

// ToAPISummary converts a table to the v1 schema.
func ToAPISummary(t assign.Table, m Meta) api.BinSummaryV1 {
	binned := t.Binned()
	s := api.BinSummaryV1{
		Schema:      api.BinsSchemaV1,
		Mode:        m.Mode,
		RunID:       m.RunID,
		Sequences:   len(t.Rows),
		Binned:      binned,
		Unbinned:    len(t.Rows) - binned,
		Bins:        make([]api.BinV1, 0, len(t.Bins)),
		Assignments: make([]api.AssignmentV1, 0, len(t.Rows)),
	}
	for _, b := range t.Bins {
		s.Bins = append(s.Bins, api.BinV1{Bin: b.ID, Size: b.Size, Seed: b.Seed, Density: b.Density, Centroid: b.Centroid})
	}
	for _, r := range t.Rows {
		s.Assignments = append(s.Assignments, api.AssignmentV1{ID: r.ID, Bin: r.Bin})
	}
	return s
}
