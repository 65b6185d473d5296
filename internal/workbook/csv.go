// Package workbook renders generated records into a downloadable workbook:
// a zip archive holding the main analysis table and its evidence table as
// CSV files.
package workbook

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"dfmea/internal/domain"
)

var recordColumns = []string{
	"ID",
	"Function",
	"Potential Failure Mode",
	"Potential Effects",
	"S",
	"Potential Causes",
	"O",
	"Prevention Controls",
	"Detection Controls",
	"D",
	"RPN",
	"Recommended Actions",
	"Owner",
	"Target Date",
	"Citations",
}

var evidenceColumns = []string{
	"Record ID",
	"Source Type",
	"File",
	"Idx",
	"Snippet",
	"Citation ID",
}

// Writer implements the workbook contract with CSV sheets zipped together.
type Writer struct{}

func NewWriter() *Writer { return &Writer{} }

// Write produces a zip with dfmea.csv, evidence.csv and a small scope.csv
// naming the product and sub-assembly the analysis covers.
func (w *Writer) Write(records []domain.Record, evidence []domain.EvidenceRow, meta domain.Scope) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeSheet(zw, "dfmea.csv", recordColumns, recordRows(records)); err != nil {
		return nil, err
	}
	if err := writeSheet(zw, "evidence.csv", evidenceColumns, evidenceRows(evidence)); err != nil {
		return nil, err
	}
	scope := [][]string{{meta.Product, meta.Subassembly, strconv.Itoa(len(records))}}
	if err := writeSheet(zw, "scope.csv", []string{"Product", "Subassembly", "Records"}, scope); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(zw *zip.Writer, name string, header []string, rows [][]string) error {
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func recordRows(records []domain.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			r.Function,
			r.FailureMode,
			r.Effects,
			strconv.Itoa(r.Severity),
			r.Causes,
			strconv.Itoa(r.Occurrence),
			r.PreventionControls,
			r.DetectionControls,
			strconv.Itoa(r.Detection),
			strconv.Itoa(r.RPN),
			r.Recommendations,
			r.Owner,
			r.TargetDate,
			strings.Join(r.Citations, "; "),
		})
	}
	return rows
}

func evidenceRows(evidence []domain.EvidenceRow) [][]string {
	rows := make([][]string, 0, len(evidence))
	for _, e := range evidence {
		rows = append(rows, []string{
			e.RecordID,
			e.SourceType,
			e.File,
			e.Index,
			e.Snippet,
			e.CitationID,
		})
	}
	return rows
}
