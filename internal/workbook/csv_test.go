package workbook

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dfmea/internal/domain"
)

func readSheet(t *testing.T, data []byte, name string) [][]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		raw, err := io.ReadAll(rc)
		require.NoError(t, err)
		rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
		require.NoError(t, err)
		return rows
	}
	t.Fatalf("sheet %s not found", name)
	return nil
}

func TestWriteProducesAllSheets(t *testing.T) {
	records := []domain.Record{{
		ID:                 "1",
		Function:           "Panel illumination",
		FailureMode:        "Backlight flicker",
		Effects:            "Visible flicker; Eye strain",
		Causes:             "PWM frequency too low",
		PreventionControls: "Design review",
		DetectionControls:  "Optical bench test",
		Severity:           7,
		Occurrence:         4,
		Detection:          3,
		RPN:                84,
		Recommendations:    "Raise PWM floor",
		Owner:              "EE lead",
		TargetDate:         "2026-10-01",
		Citations:          []string{"REQ-12", "ctx_2"},
	}}
	evidence := []domain.EvidenceRow{
		{RecordID: "1", SourceType: "prd", File: "prd.docx", Index: "7", Snippet: "shall not flicker", CitationID: "REQ-12"},
	}

	data, err := NewWriter().Write(records, evidence, domain.Scope{Product: "Quasar", Subassembly: "Display"})
	require.NoError(t, err)

	main := readSheet(t, data, "dfmea.csv")
	require.Len(t, main, 2)
	assert.Equal(t, recordColumns, main[0])
	assert.Equal(t, "1", main[1][0])
	assert.Equal(t, "Backlight flicker", main[1][2])
	assert.Equal(t, "7", main[1][4])
	assert.Equal(t, "84", main[1][10])
	assert.Equal(t, "REQ-12; ctx_2", main[1][14])

	ev := readSheet(t, data, "evidence.csv")
	require.Len(t, ev, 2)
	assert.Equal(t, evidenceColumns, ev[0])
	assert.Equal(t, []string{"1", "prd", "prd.docx", "7", "shall not flicker", "REQ-12"}, ev[1])

	scope := readSheet(t, data, "scope.csv")
	require.Len(t, scope, 2)
	assert.Equal(t, []string{"Quasar", "Display", "1"}, scope[1])
}

func TestWriteEmptyInputStillYieldsHeaders(t *testing.T) {
	data, err := NewWriter().Write(nil, nil, domain.Scope{Product: "Quasar", Subassembly: "Display"})
	require.NoError(t, err)

	main := readSheet(t, data, "dfmea.csv")
	require.Len(t, main, 1)
	assert.Equal(t, recordColumns, main[0])
}
