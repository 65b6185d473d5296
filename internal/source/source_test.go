package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dfmea/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRecords(t *testing.T) {
	path := writeFile(t, "records.json", `[
		{"product":"Quasar","subassembly":"Display","source_type":"kb","file":"kb.csv","idx":0,"text":"backlight flicker"},
		{"product":"Quasar","subassembly":"Display","source_type":"field","file":"issues.csv","idx":1,"text":"unit 42 flickers","embed":false},
		{"product":"Quasar","subassembly":"Display","source_type":"prd","file":"prd.docx","idx":2,"text":"shall not flicker","requirement_id":"REQ-12"}
	]`)

	records, err := LoadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, domain.SourceKnowledgeBase, records[0].Kind)
	require.NotNil(t, records[1].Embed)
	assert.False(t, *records[1].Embed)
	assert.Equal(t, "REQ-12", records[2].RequirementID)
}

func TestLoadRecordsRejectsMissingScope(t *testing.T) {
	path := writeFile(t, "records.json", `[{"product":"","subassembly":"Display","source_type":"kb","text":"x"}]`)
	_, err := LoadRecords(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 0")
}

func TestLoadRecordsRejectsUnknownKind(t *testing.T) {
	path := writeFile(t, "records.json", `[{"product":"Quasar","subassembly":"Display","source_type":"wiki","text":"x"}]`)
	_, err := LoadRecords(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_type")
}

func TestLoadIssues(t *testing.T) {
	path := writeFile(t, "issues.json", `[
		{"product":"Quasar","subassembly":"Display","component":"Backlight","fault_code":"E42","fault_type":"flicker"}
	]`)

	issues, err := LoadIssues(path)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "E42", issues[0].FaultCode)
}

func TestLoadIssuesRejectsBadJSON(t *testing.T) {
	path := writeFile(t, "issues.json", `{"not":"a list"}`)
	_, err := LoadIssues(path)
	require.Error(t, err)
}
