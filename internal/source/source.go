// Package source loads pre-normalized pipeline input from JSON files.
// Document parsing (CSV/XLSX/DOCX extraction) happens upstream; this layer
// only validates that what arrives is usable.
package source

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"dfmea/internal/domain"
)

// LoadRecords reads source records from a JSON array file. Records with no
// scope are rejected early so a bad export does not silently index
// unfilterable text.
func LoadRecords(path string) ([]domain.SourceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []domain.SourceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, r := range records {
		if strings.TrimSpace(r.Product) == "" || strings.TrimSpace(r.Subassembly) == "" {
			return nil, fmt.Errorf("%s: record %d has no product/subassembly scope", path, i)
		}
		if r.Kind != domain.SourceKnowledgeBase && r.Kind != domain.SourceFieldIssue && r.Kind != domain.SourceRequirement {
			return nil, fmt.Errorf("%s: record %d has unknown source_type %q", path, i, r.Kind)
		}
	}
	return records, nil
}

// LoadIssues reads reported field issues from a JSON array file.
func LoadIssues(path string) ([]domain.ReportedIssue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var issues []domain.ReportedIssue
	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, issue := range issues {
		if strings.TrimSpace(issue.Product) == "" || strings.TrimSpace(issue.Subassembly) == "" {
			return nil, fmt.Errorf("%s: issue %d has no product/subassembly scope", path, i)
		}
	}
	return issues, nil
}
