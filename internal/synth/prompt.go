package synth

import (
	"encoding/json"
	"fmt"
	"strings"

	"dfmea/internal/domain"
)

// systemPrompt pins the model to the retrieved context. Ratings are scored
// downstream by engineers, so the model is told not to invent them.
const systemPrompt = `You are a design failure-mode analyst for consumer electronics.
Use ONLY the evidence in the CONTEXT section. Do not use outside knowledge.
If the context is insufficient to support any entry, return exactly [].
Every entry MUST cite at least one context id in its "citations" list.
Do not output Severity, Occurrence, Detection or RPN ratings.
Respond with pure JSON: a list of objects, no prose, no code fences.`

// buildQuery renders an issue as one retrieval query string.
func buildQuery(issue domain.ReportedIssue) string {
	parts := []string{issue.Product, issue.Subassembly, issue.Component}
	if issue.FaultCode != "" {
		parts = append(parts, "fault:"+issue.FaultCode)
	}
	if issue.FaultType != "" {
		parts = append(parts, "type:"+issue.FaultType)
	}
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " • ")
}

// buildUserMessage lays out the issue, the cited context and the task.
func buildUserMessage(issue domain.ReportedIssue, hits []domain.EvidenceHit) string {
	issueJSON, _ := json.MarshalIndent(map[string]string{
		"Product":    issue.Product,
		"Subsystem":  issue.Subassembly,
		"Component":  issue.Component,
		"Fault_Code": issue.FaultCode,
		"Fault_Type": issue.FaultType,
	}, "", "  ")

	var b strings.Builder
	b.WriteString("FIELD_ISSUE:\n")
	b.Write(issueJSON)
	b.WriteString("\n\nCONTEXT:\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "[%s] %s\n", h.ShortID, h.Payload.Text)
	}
	b.WriteString("\nTASK:\n")
	b.WriteString("Produce failure-analysis entries for this issue as a JSON list. ")
	b.WriteString(`Each entry has the fields "Function", "Failure Mode", "Effects", "Causes", `)
	b.WriteString(`"Prevention Controls", "Detection Controls", "Recommendations" and "citations". `)
	b.WriteString("Citations are the bracketed context ids the entry is grounded on.")
	return b.String()
}

// parseRecords decodes the model reply into raw record objects. Code fences
// are tolerated; anything that is not a JSON list yields nil.
func parseRecords(text string) []map[string]any {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	var out []map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
