// Package normalize converts loosely structured model output into canonical
// failure-analysis records. Model JSON is treated as hostile input: keys come
// in many spellings, ratings may be strings or out of range, and citations
// may be missing entirely.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"dfmea/internal/domain"
)

const snippetLimit = 900

// keyMap sends every observed spelling of a field, lowercased with spaces
// and dashes collapsed to underscores, to its canonical name. Unknown keys
// are ignored.
var keyMap = map[string]string{
	"id":                              "id",
	"function":                        "function",
	"item_function":                   "function",
	"failure_mode":                    "failure_mode",
	"potential_failure_mode":          "failure_mode",
	"effects":                         "effects",
	"effect":                          "effects",
	"potential_effects":               "effects",
	"potential_effects_of_failure":    "effects",
	"potential_effect(s)_of_failure":  "effects",
	"causes":                          "causes",
	"cause":                           "causes",
	"potential_causes":                "causes",
	"potential_cause(s)_of_failure":   "causes",
	"prevention_controls":             "prevention_controls",
	"prevention":                      "prevention_controls",
	"current_prevention_controls":     "prevention_controls",
	"current_controls_prevention":     "prevention_controls",
	"detection_controls":              "detection_controls",
	"detection_control":               "detection_controls",
	"current_detection_controls":      "detection_controls",
	"current_controls_detection":      "detection_controls",
	"severity":                        "severity",
	"s":                               "severity",
	"sev":                             "severity",
	"occurrence":                      "occurrence",
	"o":                               "occurrence",
	"occ":                             "occurrence",
	"detection":                       "detection",
	"d":                               "detection",
	"det":                             "detection",
	"rpn":                             "rpn",
	"risk_priority_number":            "rpn",
	"recommendations":                 "recommendations",
	"recommendation":                  "recommendations",
	"recommended_actions":             "recommendations",
	"recommended_action":              "recommendations",
	"owner":                           "owner",
	"responsibility":                  "owner",
	"action_owner":                    "owner",
	"target_date":                     "target_date",
	"target_completion_date":          "target_date",
	"citations":                       "citations",
	"citation":                        "citations",
	"sources":                         "citations",
	"evidence":                        "evidence",
}

func canonicalKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	return keyMap[k]
}

// Record normalizes one raw model object. Citations missing from the object
// fall back to the given list; a record that still ends up with zero
// citations is rejected. Evidence rows are returned without RecordID, which
// is only known after ID backfill.
func Record(raw map[string]any, fallbackCitations []string) (domain.Record, []domain.EvidenceRow, bool) {
	fields := map[string]any{}
	for k, v := range raw {
		if ck := canonicalKey(k); ck != "" {
			fields[ck] = v
		}
	}

	rec := domain.Record{
		ID:                 asString(fields["id"]),
		Function:           joined(fields["function"]),
		FailureMode:        joined(fields["failure_mode"]),
		Effects:            joined(fields["effects"]),
		Causes:             joined(fields["causes"]),
		PreventionControls: joined(fields["prevention_controls"]),
		DetectionControls:  joined(fields["detection_controls"]),
		Recommendations:    joined(fields["recommendations"]),
		Owner:              joined(fields["owner"]),
		TargetDate:         joined(fields["target_date"]),
		Severity:           coerceRating(fields["severity"]),
		Occurrence:         coerceRating(fields["occurrence"]),
		Detection:          coerceRating(fields["detection"]),
	}
	rec.RPN = coerceRPN(fields["rpn"], rec.Severity, rec.Occurrence, rec.Detection)

	rec.Citations = stringList(fields["citations"])
	if len(rec.Citations) == 0 {
		rec.Citations = append(rec.Citations, fallbackCitations...)
	}
	if len(rec.Citations) == 0 {
		return domain.Record{}, nil, false
	}

	return rec, evidenceRows(fields["evidence"], rec.Citations), true
}

// evidenceRows supports two shapes, cumulatively: structured objects with
// source attribution, and flat citation ids rendered as bare rows. A record
// carrying both contributes both.
func evidenceRows(raw any, citations []string) []domain.EvidenceRow {
	var rows []domain.EvidenceRow
	if items, ok := raw.([]any); ok {
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			snippet := asString(firstOf(m, "snippet", "text"))
			if len(snippet) > snippetLimit {
				snippet = snippet[:snippetLimit]
			}
			rows = append(rows, domain.EvidenceRow{
				SourceType: asString(firstOf(m, "source_type", "type")),
				File:       asString(firstOf(m, "file", "source")),
				Index:      asString(firstOf(m, "idx", "index")),
				Snippet:    snippet,
				CitationID: asString(firstOf(m, "citation_id", "id")),
			})
		}
	}
	for _, c := range citations {
		rows = append(rows, domain.EvidenceRow{CitationID: c})
	}
	return rows
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

// joined renders a value that may be a string or a list of values as one
// "; "-separated string.
func joined(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		var parts []string
		for _, item := range t {
			if s := asString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return asString(v)
	}
}

func stringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		var out []string
		for _, item := range t {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// coerceRating forces a severity/occurrence/detection value into [1,10].
// Unparseable input defaults to 1, never discarding the record.
func coerceRating(v any) int {
	n, ok := asInt(v)
	if !ok {
		return 1
	}
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

// coerceRPN trusts a stated RPN when it is a plausible product of three
// ratings and recomputes it otherwise.
func coerceRPN(v any, s, o, d int) int {
	if n, ok := asInt(v); ok && n >= 1 && n <= 1000 {
		return n
	}
	return s * o * d
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// TopByRPN returns the n highest-risk records, stable for equal RPN. The
// input slice is left untouched.
func TopByRPN(records []domain.Record, n int) []domain.Record {
	out := make([]domain.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RPN > out[j].RPN })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
