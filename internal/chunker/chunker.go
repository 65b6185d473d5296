package chunker

import (
	"regexp"
	"strings"

	"dfmea/internal/config"
	"dfmea/internal/domain"
)

// Chunker splits source records into overlapping, sentence-respecting text
// segments while preserving each record's identifying fields. It never
// fails: records with no usable text simply contribute no chunks.
type Chunker struct {
	cfg config.ChunkingConfig
}

func New(cfg config.ChunkingConfig) *Chunker {
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = 900
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.MinSize < 0 {
		cfg.MinSize = 0
	}
	return &Chunker{cfg: cfg}
}

// Chunk converts records into chunks, preserving input order grouped by
// record. Chunks are numbered 0..k within each record.
func (c *Chunker) Chunk(records []domain.SourceRecord) []domain.Chunk {
	var out []domain.Chunk
	for _, rec := range records {
		text := c.clean(rec.Text)
		if text == "" {
			continue
		}
		var parts []string
		if c.cfg.SentenceAware {
			parts = c.sentenceChunks(text)
		} else {
			parts = c.windowedChunks(text)
		}
		for seq, p := range parts {
			out = append(out, domain.Chunk{
				Text: p,
				Meta: domain.ChunkMeta{
					Product:       rec.Product,
					Subassembly:   rec.Subassembly,
					Component:     rec.Component,
					Kind:          rec.Kind,
					File:          rec.File,
					Index:         rec.Index,
					ChunkID:       seq,
					RequirementID: rec.RequirementID,
					Embed:         rec.Embed,
				},
			})
		}
	}
	return out
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// quote pairs stripped when both ends match: smart double, double, single.
var quotePairs = [][2]string{{"“", "”"}, {`"`, `"`}, {"'", "'"}}

func (c *Chunker) clean(text string) string {
	s := text
	if c.cfg.NormalizeWhitespace {
		s = whitespaceRe.ReplaceAllString(s, " ")
	}
	s = strings.TrimSpace(s)
	if c.cfg.TrimQuotes && len(s) >= 2 {
		for _, q := range quotePairs {
			if strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
				s = strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
				break
			}
		}
	}
	return s
}

// splitSentences cuts on `.?!` followed by whitespace and a capital, digit,
// or opening parenthesis, then merges micro-fragments (headings, list
// markers) into their neighbors.
func splitSentences(text string) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var parts []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n') {
			j++
		}
		if j > i+1 && j < len(runes) && isSentenceStart(runes[j]) {
			parts = append(parts, string(runes[start:i+1]))
			start = j
			i = j - 1
		}
	}
	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}

	var merged []string
	buf := ""
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if buf == "" {
			buf = p
		} else if len(p) < 40 || len(buf) < 60 {
			buf = buf + " " + p
		} else {
			merged = append(merged, buf)
			buf = p
		}
	}
	if buf != "" {
		merged = append(merged, buf)
	}
	return merged
}

func isSentenceStart(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '('
}

// windowedChunks hard-splits by a fixed character window with overlap
// back-step. The final window may be shorter than the target and is emitted
// even below min_size.
func (c *Chunker) windowedChunks(text string) []string {
	if text == "" {
		return nil
	}
	size := c.cfg.TargetSize
	if c.cfg.MinSize > size {
		size = c.cfg.MinSize
	}
	ov := c.cfg.Overlap
	if ov > size-1 {
		ov = size - 1
	}
	if ov < 0 {
		ov = 0
	}
	var chunks []string
	n := len(text)
	start := 0
	for start < n {
		end := start + size
		if end > n {
			end = n
		}
		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == n {
			break
		}
		next := end - ov
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// sentenceChunks greedily packs sentences into target-sized chunks. A chunk
// below min_size absorbs one more sentence before flushing so no tiny
// orphan is emitted; a single sentence longer than the target falls back to
// character windowing.
func (c *Chunker) sentenceChunks(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	cur := ""
	for _, s := range sentences {
		if len(cur)+1+len(s) <= c.cfg.TargetSize {
			if cur == "" {
				cur = s
			} else {
				cur = cur + " " + s
			}
			continue
		}
		if cur != "" {
			if len(cur) < c.cfg.MinSize && len(s) < c.cfg.TargetSize {
				cur = cur + " " + s
			} else {
				chunks = append(chunks, strings.TrimSpace(cur))
				cur = s
			}
		} else {
			// single oversized sentence
			chunks = append(chunks, c.windowedChunks(s)...)
			cur = ""
		}
	}
	if cur != "" {
		chunks = append(chunks, strings.TrimSpace(cur))
	}

	return c.injectOverlap(chunks)
}

// injectOverlap prepends the trailing overlap of chunk i-1 onto chunk i
// unless that text is already there.
func (c *Chunker) injectOverlap(chunks []string) []string {
	if c.cfg.Overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	ov := c.cfg.Overlap
	out := make([]string, 0, len(chunks))
	for i, ch := range chunks {
		if i == 0 {
			out = append(out, ch)
			continue
		}
		prev := out[len(out)-1]
		tail := prev
		if len(prev) > ov {
			tail = prev[len(prev)-ov:]
		}
		if !strings.HasPrefix(ch, tail) {
			ch = strings.TrimSpace(tail + " " + ch)
		}
		out = append(out, ch)
	}
	return out
}
