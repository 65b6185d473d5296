// Package tui is a terminal review screen for generated failure-analysis
// records. The reviewer pages through records, sees the evidence each one
// cites, and can narrow the list with a text filter.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dfmea/internal/domain"
)

// Model is the Bubble Tea model for the review screen.
type Model struct {
	scope    domain.Scope
	records  []domain.Record
	evidence map[string][]domain.EvidenceRow
	filtered []int
	input    textinput.Model
	viewport viewport.Model
	status   string
	cursor   int
	ready    bool
}

// New creates a review model over the given records and evidence table.
func New(records []domain.Record, evidence []domain.EvidenceRow, scope domain.Scope) Model {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "Type to filter records, Enter to apply"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)

	byRecord := make(map[string][]domain.EvidenceRow)
	for _, row := range evidence {
		byRecord[row.RecordID] = append(byRecord[row.RecordID], row)
	}
	m := Model{
		scope:    scope,
		records:  records,
		evidence: byRecord,
		input:    ti,
		viewport: vp,
		status:   fmt.Sprintf("%d records loaded.", len(records)),
	}
	m.applyFilter("")
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := recordBoxStyle.GetFrameSize()
		_, fh := filterBoxStyle.GetFrameSize()
		reserved := 2 + 1 + fh + 1 // header + scope line, status, filter box, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentRecord())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			m.applyFilter(strings.TrimSpace(m.input.Value()))
			m.viewport.SetContent(m.renderCurrentRecord())
			return m, nil
		case "down":
			if len(m.filtered) > 0 {
				m.cursor = (m.cursor + 1) % len(m.filtered)
				m.viewport.SetContent(m.renderCurrentRecord())
				return m, nil
			}
		case "up":
			if len(m.filtered) > 0 {
				m.cursor = (m.cursor - 1 + len(m.filtered)) % len(m.filtered)
				m.viewport.SetContent(m.renderCurrentRecord())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the review layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("DFMEA Review")
	scope := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).
		Render(fmt.Sprintf("%s / %s", m.scope.Product, m.scope.Subassembly))
	record := recordBoxStyle.Render(m.viewport.View())
	filter := filterBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + scope + "\n" + record + "\n" + filter + "\n" + status
}

// applyFilter keeps records whose text fields contain the query,
// case-insensitive. An empty query restores the full list.
func (m *Model) applyFilter(query string) {
	m.filtered = m.filtered[:0]
	q := strings.ToLower(query)
	for i, r := range m.records {
		if q == "" || recordMatches(r, q) {
			m.filtered = append(m.filtered, i)
		}
	}
	m.cursor = 0
	if q == "" {
		m.status = fmt.Sprintf("%d records.", len(m.filtered))
	} else {
		m.status = fmt.Sprintf("%d of %d records match %q.", len(m.filtered), len(m.records), query)
	}
}

func recordMatches(r domain.Record, q string) bool {
	for _, field := range []string{r.Function, r.FailureMode, r.Effects, r.Causes, r.Recommendations, r.Owner} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func (m Model) renderCurrentRecord() string {
	if len(m.filtered) == 0 {
		return "No records match."
	}
	r := m.records[m.filtered[m.cursor]]
	var b strings.Builder
	fmt.Fprintf(&b, "Record %d/%d  id=%s  RPN=%d\n\n", m.cursor+1, len(m.filtered), r.ID, r.RPN)
	writeField(&b, "Function", r.Function)
	writeField(&b, "Failure Mode", r.FailureMode)
	writeField(&b, "Effects", r.Effects)
	writeField(&b, "Causes", r.Causes)
	writeField(&b, "Prevention", r.PreventionControls)
	writeField(&b, "Detection", r.DetectionControls)
	fmt.Fprintf(&b, "%s S=%d O=%d D=%d\n", labelStyle.Render("Ratings:"), r.Severity, r.Occurrence, r.Detection)
	writeField(&b, "Recommendations", r.Recommendations)
	writeField(&b, "Owner", r.Owner)
	writeField(&b, "Target Date", r.TargetDate)
	writeField(&b, "Citations", strings.Join(r.Citations, ", "))

	if rows := m.evidence[r.ID]; len(rows) > 0 {
		b.WriteString("\n" + labelStyle.Render("Evidence:") + "\n")
		for _, row := range rows {
			snippet := row.Snippet
			if len(snippet) > 160 {
				snippet = snippet[:160] + "..."
			}
			fmt.Fprintf(&b, "  [%s] %s %s %s\n", row.CitationID, row.SourceType, row.File, snippet)
		}
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s %s\n", labelStyle.Render(label+":"), value)
}

var (
	recordBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	filterBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
