// Package tui is an interactive query console for a loaded dataset.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragd/internal/chunker"
	"ragd/internal/domain"
)

// Port is the console-facing subset of the service.
type Port interface {
	Query(ctx context.Context, question string, topK int, useLLM bool) domain.QueryResult
	Progress() domain.ProgressState
	Summary() string
	CurrentDataset() string
}

const tickInterval = 250 * time.Millisecond

type resultMsg domain.QueryResult

type tickMsg time.Time

// Model is the Bubble Tea model for the console.
type Model struct {
	service  Port
	input    textinput.Model
	viewport viewport.Model
	bar      progress.Model
	state    domain.ProgressState
	result   *domain.QueryResult
	topK     int
	useLLM   bool
	status   string
	cursor   int
	ready    bool
	busy     bool
}

// New creates a console over service.
func New(service Port, topK int, useLLM bool) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		service:  service,
		input:    ti,
		viewport: viewport.New(0, 0),
		bar:      progress.New(progress.WithDefaultGradient()),
		topK:     topK,
		useLLM:   useLLM,
		status:   "Ready. ctrl+l toggles answer generation.",
	}
}

// Init starts the cursor blink and progress polling.
func (m Model) Init() tea.Cmd { return tea.Batch(textinput.Blink, tick()) }

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) ask(q string) tea.Cmd {
	svc, topK, useLLM := m.service, m.topK, m.useLLM
	return func() tea.Msg {
		return resultMsg(svc.Query(context.Background(), q, topK, useLLM))
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 3 + 1 + qh + 1 // header, summary, bar; status; spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.bar.Width = max(10, msg.Width-4)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tickMsg:
		m.state = m.service.Progress()
		return m, tick()
	case resultMsg:
		res := domain.QueryResult(msg)
		m.busy = false
		m.result = &res
		m.cursor = 0
		switch {
		case !res.Success:
			m.status = "Error: " + res.Error
		case res.Degraded:
			m.status = fmt.Sprintf("%d documents, no answer: %s", len(res.Documents), res.Error)
		default:
			m.status = fmt.Sprintf("%d documents in %.2f ms", len(res.Documents), res.TotalMS)
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.busy {
				m.busy = true
				m.status = fmt.Sprintf("Searching %q...", q)
				return m, m.ask(q)
			}
		case "ctrl+l":
			m.useLLM = !m.useLLM
			m.status = fmt.Sprintf("Answer generation: %s", onOff(m.useLLM))
			return m, nil
		case "down":
			if n := m.documents(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if n := m.documents(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the console layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "ragd"
	if ds := m.service.CurrentDataset(); ds != "" {
		title += " · " + ds
	}
	header := lipgloss.NewStyle().Bold(true).Render(title)
	summary := dimStyle.Render(m.service.Summary())
	bar := m.bar.ViewAs(m.state.Progress) + " " + dimStyle.Render(string(m.state.Status)+" "+m.state.CurrentStep)
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return strings.Join([]string{header, summary, bar, results, input, status}, "\n")
}

func (m Model) documents() int {
	if m.result == nil {
		return 0
	}
	return len(m.result.Documents)
}

func (m Model) renderCurrentResult() string {
	if m.result == nil || len(m.result.Documents) == 0 {
		return "No results yet."
	}
	var b strings.Builder
	if m.result.Answer != nil {
		b.WriteString(highlightStyle.Render("Answer: " + *m.result.Answer))
		b.WriteString("\n\n")
	}
	d := m.result.Documents[m.cursor]
	fmt.Fprintf(&b, "Result %d/%d  score=%.3f  id=%s\n\n", m.cursor+1, len(m.result.Documents), d.Score, d.ID)
	b.WriteString(highlightBestSentence(d.Content, m.result.Question))
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	wordRe         = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
)

func highlightBestSentence(text, query string) string {
	sentences := chunker.Sentences(text)
	if len(sentences) == 0 {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for t := range toTokenSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
