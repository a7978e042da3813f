// Package tui provides the Bubble Tea model explorer.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/charlm/internal/langmodel"
	"github.com/verte-zerg/charlm/internal/model"
	"github.com/verte-zerg/charlm/internal/stats"
	"github.com/verte-zerg/charlm/internal/store"
)

const (
	focusPrompt = iota
	focusTable
)

const tableWidth = 36

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	highStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	midStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	lowStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C0C0C0")).Bold(true)
	paneStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder(), true).BorderForeground(lipgloss.Color("#4A4A4A"))
	activeBorder = lipgloss.Color("#C89A3A")
)

// Model implements the Bubble Tea explorer UI.
type Model struct {
	lm          *langmodel.LanguageModel
	store       *store.Store
	config      model.Config
	corpusChars int

	input  textinput.Model
	output viewport.Model
	table  table.Model
	focus  int

	width  int
	height int

	text      string
	promptLen int
	steps     []langmodel.Step
	window    string
	status    string
	errMsg    string
	runs      int
}

// NewModel constructs an explorer for a trained model. st may be nil to
// disable run history.
func NewModel(lm *langmodel.LanguageModel, st *store.Store, cfg model.Config, corpusChars int) *Model {
	input := textinput.New()
	input.Prompt = "Prompt: "
	input.Placeholder = fmt.Sprintf("at least %d characters", lm.WindowLength())
	input.CharLimit = 0
	input.SetValue(cfg.InitialText)
	input.Focus()

	m := &Model{
		lm:          lm,
		store:       st,
		config:      cfg,
		corpusChars: corpusChars,
		input:       input,
		output:      viewport.New(0, 0),
		table:       newWindowTable(),
	}
	m.loadRunCount()
	return m
}

func newWindowTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Char", Width: 8},
			{Title: "Count", Width: 7},
			{Title: "P", Width: 7},
			{Title: "CP", Width: 7},
		}),
		table.WithHeight(1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	t.SetStyles(styles)
	return t
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			m.toggleFocus()
			return m, nil
		case tea.KeyCtrlR:
			m.generate()
			return m, nil
		case tea.KeyEnter:
			if m.focus == focusPrompt {
				m.generate()
				return m, nil
			}
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.output, cmd = m.output.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	if m.focus == focusPrompt {
		m.input, cmd = m.input.Update(msg)
	} else {
		m.table, cmd = m.table.Update(msg)
	}
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	header := titleStyle.Render(fmt.Sprintf("charlm · window %d · %d windows", m.lm.WindowLength(), m.lm.Len()))
	prompt := m.input.View()
	if m.width == 0 || m.height == 0 {
		return strings.Join([]string{header, prompt, m.renderOutput(0), m.renderFooter()}, "\n")
	}

	outPane := paneStyle
	tablePane := paneStyle
	if m.focus == focusPrompt {
		outPane = outPane.BorderForeground(activeBorder)
	} else {
		tablePane = tablePane.BorderForeground(activeBorder)
	}
	windowTitle := "Window"
	if m.window != "" {
		windowTitle = "Window " + stats.WindowLabel(m.window)
	}
	right := lipgloss.JoinVertical(lipgloss.Left, windowTitle, m.table.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		outPane.Render(m.output.View()),
		tablePane.Render(right),
	)
	return strings.Join([]string{header, prompt, body, m.renderFooter()}, "\n")
}

func (m *Model) toggleFocus() {
	if m.focus == focusPrompt {
		m.focus = focusTable
		m.input.Blur()
		m.table.Focus()
		return
	}
	m.focus = focusPrompt
	m.table.Blur()
	m.input.Focus()
}

// layout sizes the panes: header, prompt, bordered body, footer.
func (m *Model) layout() {
	bodyHeight := m.height - 3 - 2
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	outWidth := m.width - tableWidth - 4
	if outWidth < 10 {
		outWidth = 10
	}
	m.output.Width = outWidth
	m.output.Height = bodyHeight
	m.table.SetWidth(tableWidth)
	m.table.SetHeight(maxInt(1, bodyHeight-2))
	m.output.SetContent(m.renderOutput(outWidth))
}

func (m *Model) generate() {
	prompt := m.input.Value()
	started := time.Now()
	m.text, m.steps = m.lm.GenerateTrace(prompt, m.config.TextLength)
	ended := time.Now()
	m.promptLen = len([]rune(prompt))
	m.errMsg = ""
	m.status = m.describeRun(prompt)
	m.window = m.activeWindow(prompt)
	m.table.SetRows(windowRows(m.lm, m.window))
	m.table.GotoTop()
	m.output.SetContent(m.renderOutput(m.output.Width))
	m.output.GotoTop()

	if m.store == nil || m.promptLen < m.lm.WindowLength() {
		return
	}
	run := model.RunRecord{
		StartedAt:    started,
		EndedAt:      ended,
		CorpusPath:   m.config.CorpusPath,
		WindowLength: m.lm.WindowLength(),
		LengthMode:   m.lm.LengthMode().String(),
		Seeded:       !m.config.Random,
		Seed:         m.config.Seed,
		InitialText:  prompt,
		TextLength:   m.config.TextLength,
		Output:       m.text,
		Windows:      m.lm.Len(),
		CorpusChars:  m.corpusChars,
		DurationMs:   ended.Sub(started).Milliseconds(),
	}
	if _, err := m.store.InsertRun(context.Background(), run); err != nil {
		m.errMsg = fmt.Sprintf("failed to save run: %v", err)
		return
	}
	m.runs++
}

// activeWindow is the window that produced the last generated character, or
// the trailing window of the prompt when nothing was generated.
func (m *Model) activeWindow(prompt string) string {
	if len(m.steps) > 0 {
		return m.steps[len(m.steps)-1].Window
	}
	runes := []rune(prompt)
	w := m.lm.WindowLength()
	if w <= 0 || len(runes) < w {
		return ""
	}
	return string(runes[len(runes)-w:])
}

func (m *Model) describeRun(prompt string) string {
	w := m.lm.WindowLength()
	runes := []rune(prompt)
	if len(runes) < w {
		return fmt.Sprintf("Prompt needs at least %d characters", w)
	}
	generated := len(m.steps)
	textRunes := []rune(m.text)
	target := m.config.TextLength
	if m.lm.LengthMode() == langmodel.LengthAppend {
		if target += len(runes); target < m.config.TextLength {
			target = math.MaxInt
		}
	}
	if len(textRunes) < target {
		if _, ok := m.lm.Stats(string(textRunes[len(textRunes)-w:])); !ok {
			return fmt.Sprintf("Generated %d characters; stopped on unseen window %s", generated, stats.WindowLabel(string(textRunes[len(textRunes)-w:])))
		}
	}
	return fmt.Sprintf("Generated %d characters", generated)
}

func windowRows(lm *langmodel.LanguageModel, window string) []table.Row {
	ws, ok := lm.Stats(window)
	if !ok {
		return nil
	}
	obs := ws.Observations()
	rows := make([]table.Row, 0, len(obs))
	for _, o := range obs {
		rows = append(rows, table.Row{
			stats.CharLabel(o.Char),
			fmt.Sprintf("%d", o.Count),
			fmt.Sprintf("%.3f", o.P),
			fmt.Sprintf("%.3f", o.CP),
		})
	}
	return rows
}

func (m *Model) renderOutput(width int) string {
	if m.text == "" {
		return footerStyle.Render("Type a prompt and press Enter.")
	}
	return wrapStyledRunes(buildOutputRunes(m.text, m.promptLen, m.steps), width)
}

func (m *Model) renderFooter() string {
	segments := []string{}
	if m.status != "" {
		segments = append(segments, m.status)
	}
	if m.store != nil {
		segments = append(segments, fmt.Sprintf("Runs %d", m.runs))
	}
	segments = append(segments, "enter generate · ctrl+r again · tab focus · esc quit")
	footer := footerStyle.Render(strings.Join(segments, "  "))
	if m.errMsg != "" {
		footer = errorStyle.Render(m.errMsg) + "\n" + footer
	}
	return footer
}

func (m *Model) loadRunCount() {
	if m.store == nil {
		return
	}
	n, err := m.store.CountRuns(context.Background(), m.config.CorpusPath)
	if err != nil {
		m.errMsg = fmt.Sprintf("failed to count runs: %v", err)
		return
	}
	m.runs = n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
