package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/charlm/internal/langmodel"
	"github.com/verte-zerg/charlm/internal/model"
	"github.com/verte-zerg/charlm/internal/store"
)

func newTestModel(t *testing.T, corpus, prompt string, st *store.Store) *Model {
	t.Helper()
	lm := langmodel.New(3, langmodel.WithSeed(model.FixedSeed))
	if err := lm.Train(langmodel.NewStringSource(corpus)); err != nil {
		t.Fatalf("train: %v", err)
	}
	cfg := model.Config{
		WindowLength: 3,
		InitialText:  prompt,
		TextLength:   10,
		LengthMode:   "total",
		Seed:         model.FixedSeed,
		CorpusPath:   "/tmp/corpus.txt",
	}
	return NewModel(lm, st, cfg, len([]rune(corpus)))
}

func press(m *Model, key tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: key})
	return cmd
}

func TestEnterGenerates(t *testing.T) {
	m := newTestModel(t, "abcabc", "abc", nil)
	press(m, tea.KeyEnter)

	if m.text != "abcabcabca" {
		t.Fatalf("unexpected text %q", m.text)
	}
	if len(m.steps) != 7 {
		t.Fatalf("expected 7 steps, got %d", len(m.steps))
	}
	if m.status != "Generated 7 characters" {
		t.Fatalf("unexpected status %q", m.status)
	}
	if m.window != m.steps[len(m.steps)-1].Window {
		t.Fatalf("expected active window from last step, got %q", m.window)
	}
	if rows := m.table.Rows(); len(rows) != 1 {
		t.Fatalf("expected 1 table row, got %d", len(rows))
	}
}

func TestGenerateShortPrompt(t *testing.T) {
	m := newTestModel(t, "abcabc", "ab", nil)
	press(m, tea.KeyEnter)

	if m.text != "ab" || len(m.steps) != 0 {
		t.Fatalf("expected prompt unchanged, got %q", m.text)
	}
	if !strings.Contains(m.status, "at least 3") {
		t.Fatalf("unexpected status %q", m.status)
	}
	if m.window != "" || len(m.table.Rows()) != 0 {
		t.Fatalf("expected no active window, got %q", m.window)
	}
}

func TestGenerateStopsOnUnseenWindow(t *testing.T) {
	m := newTestModel(t, "abcabd", "abc", nil)
	press(m, tea.KeyCtrlR)

	if m.text != "abcabd" {
		t.Fatalf("unexpected text %q", m.text)
	}
	if !strings.Contains(m.status, "stopped on unseen window") {
		t.Fatalf("unexpected status %q", m.status)
	}
	if m.window != "cab" {
		t.Fatalf("expected window cab, got %q", m.window)
	}
}

func TestGenerateSavesRun(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "charlm.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	m := newTestModel(t, "abcabc", "abc", st)
	press(m, tea.KeyEnter)
	press(m, tea.KeyCtrlR)

	if m.runs != 2 {
		t.Fatalf("expected 2 runs, got %d", m.runs)
	}
	runs, err := st.ListRuns(context.Background(), model.HistoryConfig{})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 stored runs, got %d", len(runs))
	}
	if runs[0].Output != "abcabcabca" || !runs[0].Seeded || runs[0].Windows != 3 {
		t.Fatalf("unexpected run %+v", runs[0])
	}

	short := newTestModel(t, "abcabc", "a", st)
	if short.runs != 2 {
		t.Fatalf("expected run count loaded from store, got %d", short.runs)
	}
	press(short, tea.KeyEnter)
	if short.runs != 2 {
		t.Fatalf("short prompt should not be saved, got %d runs", short.runs)
	}
}

func TestTabTogglesFocus(t *testing.T) {
	m := newTestModel(t, "abcabc", "abc", nil)
	press(m, tea.KeyTab)
	if m.focus != focusTable || m.input.Focused() || !m.table.Focused() {
		t.Fatalf("expected table focus")
	}
	press(m, tea.KeyEnter)
	if m.text != "" {
		t.Fatalf("enter should not generate while table is focused")
	}
	press(m, tea.KeyTab)
	if m.focus != focusPrompt || !m.input.Focused() {
		t.Fatalf("expected prompt focus")
	}
}

func TestQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyType{tea.KeyCtrlC, tea.KeyEsc} {
		m := newTestModel(t, "abcabc", "abc", nil)
		cmd := press(m, key)
		if cmd == nil {
			t.Fatalf("expected quit command for %v", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("expected quit message for %v", key)
		}
	}
}

func TestViewAfterResize(t *testing.T) {
	m := newTestModel(t, "abcabc", "abc", nil)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	press(m, tea.KeyEnter)

	view := m.View()
	for _, want := range []string{"window 3", "Window", "Generated 7 characters"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view:\n%s", want, view)
		}
	}
	if m.output.Width != 100-tableWidth-4 {
		t.Fatalf("unexpected output width %d", m.output.Width)
	}
}

func TestRunCountFailureShownInFooter(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "charlm.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	m := newTestModel(t, "abcabc", "abc", st)
	if !strings.Contains(m.errMsg, "failed to count runs") {
		t.Fatalf("expected count error in model, got %q", m.errMsg)
	}
	if !strings.Contains(m.View(), "failed to count runs") {
		t.Fatalf("expected count error in view:\n%s", m.View())
	}
}
