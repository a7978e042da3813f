// Package stats contains model statistics and text reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/verte-zerg/charlm/internal/langmodel"
)

const sparkChars = " .:-=+*#%@"

// ModelSummary describes the overall shape of a trained model.
type ModelSummary struct {
	WindowLength    int
	Windows         int
	Observations    int
	Transitions     int
	MeanBranching   float64
	MeanEntropyBits float64
	Deterministic   int
}

// WindowRow is the per-window data shown by RenderModel.
type WindowRow struct {
	Window      string
	Total       int
	Distinct    int
	EntropyBits float64
	Top         []langmodel.Observation
}

// ModelOptions controls RenderModel output.
type ModelOptions struct {
	Limit int
	Top   int
	Width int
}

// Entropy returns the Shannon entropy in bits of the finalized probabilities.
func Entropy(ws *langmodel.WindowStatistics) float64 {
	h := 0.0
	for _, o := range ws.Observations() {
		if o.P > 0 {
			h -= o.P * math.Log2(o.P)
		}
	}
	return h
}

// Summarize computes a ModelSummary for lm.
func Summarize(lm *langmodel.LanguageModel) ModelSummary {
	sum := ModelSummary{WindowLength: lm.WindowLength()}
	var entropy float64
	for _, window := range lm.Windows() {
		ws, _ := lm.Stats(window)
		sum.Windows++
		sum.Observations += ws.Len()
		sum.Transitions += ws.Total()
		if ws.Len() == 1 {
			sum.Deterministic++
		}
		entropy += Entropy(ws)
	}
	if sum.Windows > 0 {
		sum.MeanBranching = float64(sum.Observations) / float64(sum.Windows)
		sum.MeanEntropyBits = entropy / float64(sum.Windows)
	}
	return sum
}

// WindowRows returns one row per window, ordered by total count descending
// and then by window text.
func WindowRows(lm *langmodel.LanguageModel, top int) []WindowRow {
	windows := lm.Windows()
	rows := make([]WindowRow, 0, len(windows))
	for _, window := range windows {
		ws, _ := lm.Stats(window)
		rows = append(rows, WindowRow{
			Window:      window,
			Total:       ws.Total(),
			Distinct:    ws.Len(),
			EntropyBits: Entropy(ws),
			Top:         TopContinuations(ws, top),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Total == rows[j].Total {
			return rows[i].Window < rows[j].Window
		}
		return rows[i].Total > rows[j].Total
	})
	return rows
}

// CharLabel makes whitespace characters visible in tables.
func CharLabel(ch rune) string {
	switch ch {
	case ' ':
		return "<space>"
	case '\n':
		return "<nl>"
	case '\r':
		return "<cr>"
	case '\t':
		return "<tab>"
	}
	return string(ch)
}

// WindowLabel applies CharLabel-style escaping to a whole window. Spaces stay
// as a middle dot so the window keeps its visual length.
func WindowLabel(window string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, ch := range window {
		switch ch {
		case ' ':
			b.WriteString("·")
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(ch)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// RenderSummary prints the model summary block.
func RenderSummary(w io.Writer, sum ModelSummary) error {
	lines := []string{
		"Model",
		fmt.Sprintf("Window length: %d", sum.WindowLength),
		fmt.Sprintf("Windows: %d", sum.Windows),
		fmt.Sprintf("Transitions: %d", sum.Transitions),
		fmt.Sprintf("Mean branching: %.2f", sum.MeanBranching),
		fmt.Sprintf("Mean entropy: %.3f bits", sum.MeanEntropyBits),
		fmt.Sprintf("Deterministic windows: %d", sum.Deterministic),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderModel prints the summary followed by the per-window table.
func RenderModel(w io.Writer, lm *langmodel.LanguageModel, opts ModelOptions) error {
	if err := RenderSummary(w, Summarize(lm)); err != nil {
		return err
	}
	if lm.Len() == 0 {
		_, err := fmt.Fprintln(w, "No windows learned.")
		return err
	}
	if opts.Top <= 0 {
		opts.Top = 5
	}
	rows := WindowRows(lm, opts.Top)
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}

	headers := []string{"Window", "Total", "Distinct", "Entropy", "Top"}
	tableRows := make([][]string, 0, len(rows))
	for _, r := range rows {
		top := make([]string, 0, len(r.Top))
		for _, o := range r.Top {
			top = append(top, fmt.Sprintf("%s %.2f", CharLabel(o.Char), o.P))
		}
		tableRows = append(tableRows, []string{
			WindowLabel(r.Window),
			fmt.Sprintf("%d", r.Total),
			fmt.Sprintf("%d", r.Distinct),
			fmt.Sprintf("%.3f", r.EntropyBits),
			strings.Join(top, ", "),
		})
	}
	rightAlign := map[int]bool{1: true, 2: true, 3: true}
	for _, line := range formatTable(headers, tableRows, rightAlign) {
		if _, err := fmt.Fprintln(w, truncate(line, opts.Width)); err != nil {
			return err
		}
	}
	return nil
}

// RenderWindow prints the observations of one window in stored order.
func RenderWindow(w io.Writer, window string, ws *langmodel.WindowStatistics) error {
	if _, err := fmt.Fprintf(w, "Window %s\n", WindowLabel(window)); err != nil {
		return err
	}
	headers := []string{"#", "Char", "Count", "P", "CP"}
	obs := ws.Observations()
	rows := make([][]string, 0, len(obs))
	for i, o := range obs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i),
			CharLabel(o.Char),
			fmt.Sprintf("%d", o.Count),
			fmt.Sprintf("%.4f", o.P),
			fmt.Sprintf("%.4f", o.CP),
		})
	}
	rightAlign := map[int]bool{0: true, 2: true, 3: true, 4: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Total %d, entropy %.3f bits\n", ws.Total(), Entropy(ws))
	return err
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}
