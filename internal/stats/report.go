package stats

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/verte-zerg/charlm/internal/model"
	"github.com/verte-zerg/charlm/internal/store"
)

// Report contains run history prepared for rendering.
type Report struct {
	Runs          []model.RunRecord
	TotalRuns     int
	MeanGenerated float64
	Stopped       int
}

// BuildReport loads run history and computes aggregates.
func BuildReport(ctx context.Context, st *store.Store, cfg model.HistoryConfig) (Report, error) {
	runs, err := st.ListRuns(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	total, err := st.CountRuns(ctx, cfg.CorpusPath)
	if err != nil {
		return Report{}, err
	}
	report := Report{Runs: runs, TotalRuns: total}
	if len(runs) == 0 {
		return report, nil
	}
	generated := 0
	for _, run := range runs {
		generated += run.Generated()
		if stoppedEarly(run) {
			report.Stopped++
		}
	}
	report.MeanGenerated = float64(generated) / float64(len(runs))
	return report, nil
}

// stoppedEarly reports whether generation ended on an unknown window before
// reaching its length target.
func stoppedEarly(run model.RunRecord) bool {
	outLen := len([]rune(run.Output))
	initLen := len([]rune(run.InitialText))
	if initLen < run.WindowLength {
		return false
	}
	target := run.TextLength
	if run.LengthMode == "append" {
		if target = initLen + run.TextLength; target < run.TextLength {
			target = math.MaxInt
		}
	}
	return outLen < target
}

// RenderHistory prints the summary and one line per run.
func RenderHistory(w io.Writer, report Report) error {
	if len(report.Runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}
	lengths := make([]float64, len(report.Runs))
	for i, run := range report.Runs {
		lengths[i] = float64(run.Generated())
	}
	header := []string{
		"History",
		fmt.Sprintf("Runs: %d shown, %d stored", len(report.Runs), report.TotalRuns),
		fmt.Sprintf("Mean generated: %.1f chars", report.MeanGenerated),
		fmt.Sprintf("Stopped on unknown window: %d", report.Stopped),
		fmt.Sprintf("Generated length: [%s]", Sparkline(lengths)),
		"",
	}
	for _, line := range header {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	headers := []string{"ID", "Ended", "Window", "Mode", "Seed", "Generated", "Corpus"}
	rows := make([][]string, 0, len(report.Runs))
	for _, run := range report.Runs {
		seed := "random"
		if run.Seeded {
			seed = fmt.Sprintf("%d", run.Seed)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", run.ID),
			run.EndedAt.Local().Format(time.DateTime),
			fmt.Sprintf("%d", run.WindowLength),
			run.LengthMode,
			seed,
			fmt.Sprintf("%d", run.Generated()),
			run.CorpusPath,
		})
	}
	rightAlign := map[int]bool{0: true, 2: true, 5: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
