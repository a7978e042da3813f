// Package langmodel implements a character-level sliding window language
// model: training counts which character follows each window of a corpus,
// and generation samples from those counts one character at a time.
package langmodel

import (
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"
)

// Float64Source produces uniform values in [0, 1).
type Float64Source interface {
	Float64() float64
}

// LengthMode selects how Generate interprets its length argument.
type LengthMode int

const (
	// LengthTotal treats the length as the total size of the returned text.
	LengthTotal LengthMode = iota
	// LengthAppend treats the length as the number of characters to add
	// after the initial text.
	LengthAppend
)

// String returns the config spelling of the mode.
func (m LengthMode) String() string {
	if m == LengthAppend {
		return "append"
	}
	return "total"
}

// ParseLengthMode parses "total" or "append".
func ParseLengthMode(value string) (LengthMode, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "total":
		return LengthTotal, true
	case "append":
		return LengthAppend, true
	}
	return LengthTotal, false
}

// TrainMode selects what a second Train call does with existing statistics.
type TrainMode int

const (
	// TrainAccumulate adds new counts onto the existing windows.
	TrainAccumulate TrainMode = iota
	// TrainReset discards all windows before training.
	TrainReset
)

// Step records one sampled character during generation.
type Step struct {
	Window string
	Char   rune
	P      float64
	CP     float64
}

// Option configures a LanguageModel.
type Option func(*LanguageModel)

// WithSeed makes generation deterministic for the given seed.
func WithSeed(seed int64) Option {
	return func(lm *LanguageModel) {
		lm.rnd = rand.New(rand.NewSource(seed))
	}
}

// WithRand replaces the random source used for sampling.
func WithRand(src Float64Source) Option {
	return func(lm *LanguageModel) {
		lm.rnd = src
	}
}

// WithLengthMode sets how Generate interprets textLength.
func WithLengthMode(mode LengthMode) Option {
	return func(lm *LanguageModel) {
		lm.lengthMode = mode
	}
}

// WithTrainMode sets the retraining policy.
func WithTrainMode(mode TrainMode) Option {
	return func(lm *LanguageModel) {
		lm.trainMode = mode
	}
}

// WithLogger sets the logger used for training diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(lm *LanguageModel) {
		if logger != nil {
			lm.logger = logger
		}
	}
}

// LanguageModel maps every window seen in training to the statistics of the
// character that followed it. It is not safe for concurrent use.
type LanguageModel struct {
	windowLength int
	windows      map[string]*WindowStatistics
	rnd          Float64Source
	lengthMode   LengthMode
	trainMode    TrainMode
	logger       *slog.Logger
}

// New returns an empty model. Without WithSeed or WithRand the random source
// is seeded with the current time.
func New(windowLength int, opts ...Option) *LanguageModel {
	lm := &LanguageModel{
		windowLength: windowLength,
		windows:      make(map[string]*WindowStatistics),
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(lm)
	}
	if lm.rnd == nil {
		lm.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return lm
}

// WindowLength returns the configured window length.
func (lm *LanguageModel) WindowLength() int {
	return lm.windowLength
}

// LengthMode returns the configured length mode.
func (lm *LanguageModel) LengthMode() LengthMode {
	return lm.lengthMode
}

// Len returns the number of distinct windows learned.
func (lm *LanguageModel) Len() int {
	return len(lm.windows)
}

// Reset discards all learned windows.
func (lm *LanguageModel) Reset() {
	lm.windows = make(map[string]*WindowStatistics)
}

// Train reads src to exhaustion, counting the character that follows every
// window, then finalizes probabilities for all windows. A window length of
// zero or less, or a source shorter than one window, leaves the model
// unchanged. Only errors from src are returned; windows counted before the
// error are still finalized.
func (lm *LanguageModel) Train(src CharSource) error {
	if lm.trainMode == TrainReset {
		lm.Reset()
	}
	if lm.windowLength <= 0 {
		return nil
	}

	read, err := lm.count(src)
	for _, stats := range lm.windows {
		stats.FinalizeProbabilities()
	}
	if err != nil {
		lm.logger.Debug("training stopped on source error",
			slog.Int("characters", read),
			slog.Int("windows", len(lm.windows)),
			slog.Any("err", err),
		)
		return err
	}
	lm.logger.Debug("trained language model",
		slog.Int("window_length", lm.windowLength),
		slog.Int("characters", read),
		slog.Int("windows", len(lm.windows)),
	)
	return nil
}

// count records one occurrence per character of src after the first window
// and returns how many characters were read.
func (lm *LanguageModel) count(src CharSource) (int, error) {
	window := make([]rune, 0, lm.windowLength)
	for len(window) < lm.windowLength && src.HasNext() {
		c, err := src.Next()
		if err != nil {
			return len(window), err
		}
		window = append(window, c)
	}

	read := len(window)
	for src.HasNext() {
		c, err := src.Next()
		if err != nil {
			return read, err
		}
		read++
		key := string(window)
		stats, ok := lm.windows[key]
		if !ok {
			stats = NewWindowStatistics()
			lm.windows[key] = stats
		}
		stats.RecordOccurrence(c)
		copy(window, window[1:])
		window[len(window)-1] = c
	}
	return read, nil
}

// Stats returns the statistics for window, if it was seen in training.
func (lm *LanguageModel) Stats(window string) (*WindowStatistics, bool) {
	stats, ok := lm.windows[window]
	return stats, ok
}

// Windows returns all learned windows in lexical order.
func (lm *LanguageModel) Windows() []string {
	keys := make([]string, 0, len(lm.windows))
	for k := range lm.windows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Generate extends initialText by sampling one character at a time from the
// statistics of the trailing window. Generation stops when the length target
// is reached or the trailing window was never seen in training. If
// initialText is shorter than the window length, or the window length is not
// positive, initialText is returned unchanged.
func (lm *LanguageModel) Generate(initialText string, textLength int) string {
	text, _ := lm.generate(initialText, textLength, false)
	return text
}

// GenerateTrace is Generate that also reports every sampled step.
func (lm *LanguageModel) GenerateTrace(initialText string, textLength int) (string, []Step) {
	return lm.generate(initialText, textLength, true)
}

func (lm *LanguageModel) generate(initialText string, textLength int, trace bool) (string, []Step) {
	out := []rune(initialText)
	if lm.windowLength <= 0 || len(out) < lm.windowLength {
		return initialText, nil
	}
	target := textLength
	if lm.lengthMode == LengthAppend {
		target = len(out) + textLength
		if target < textLength {
			target = math.MaxInt
		}
	}

	var steps []Step
	for len(out) < target {
		window := string(out[len(out)-lm.windowLength:])
		stats, ok := lm.windows[window]
		if !ok || stats.Len() == 0 {
			break
		}
		idx := lm.sampleNextCharacter(stats)
		obs := stats.obs[idx]
		out = append(out, obs.Char)
		if trace {
			steps = append(steps, Step{Window: window, Char: obs.Char, P: obs.P, CP: obs.CP})
		}
	}
	return string(out), steps
}

// sampleNextCharacter draws r in [0, 1) and returns the index of the chosen
// observation.
func (lm *LanguageModel) sampleNextCharacter(stats *WindowStatistics) int {
	return pick(stats, lm.rnd.Float64())
}

// pick returns the index of the first observation whose CP exceeds r, or the
// last observation when rounding leaves none above r.
func pick(stats *WindowStatistics, r float64) int {
	for i, o := range stats.obs {
		if o.CP > r {
			return i
		}
	}
	return len(stats.obs) - 1
}

// String renders every window, in lexical order, followed by its observations.
func (lm *LanguageModel) String() string {
	var b strings.Builder
	for _, key := range lm.Windows() {
		b.WriteString(key)
		b.WriteString(" : ")
		b.WriteString(lm.windows[key].String())
		b.WriteByte('\n')
	}
	return b.String()
}
