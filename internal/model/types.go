// Package model defines shared data structures.
package model

import "time"

// FixedSeed is the seed used when generation is not random.
const FixedSeed int64 = 20

// Config defines training and generation settings.
type Config struct {
	WindowLength int
	InitialText  string
	TextLength   int
	LengthMode   string
	Random       bool
	Seed         int64
	CorpusPath   string
}

// HistoryConfig defines filters for run history output.
type HistoryConfig struct {
	CorpusPath string
	Since      *time.Time
	Last       int
}

// RunRecord captures one completed generation.
type RunRecord struct {
	ID           int64
	StartedAt    time.Time
	EndedAt      time.Time
	CorpusPath   string
	WindowLength int
	LengthMode   string
	Seeded       bool
	Seed         int64
	InitialText  string
	TextLength   int
	Output       string
	Windows      int
	CorpusChars  int
	DurationMs   int64
}

// Generated returns how many characters the run added to its initial text.
func (r RunRecord) Generated() int {
	return len([]rune(r.Output)) - len([]rune(r.InitialText))
}
