package langmodel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIndexOutOfRange is returned by WindowStatistics.Get for a bad index.
var ErrIndexOutOfRange = errors.New("index out of range")

// Observation is one character's count within a window, plus the derived
// probability and cumulative probability set by FinalizeProbabilities.
type Observation struct {
	Char  rune
	Count int
	P     float64
	CP    float64
}

// String renders the observation as "(c count p cp)".
func (o Observation) String() string {
	return fmt.Sprintf("(%c %d %g %g)", o.Char, o.Count, o.P, o.CP)
}

// WindowStatistics is the ordered set of observations recorded for a single
// window. New characters are inserted at the front, so the stored order is
// most-recently-introduced first. That order is also the sampling scan order.
type WindowStatistics struct {
	obs []Observation
}

// NewWindowStatistics returns an empty collection.
func NewWindowStatistics() *WindowStatistics {
	return &WindowStatistics{}
}

// Len returns the number of distinct characters.
func (s *WindowStatistics) Len() int {
	return len(s.obs)
}

// Total returns the sum of all counts.
func (s *WindowStatistics) Total() int {
	total := 0
	for _, o := range s.obs {
		total += o.Count
	}
	return total
}

// RecordOccurrence increments the count of ch, inserting it at the front
// with count 1 when it has not been seen before.
func (s *WindowStatistics) RecordOccurrence(ch rune) {
	if idx := s.IndexOf(ch); idx >= 0 {
		s.obs[idx].Count++
		return
	}
	s.obs = append(s.obs, Observation{})
	copy(s.obs[1:], s.obs)
	s.obs[0] = Observation{Char: ch, Count: 1}
}

// IndexOf returns the position of ch in the current order, or -1.
func (s *WindowStatistics) IndexOf(ch rune) int {
	for i, o := range s.obs {
		if o.Char == ch {
			return i
		}
	}
	return -1
}

// Get returns the observation at index.
func (s *WindowStatistics) Get(index int) (Observation, error) {
	if index < 0 || index >= len(s.obs) {
		return Observation{}, fmt.Errorf("%w: index %d, size %d", ErrIndexOutOfRange, index, len(s.obs))
	}
	return s.obs[index], nil
}

// Remove deletes the observation for ch and reports whether it was present.
func (s *WindowStatistics) Remove(ch rune) bool {
	idx := s.IndexOf(ch)
	if idx < 0 {
		return false
	}
	s.obs = append(s.obs[:idx], s.obs[idx+1:]...)
	return true
}

// Observations returns a copy of the observations in stored order.
func (s *WindowStatistics) Observations() []Observation {
	out := make([]Observation, len(s.obs))
	copy(out, s.obs)
	return out
}

// FinalizeProbabilities sets P and CP for every observation from the current
// counts. CP is computed from the running count divided by the total, not by
// summing P, so the last CP is exactly 1.
func (s *WindowStatistics) FinalizeProbabilities() {
	total := s.Total()
	if total == 0 {
		for i := range s.obs {
			s.obs[i].P = 0
			s.obs[i].CP = 0
		}
		return
	}
	cumulative := 0
	for i := range s.obs {
		cumulative += s.obs[i].Count
		s.obs[i].P = float64(s.obs[i].Count) / float64(total)
		s.obs[i].CP = float64(cumulative) / float64(total)
	}
}

// String renders the observations in stored order, e.g. "((a 2 0.5 0.5) (b 2 0.5 1))".
func (s *WindowStatistics) String() string {
	if len(s.obs) == 0 {
		return "()"
	}
	parts := make([]string, len(s.obs))
	for i, o := range s.obs {
		parts[i] = o.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}
