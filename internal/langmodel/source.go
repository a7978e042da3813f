package langmodel

import "errors"

// ErrSourceExhausted is returned by Next when no characters remain.
var ErrSourceExhausted = errors.New("character source exhausted")

// CharSource is a sequential stream of characters consumed once by Train.
type CharSource interface {
	HasNext() bool
	Next() (rune, error)
}

// StringSource reads characters from an in-memory string.
type StringSource struct {
	runes []rune
	pos   int
}

// NewStringSource returns a source over text.
func NewStringSource(text string) *StringSource {
	return &StringSource{runes: []rune(text)}
}

// HasNext implements CharSource.
func (s *StringSource) HasNext() bool {
	return s.pos < len(s.runes)
}

// Next implements CharSource.
func (s *StringSource) Next() (rune, error) {
	if s.pos >= len(s.runes) {
		return 0, ErrSourceExhausted
	}
	r := s.runes[s.pos]
	s.pos++
	return r, nil
}
