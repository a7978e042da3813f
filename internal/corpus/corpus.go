// Package corpus reads training text as a stream of characters.
package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/verte-zerg/charlm/internal/langmodel"
)

// Source is a buffered rune stream with one character of lookahead so that
// HasNext is exact. It implements langmodel.CharSource.
type Source struct {
	r      *bufio.Reader
	closer io.Closer
	next   rune
	ok     bool
	err    error
	read   int
}

var _ langmodel.CharSource = (*Source)(nil)

// Open opens the corpus file at path.
func Open(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus %s: %w", path, err)
	}
	src := NewReaderSource(file)
	src.closer = file
	return src, nil
}

// NewReaderSource returns a source reading from r. Invalid UTF-8 bytes are
// returned as utf8.RuneError.
func NewReaderSource(r io.Reader) *Source {
	src := &Source{r: bufio.NewReader(r)}
	src.advance()
	return src
}

func (s *Source) advance() {
	ch, _, err := s.r.ReadRune()
	if err != nil {
		s.ok = false
		if !errors.Is(err, io.EOF) {
			s.err = err
		}
		return
	}
	s.next = ch
	s.ok = true
}

// HasNext reports whether another character can be read. A pending read
// error also reports true so that Next can return it.
func (s *Source) HasNext() bool {
	return s.ok || s.err != nil
}

// Next returns the next character.
func (s *Source) Next() (rune, error) {
	if !s.ok {
		if s.err != nil {
			err := s.err
			s.err = nil
			return 0, fmt.Errorf("failed to read corpus: %w", err)
		}
		return 0, langmodel.ErrSourceExhausted
	}
	ch := s.next
	s.read++
	s.advance()
	return ch, nil
}

// Read returns the number of characters returned by Next so far.
func (s *Source) Read() int {
	return s.read
}

// Close closes the underlying file, if any.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Train opens the corpus at path and trains lm on it. It returns the number of
// characters read.
func Train(lm *langmodel.LanguageModel, path string) (int, error) {
	src, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			// Best-effort close for read-only corpus.
			_ = cerr
		}
	}()
	if err := lm.Train(src); err != nil {
		return src.Read(), err
	}
	return src.Read(), nil
}
