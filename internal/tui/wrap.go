package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/charlm/internal/langmodel"
)

const (
	highProbability = 0.5
	midProbability  = 0.15
)

type styledRune struct {
	s       string
	width   int
	isSpace bool
	isBreak bool
}

// styleForProbability picks the style for a character sampled with probability p.
func styleForProbability(p float64) lipgloss.Style {
	switch {
	case p >= highProbability:
		return highStyle
	case p >= midProbability:
		return midStyle
	default:
		return lowStyle
	}
}

// buildOutputRunes styles the prompt part of text neutrally and every
// generated character by the probability it was sampled with.
func buildOutputRunes(text string, promptLen int, steps []langmodel.Step) []styledRune {
	runes := []rune(text)
	out := make([]styledRune, 0, len(runes))
	for i, r := range runes {
		style := promptStyle
		if gen := i - promptLen; gen >= 0 && gen < len(steps) {
			style = styleForProbability(steps[gen].P)
		}
		if r == '\n' {
			out = append(out, styledRune{isBreak: true})
			continue
		}
		displayed := r
		if r == '\t' {
			displayed = ' '
		}
		out = append(out, styledRune{
			s:       style.Render(string(displayed)),
			width:   runewidth.RuneWidth(displayed),
			isSpace: displayed == ' ',
		})
	}
	return out
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

func wrapStyledRunes(runes []styledRune, width int) string {
	var out strings.Builder
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpaceIdx := -1

	for i := 0; i < len(runes); {
		item := runes[i]
		if item.isBreak {
			out.WriteString(renderStyledRunes(line))
			out.WriteRune('\n')
			line = line[:0]
			lineWidth = 0
			lastSpaceIdx = -1
			i++
			continue
		}
		if width > 0 && lineWidth+item.width > width && len(line) > 0 {
			if lastSpaceIdx >= 0 {
				out.WriteString(renderStyledRunes(line[:lastSpaceIdx]))
				out.WriteRune('\n')
				line = append([]styledRune{}, line[lastSpaceIdx+1:]...)
				lineWidth = lineWidthOf(line)
				lastSpaceIdx = lastSpaceIndex(line)
			} else {
				out.WriteString(renderStyledRunes(line))
				out.WriteRune('\n')
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	out.WriteString(renderStyledRunes(line))
	return out.String()
}

func lineWidthOf(line []styledRune) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledRune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}
