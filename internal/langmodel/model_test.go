package langmodel

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct {
	values []float64
	index  int
}

func (f *fixedSource) Float64() float64 {
	v := f.values[f.index%len(f.values)]
	f.index++
	return v
}

type failingSource struct {
	remaining int
	err       error
}

func (f *failingSource) HasNext() bool {
	return true
}

func (f *failingSource) Next() (rune, error) {
	if f.remaining == 0 {
		return 0, f.err
	}
	f.remaining--
	return 'a', nil
}

// brokenSource yields text and then fails.
type brokenSource struct {
	text []rune
	err  error
}

func (b *brokenSource) HasNext() bool {
	return true
}

func (b *brokenSource) Next() (rune, error) {
	if len(b.text) == 0 {
		return 0, b.err
	}
	c := b.text[0]
	b.text = b.text[1:]
	return c, nil
}

func assertFinalized(t *testing.T, lm *LanguageModel) {
	t.Helper()
	for _, window := range lm.Windows() {
		stats, ok := lm.Stats(window)
		require.True(t, ok)
		obs := stats.Observations()
		require.NotEmpty(t, obs, "window %q", window)
		sum := 0.0
		for _, o := range obs {
			sum += o.P
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "window %q", window)
		assert.Equal(t, 1.0, obs[len(obs)-1].CP, "window %q", window)
	}
}

func trained(t *testing.T, windowLength int, corpus string, opts ...Option) *LanguageModel {
	t.Helper()
	lm := New(windowLength, opts...)
	require.NoError(t, lm.Train(NewStringSource(corpus)))
	return lm
}

const sampleCorpus = `It was the best of times, it was the worst of times, it was the age of
wisdom, it was the age of foolishness, it was the epoch of belief, it was the
epoch of incredulity, it was the season of Light, it was the season of Darkness.`

func TestTrainSingleContinuationWindows(t *testing.T) {
	lm := trained(t, 3, "abcabc", WithSeed(20))

	assert.Equal(t, []string{"abc", "bca", "cab"}, lm.Windows())
	for window, next := range map[string]rune{"abc": 'a', "bca": 'b', "cab": 'c'} {
		stats, ok := lm.Stats(window)
		require.True(t, ok, window)
		assert.Equal(t, []Observation{{Char: next, Count: 1, P: 1, CP: 1}}, stats.Observations())
	}
	assert.Equal(t, "abc : ((a 1 1 1))\nbca : ((b 1 1 1))\ncab : ((c 1 1 1))\n", lm.String())
}

func TestGenerateSingleContinuation(t *testing.T) {
	lm := trained(t, 3, "abcabc", WithSeed(20))

	assert.Equal(t, "abca", lm.Generate("abc", 4))
	assert.Equal(t, "abcabcabc", lm.Generate("abc", 9))
}

func TestGenerateInitialTextShorterThanWindow(t *testing.T) {
	lm := trained(t, 3, "abcabc", WithSeed(20))

	assert.Equal(t, "ab", lm.Generate("ab", 10))
	assert.Equal(t, "", lm.Generate("", 10))
}

func TestGenerateUnknownWindowStops(t *testing.T) {
	lm := trained(t, 3, "abcabc", WithSeed(20))

	assert.Equal(t, "xyz", lm.Generate("xyz", 10))
	assert.Equal(t, "abcx", lm.Generate("abcx", 10))
}

func TestGenerateStopsWhenWindowHasNoContinuation(t *testing.T) {
	lm := trained(t, 2, "abcd", WithSeed(1))

	// "cd" is never followed by anything.
	assert.Equal(t, "abcd", lm.Generate("ab", 50))
}

func TestGenerateLengthTotal(t *testing.T) {
	lm := trained(t, 3, "abcabc", WithSeed(20))

	tests := []struct {
		name     string
		initial  string
		length   int
		expected string
	}{
		{name: "Exact target", initial: "abc", length: 3, expected: "abc"},
		{name: "Below initial", initial: "abcab", length: 2, expected: "abcab"},
		{name: "Zero", initial: "abc", length: 0, expected: "abc"},
		{name: "Grows", initial: "abc", length: 6, expected: "abcabc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, lm.Generate(tt.initial, tt.length))
		})
	}
}

func TestGenerateLengthAppend(t *testing.T) {
	lm := trained(t, 3, "abcabc", WithSeed(20), WithLengthMode(LengthAppend))

	assert.Equal(t, LengthAppend, lm.LengthMode())
	assert.Equal(t, "abcabca", lm.Generate("abc", 4))
	assert.Equal(t, "abc", lm.Generate("abc", 0))
	assert.Equal(t, "xabca", lm.Generate("xabc", 1))
}

func TestGenerateTrace(t *testing.T) {
	lm := trained(t, 3, "abcabc", WithSeed(20))

	text, steps := lm.GenerateTrace("abc", 6)
	assert.Equal(t, "abcabc", text)
	assert.Equal(t, []Step{
		{Window: "abc", Char: 'a', P: 1, CP: 1},
		{Window: "bca", Char: 'b', P: 1, CP: 1},
		{Window: "cab", Char: 'c', P: 1, CP: 1},
	}, steps)

	text, steps = lm.GenerateTrace("ab", 6)
	assert.Equal(t, "ab", text)
	assert.Empty(t, steps)
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	a := trained(t, 2, sampleCorpus, WithSeed(20))
	b := trained(t, 2, sampleCorpus, WithSeed(20))

	outA := a.Generate("it", 200)
	outB := b.Generate("it", 200)
	assert.Equal(t, outA, outB)
	assert.True(t, strings.HasPrefix(outA, "it"))

	assert.Equal(t, a.Generate("wa", 120), b.Generate("wa", 120))
}

func TestGenerateOnlyEmitsLearnedTransitions(t *testing.T) {
	lm := trained(t, 2, sampleCorpus, WithSeed(7))

	out := []rune(lm.Generate("it", 300))
	for i := 2; i < len(out); i++ {
		stats, ok := lm.Stats(string(out[i-2 : i]))
		require.True(t, ok)
		assert.GreaterOrEqual(t, stats.IndexOf(out[i]), 0)
	}
}

func TestTrainedProbabilitiesSumToOne(t *testing.T) {
	lm := trained(t, 3, sampleCorpus, WithSeed(20))

	require.Greater(t, lm.Len(), 0)
	for _, window := range lm.Windows() {
		stats, _ := lm.Stats(window)
		obs := stats.Observations()
		sum := 0.0
		prev := 0.0
		for _, o := range obs {
			sum += o.P
			assert.GreaterOrEqual(t, o.CP, prev, window)
			prev = o.CP
		}
		assert.InDelta(t, 1.0, sum, 1e-9, window)
		assert.Equal(t, 1.0, obs[len(obs)-1].CP, window)
	}
}

func TestTrainedCountsMatchFollowers(t *testing.T) {
	const windowLength = 4
	lm := trained(t, windowLength, sampleCorpus, WithSeed(20))

	runes := []rune(sampleCorpus)
	expected := map[string]int{}
	for i := 0; i+windowLength < len(runes); i++ {
		expected[string(runes[i:i+windowLength])]++
	}

	require.Equal(t, len(expected), lm.Len())
	for window, count := range expected {
		stats, ok := lm.Stats(window)
		require.True(t, ok, window)
		assert.Equal(t, count, stats.Total(), window)
	}
}

func TestTrainCorpusShorterThanWindow(t *testing.T) {
	lm := trained(t, 5, "abc", WithSeed(20))

	assert.Equal(t, 0, lm.Len())
	assert.Equal(t, "hello", lm.Generate("hello", 10))
}

func TestTrainCorpusEqualToWindow(t *testing.T) {
	lm := trained(t, 3, "abc", WithSeed(20))
	assert.Equal(t, 0, lm.Len())
}

func TestTrainNonPositiveWindowLength(t *testing.T) {
	for _, windowLength := range []int{0, -2} {
		lm := trained(t, windowLength, "abcabc", WithSeed(20))
		assert.Equal(t, 0, lm.Len())
		assert.Equal(t, "abc", lm.Generate("abc", 10))
	}
}

func TestTrainAccumulatesByDefault(t *testing.T) {
	lm := trained(t, 1, "abab", WithSeed(20))
	require.NoError(t, lm.Train(NewStringSource("abab")))

	a, ok := lm.Stats("a")
	require.True(t, ok)
	assert.Equal(t, []Observation{{Char: 'b', Count: 4, P: 1, CP: 1}}, a.Observations())

	b, ok := lm.Stats("b")
	require.True(t, ok)
	assert.Equal(t, 2, b.Total())

	require.NoError(t, lm.Train(NewStringSource("bc")))
	b, _ = lm.Stats("b")
	assert.Equal(t, "((c 1 0.3333333333333333 0.3333333333333333) (a 2 0.6666666666666666 1))", b.String())
}

func TestTrainResetMode(t *testing.T) {
	lm := trained(t, 3, "abcabc", WithSeed(20), WithTrainMode(TrainReset))
	require.NoError(t, lm.Train(NewStringSource("xyzxyz")))

	assert.Equal(t, []string{"xyz", "yzx", "zxy"}, lm.Windows())
	_, ok := lm.Stats("abc")
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	lm := trained(t, 3, "abcabc", WithSeed(20))
	lm.Reset()
	assert.Equal(t, 0, lm.Len())
	assert.Equal(t, "", lm.String())
}

func TestTrainPropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")

	for _, remaining := range []int{1, 5} {
		lm := New(3, WithSeed(20))
		err := lm.Train(&failingSource{remaining: remaining, err: boom})
		assert.True(t, errors.Is(err, boom))
		assertFinalized(t, lm)
	}
}

func TestTrainFinalizesWindowsOnSourceError(t *testing.T) {
	boom := errors.New("boom")
	lm := trained(t, 1, "ab", WithSeed(20))

	err := lm.Train(&brokenSource{text: []rune("acxy"), err: boom})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"a", "c", "x"}, lm.Windows())
	assertFinalized(t, lm)

	stats, ok := lm.Stats("a")
	require.True(t, ok)
	assert.Equal(t, []Observation{
		{Char: 'c', Count: 1, P: 0.5, CP: 0.5},
		{Char: 'b', Count: 1, P: 0.5, CP: 1},
	}, stats.Observations())
	assert.Equal(t, "xy", lm.Generate("x", 2))
}

func TestTrainMultibyteCharacters(t *testing.T) {
	lm := trained(t, 2, "héllo héllo", WithSeed(3))

	stats, ok := lm.Stats("hé")
	require.True(t, ok)
	assert.Equal(t, []Observation{{Char: 'l', Count: 2, P: 1, CP: 1}}, stats.Observations())
	assert.Equal(t, "héllo", lm.Generate("hé", 5))
}

func TestPick(t *testing.T) {
	s := NewWindowStatistics()
	for _, ch := range "abca" {
		s.RecordOccurrence(ch)
	}
	s.FinalizeProbabilities()
	// order: c (cp .25), b (cp .5), a (cp 1)

	tests := []struct {
		name     string
		r        float64
		expected rune
	}{
		{name: "Zero", r: 0, expected: 'c'},
		{name: "Inside first", r: 0.1, expected: 'c'},
		{name: "On first boundary", r: 0.25, expected: 'b'},
		{name: "Inside second", r: 0.3, expected: 'b'},
		{name: "On second boundary", r: 0.5, expected: 'a'},
		{name: "Near one", r: 0.9999999999, expected: 'a'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.obs[pick(s, tt.r)].Char)
		})
	}
}

func TestPickFallsBackToLast(t *testing.T) {
	s := &WindowStatistics{obs: []Observation{
		{Char: 'x', Count: 1, P: 0.25, CP: 0.25},
		{Char: 'y', Count: 1, P: 0.25, CP: 0.4999999999},
	}}

	assert.Equal(t, 1, pick(s, 0.49999999995))
	assert.Equal(t, 'y', s.obs[pick(s, 0.49999999995)].Char)
}

func TestSampleNextCharacterFallbackDuringGenerate(t *testing.T) {
	lm := New(2, WithRand(&fixedSource{values: []float64{0.99999999995}}))
	lm.windows["ab"] = &WindowStatistics{obs: []Observation{
		{Char: 'c', Count: 1, P: 0.5, CP: 0.5},
		{Char: 'd', Count: 1, P: 0.5, CP: 0.9999999999},
	}}

	assert.Equal(t, "abd", lm.Generate("ab", 10))
}

func TestSampleNextCharacterUsesInjectedSource(t *testing.T) {
	src := &fixedSource{values: []float64{0.1, 0.3, 0.9}}
	lm := New(1, WithRand(src))
	require.NoError(t, lm.Train(NewStringSource("xaxbxaxa")))
	// window "x": a inserted first, then b in front: order b(1), a(3)
	stats, ok := lm.Stats("x")
	require.True(t, ok)
	require.Equal(t, "((b 1 0.25 0.25) (a 3 0.75 1))", stats.String())

	assert.Equal(t, 0, lm.sampleNextCharacter(stats))
	assert.Equal(t, 'a', stats.obs[lm.sampleNextCharacter(stats)].Char)
	assert.Equal(t, 'a', stats.obs[lm.sampleNextCharacter(stats)].Char)
}

func TestParseLengthMode(t *testing.T) {
	tests := []struct {
		value    string
		expected LengthMode
		ok       bool
	}{
		{value: "", expected: LengthTotal, ok: true},
		{value: "total", expected: LengthTotal, ok: true},
		{value: " Append ", expected: LengthAppend, ok: true},
		{value: "extra", expected: LengthTotal, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			mode, ok := ParseLengthMode(tt.value)
			assert.Equal(t, tt.expected, mode)
			assert.Equal(t, tt.ok, ok)
			if ok {
				again, _ := ParseLengthMode(mode.String())
				assert.Equal(t, mode, again)
			}
		})
	}
}

func TestGenerateLengthAppendSaturates(t *testing.T) {
	lm := trained(t, 3, "abcd", WithSeed(20), WithLengthMode(LengthAppend))
	assert.Equal(t, "abcd", lm.Generate("abc", math.MaxInt))
}
