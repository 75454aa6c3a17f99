// Package fuzzy provides edit-distance string similarity used for command and wake-word matching.
package fuzzy

import "strings"

// Distance returns the Levenshtein edit distance between a and b, measured in runes.
func Distance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,
				curr[j-1]+1,
				prev[j-1]+cost,
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// Similarity normalizes Distance into [0,1]; two empty strings are identical.
func Similarity(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1
	}
	return float64(maxLen-Distance(a, b)) / float64(maxLen)
}

// WordMatch is the result of matching a phrase word by word against an utterance.
type WordMatch struct {
	Matched        int
	Total          int
	MeanSimilarity float64
}

// Ratio is the fraction of phrase words that matched.
func (m WordMatch) Ratio() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Matched) / float64(m.Total)
}

// MatchWords scores every phrase word against its most similar utterance word.
//
// A phrase word matches when the similarity reaches threshold. MeanSimilarity
// averages the best similarity of the matched words only.
func MatchWords(utteranceWords, phraseWords []string, threshold float64) WordMatch {
	return matchWords(utteranceWords, phraseWords, threshold, false)
}

// MatchWordsContaining is MatchWords that also accepts an utterance word
// containing the phrase word, scored at threshold.
func MatchWordsContaining(utteranceWords, phraseWords []string, threshold float64) WordMatch {
	return matchWords(utteranceWords, phraseWords, threshold, true)
}

func matchWords(utteranceWords, phraseWords []string, threshold float64, contains bool) WordMatch {
	match := WordMatch{Total: len(phraseWords)}
	if len(phraseWords) == 0 || len(utteranceWords) == 0 {
		return match
	}

	sum := 0.0
	for _, part := range phraseWords {
		best := 0.0
		for _, word := range utteranceWords {
			score := Similarity(word, part)
			if contains && score < threshold && strings.Contains(word, part) {
				score = threshold
			}
			if score > best {
				best = score
			}
		}
		if best >= threshold {
			match.Matched++
			sum += best
		}
	}
	if match.Matched > 0 {
		match.MeanSimilarity = sum / float64(match.Matched)
	}
	return match
}

// Words lowercases s and splits it on whitespace.
func Words(s string) []string {
	return strings.Fields(strings.ToLower(s))
}
