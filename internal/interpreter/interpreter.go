// Package interpreter classifies free-text utterances into structured commands.
package interpreter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rbright/nexa/internal/fuzzy"
	"github.com/rbright/nexa/internal/grammar"
)

// Command is one interpreted utterance. It is a value and is never mutated after creation.
type Command struct {
	Action     grammar.Action `json:"action"`
	Target     string         `json:"target,omitempty"`
	Type       string         `json:"type,omitempty"`
	Query      string         `json:"query,omitempty"`
	Confidence float64        `json:"confidence"`
	RawInput   string         `json:"rawInput"`
	CommandID  string         `json:"commandId,omitempty"`
}

// Thresholds tunes the matching strategies and their confidence bands.
type Thresholds struct {
	ExactConfidence  float64
	ContainsFloor    float64
	ContainsSpan     float64
	SearchConfidence float64
	WordSimilarity   float64
	MatchRatio       float64
	FuzzyFloor       float64
	FuzzySpan        float64
}

// DefaultThresholds returns the stock confidence bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ExactConfidence:  0.95,
		ContainsFloor:    0.8,
		ContainsSpan:     0.1,
		SearchConfidence: 0.9,
		WordSimilarity:   0.8,
		MatchRatio:       0.7,
		FuzzyFloor:       0.5,
		FuzzySpan:        0.25,
	}
}

// Validate checks that the bands keep exact above fuzzy above zero.
func (t Thresholds) Validate() error {
	switch {
	case t.WordSimilarity <= 0 || t.WordSimilarity > 1:
		return fmt.Errorf("word similarity %.2f must be in (0,1]", t.WordSimilarity)
	case t.MatchRatio <= 0 || t.MatchRatio > 1:
		return fmt.Errorf("match ratio %.2f must be in (0,1]", t.MatchRatio)
	case t.FuzzyFloor <= 0:
		return fmt.Errorf("fuzzy floor %.2f must be > 0", t.FuzzyFloor)
	case t.FuzzyFloor+t.FuzzySpan >= t.ContainsFloor:
		return fmt.Errorf("fuzzy ceiling %.2f must stay below contains floor %.2f", t.FuzzyFloor+t.FuzzySpan, t.ContainsFloor)
	case t.ContainsFloor+t.ContainsSpan > t.ExactConfidence:
		return fmt.Errorf("contains ceiling %.2f must not exceed exact confidence %.2f", t.ContainsFloor+t.ContainsSpan, t.ExactConfidence)
	case t.ExactConfidence > 1:
		return fmt.Errorf("exact confidence %.2f must be <= 1", t.ExactConfidence)
	}
	return nil
}

// Interpreter matches utterances against a grammar. It holds no mutable state.
type Interpreter struct {
	grammar    grammar.Grammar
	thresholds Thresholds
	phrases    []phrase
	triggers   []string
}

type phrase struct {
	text  string
	words []string
	def   grammar.Definition
}

// New builds an interpreter over g.
func New(g grammar.Grammar, thresholds Thresholds) *Interpreter {
	in := &Interpreter{grammar: g, thresholds: thresholds}
	for _, def := range g.All() {
		for _, p := range def.Phrases {
			in.phrases = append(in.phrases, phrase{text: p, words: strings.Fields(p), def: def})
		}
	}

	in.triggers = append([]string(nil), g.SearchTriggers...)
	sort.SliceStable(in.triggers, func(i, j int) bool {
		return len(in.triggers[i]) > len(in.triggers[j])
	})
	return in
}

// Grammar returns the grammar backing the interpreter.
func (in *Interpreter) Grammar() grammar.Grammar {
	return in.grammar
}

// InterpretPtr treats a nil utterance like an empty one.
func (in *Interpreter) InterpretPtr(utterance *string) Command {
	if utterance == nil {
		return unknown("")
	}
	return in.Interpret(*utterance)
}

// Interpret classifies one utterance.
func (in *Interpreter) Interpret(utterance string) Command {
	collapsed := strings.Join(strings.Fields(utterance), " ")
	if collapsed == "" {
		return unknown(utterance)
	}
	normalized := strings.ToLower(collapsed)

	if cmd, ok := in.matchSearch(collapsed, normalized, utterance); ok {
		return cmd
	}
	if cmd, ok := in.matchExact(normalized, utterance); ok {
		return cmd
	}
	if cmd, ok := in.matchFuzzy(normalized, utterance); ok {
		return cmd
	}
	return unknown(utterance)
}

// matchSearch extracts the query after a search trigger, preserving its case.
func (in *Interpreter) matchSearch(collapsed, normalized, raw string) (Command, bool) {
	for _, trigger := range in.triggers {
		if normalized != trigger && !strings.HasPrefix(normalized, trigger+" ") {
			continue
		}
		words := strings.Fields(collapsed)
		query := strings.Join(words[len(strings.Fields(trigger)):], " ")
		confidence := in.thresholds.SearchConfidence
		if query == "" {
			confidence = in.thresholds.ContainsFloor
		}
		return Command{
			Action:     grammar.ActionSearch,
			Query:      query,
			Confidence: confidence,
			RawInput:   raw,
		}, true
	}
	return Command{}, false
}

// matchExact prefers full equality, then the longest word-bounded contained phrase.
func (in *Interpreter) matchExact(normalized, raw string) (Command, bool) {
	padded := " " + normalized + " "

	var best *phrase
	for i := range in.phrases {
		p := &in.phrases[i]
		if p.text == normalized {
			return build(p.def, in.thresholds.ExactConfidence, raw), true
		}
		if !strings.Contains(padded, " "+p.text+" ") {
			continue
		}
		if best == nil || len(p.text) > len(best.text) {
			best = p
		}
	}
	if best == nil {
		return Command{}, false
	}

	coverage := float64(len(best.text)) / float64(len(normalized))
	confidence := in.thresholds.ContainsFloor + in.thresholds.ContainsSpan*coverage
	if ceiling := in.thresholds.ContainsFloor + in.thresholds.ContainsSpan; confidence >= ceiling {
		confidence = ceiling - 0.001
	}
	return build(best.def, confidence, raw), true
}

// matchFuzzy accepts the phrase whose words best survive typos.
func (in *Interpreter) matchFuzzy(normalized, raw string) (Command, bool) {
	words := strings.Fields(normalized)

	bestScore := 0.0
	var best *phrase
	for i := range in.phrases {
		p := &in.phrases[i]
		score, ok := in.fuzzyScore(words, p.words)
		if !ok {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = p
		}
	}
	if best == nil {
		return Command{}, false
	}

	confidence := in.thresholds.FuzzyFloor + in.thresholds.FuzzySpan*bestScore
	return build(best.def, confidence, raw), true
}

// fuzzyScore returns ratio*meanSimilarity in (0,1] when the phrase is a candidate.
func (in *Interpreter) fuzzyScore(utteranceWords, phraseWords []string) (float64, bool) {
	match := fuzzy.MatchWords(utteranceWords, phraseWords, in.thresholds.WordSimilarity)
	ratio := match.Ratio()
	if match.Matched == 0 || ratio < in.thresholds.MatchRatio {
		return 0, false
	}
	return ratio * match.MeanSimilarity, true
}

// Suggestion is one alternative phrasing for an utterance.
type Suggestion struct {
	Original   string  `json:"original"`
	Suggested  string  `json:"suggested"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
}

// Suggest ranks canonical phrases that resemble the utterance.
func (in *Interpreter) Suggest(utterance string, limit int) []Suggestion {
	normalized := strings.ToLower(strings.Join(strings.Fields(utterance), " "))
	if normalized == "" || limit <= 0 {
		return []Suggestion{}
	}
	words := strings.Fields(normalized)

	type ranked struct {
		suggestion Suggestion
		order      int
	}
	index := make(map[string]int)
	candidates := make([]ranked, 0)
	for i, p := range in.phrases {
		match := fuzzy.MatchWords(words, p.words, in.thresholds.WordSimilarity)
		if match.Matched == 0 {
			continue
		}
		score := roundTo(match.Ratio()*match.MeanSimilarity, 3)
		if at, ok := index[p.def.ID]; ok {
			if score > candidates[at].suggestion.Confidence {
				candidates[at].suggestion.Confidence = score
			}
			continue
		}
		index[p.def.ID] = len(candidates)
		candidates = append(candidates, ranked{
			suggestion: Suggestion{
				Original:   utterance,
				Suggested:  p.def.Primary(),
				Confidence: score,
				Category:   string(p.def.Category),
			},
			order: i,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].suggestion.Confidence == candidates[j].suggestion.Confidence {
			return candidates[i].order < candidates[j].order
		}
		return candidates[i].suggestion.Confidence > candidates[j].suggestion.Confidence
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Suggestion, len(candidates))
	for i, c := range candidates {
		out[i] = c.suggestion
	}
	return out
}

func build(def grammar.Definition, confidence float64, raw string) Command {
	cmd := Command{
		Action:     def.Action,
		Confidence: confidence,
		RawInput:   raw,
		CommandID:  def.ID,
	}
	if def.Action == grammar.ActionNavigate {
		cmd.Target = def.Target
	} else {
		cmd.Type = def.Target
	}
	return cmd
}

func unknown(raw string) Command {
	return Command{Action: grammar.ActionUnknown, Confidence: 0, RawInput: raw}
}

func roundTo(v float64, places int) float64 {
	scale := 1.0
	for range places {
		scale *= 10
	}
	return float64(int64(v*scale+0.5)) / scale
}
