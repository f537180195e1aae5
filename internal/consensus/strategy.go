package consensus

import (
	"sort"
	"strings"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
)

// Strategy evaluates a set of proposals and either returns a winning
// decision or declines (ok=false) without error, letting the chain try
// the next strategy. A non-nil error means the strategy itself failed
// (e.g. a malformed rubric weight) and is isolated from the rest of the
// chain — it never aborts the decide() call.
type Strategy interface {
	Name() string
	Evaluate(task model.Task, proposals []model.Proposal) (decision *model.Decision, ok bool, err error)
}

// VotingStrategy selects the proposal content that the largest cluster
// of proposals agree on (by exact Content equality), winning only when
// the agreement rate clears the configured threshold and no other
// group ties for the top spot.
type VotingStrategy struct {
	Threshold float64 // e.g. 0.75 = spec default
}

func (s VotingStrategy) Name() string { return "VOTING" }

func (s VotingStrategy) Evaluate(task model.Task, proposals []model.Proposal) (*model.Decision, bool, error) {
	if len(proposals) == 0 {
		return nil, false, nil
	}

	groups := make(map[string][]model.Proposal)
	for _, p := range proposals {
		key := contentKey(p.Content)
		groups[key] = append(groups[key], p)
	}

	maxSize := 0
	for _, g := range groups {
		if len(g) > maxSize {
			maxSize = len(g)
		}
	}

	var topGroups [][]model.Proposal
	for _, g := range groups {
		if len(g) == maxSize {
			topGroups = append(topGroups, g)
		}
	}

	rate := float64(maxSize) / float64(len(proposals))
	if rate < s.Threshold {
		// Below threshold — decline regardless of any tie at the top.
		return nil, false, nil
	}
	if len(topGroups) > 1 {
		// Tie detected: two or more groups share the largest size at or
		// above threshold, so there is no unambiguous majority.
		return nil, false, nil
	}

	winner := highestConfidenceWinner(topGroups[0])
	return buildDecision(task, proposals, []model.Proposal{winner}, rate, "majority agreement via voting"), true, nil
}

// highestConfidenceWinner picks the single winner from a tied group of
// proposals: highest Confidence, ties broken by earliest CreatedAt,
// then lexicographically smallest ID — deterministic per spec §4.8.
func highestConfidenceWinner(group []model.Proposal) model.Proposal {
	winner := group[0]
	for _, p := range group[1:] {
		if isBetterWinner(p, winner) {
			winner = p
		}
	}
	return winner
}

func isBetterWinner(candidate, current model.Proposal) bool {
	if candidate.Confidence != current.Confidence {
		return candidate.Confidence > current.Confidence
	}
	if !candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.CreatedAt.Before(current.CreatedAt)
	}
	return candidate.ID < current.ID
}

// ReasoningQualityStrategy scores each proposal by a rubric computed
// from the shape of its Content — length and the presence of
// structured reasoning fields ("steps", "pros", "cons", "risks"),
// whether those appear as map keys or as words within free-form text —
// combined with the proposal's own Confidence, and selects the single
// highest scorer.
type ReasoningQualityStrategy struct {
	CorrectnessWeight float64 // weight on presence of all four structured fields
	ClarityWeight     float64 // weight on content length (a terse answer scores low)
	EvidenceWeight    float64 // weight on presence of "pros"/"cons"/"risks" specifically
	MinScore          float64
}

// structuredFields are the field names spec §4.8 names as evidence of
// a reasoned-through answer.
var structuredFields = []string{"steps", "pros", "cons", "risks"}

func (s ReasoningQualityStrategy) Name() string { return "REASONING_QUALITY" }

func (s ReasoningQualityStrategy) Evaluate(task model.Task, proposals []model.Proposal) (*model.Decision, bool, error) {
	if len(proposals) == 0 {
		return nil, false, nil
	}

	var best *model.Proposal
	bestScore := -1.0
	for i := range proposals {
		p := &proposals[i]
		score := s.score(*p)
		if score > bestScore {
			bestScore = score
			best = p
		}
	}

	if best == nil || bestScore < s.MinScore {
		return nil, false, nil
	}

	return buildDecision(task, proposals, []model.Proposal{*best}, bestScore, "highest weighted reasoning-quality score"), true, nil
}

// contentWeight/confidenceWeight split a proposal's final score between
// what it actually wrote (contentScore) and its self-reported
// confidence, with content dominant — a terse, low-effort answer
// should not out-rank a structured one just because it claims higher
// confidence.
const (
	reasoningContentWeight    = 0.8
	reasoningConfidenceWeight = 0.2
)

func (s ReasoningQualityStrategy) score(p model.Proposal) float64 {
	found := structuredFieldsPresent(p.Content)

	correctness := float64(len(found)) / float64(len(structuredFields))

	evidenceHits := 0
	for _, key := range []string{"pros", "cons", "risks"} {
		if found[key] {
			evidenceHits++
		}
	}
	evidence := float64(evidenceHits) / 3.0

	clarity := lengthScore(p.Content)

	contentScore := correctness*s.CorrectnessWeight + clarity*s.ClarityWeight + evidence*s.EvidenceWeight
	if contentScore > 1 {
		contentScore = 1
	}

	return contentScore*reasoningContentWeight + p.Confidence*reasoningConfidenceWeight
}

// structuredFieldsPresent walks a Content tree and reports which of
// structuredFields appear, either as a map key or as a word inside a
// string leaf (both cases compared case-insensitively).
func structuredFieldsPresent(c model.Content) map[string]bool {
	found := make(map[string]bool, len(structuredFields))
	var walk func(node interface{})
	walk = func(node interface{}) {
		switch v := node.(type) {
		case map[string]interface{}:
			for k, val := range v {
				markIfStructured(found, k)
				walk(val)
			}
		case []interface{}:
			for _, elem := range v {
				walk(elem)
			}
		case string:
			lower := strings.ToLower(v)
			for _, key := range structuredFields {
				if strings.Contains(lower, key) {
					found[key] = true
				}
			}
		}
	}
	walk(c)
	return found
}

func markIfStructured(found map[string]bool, key string) {
	lower := strings.ToLower(key)
	for _, field := range structuredFields {
		if lower == field {
			found[field] = true
		}
	}
}

// lengthScore saturates at contentLengthCeiling words so a thorough
// answer maxes out rather than rewarding unbounded verbosity.
const contentLengthCeiling = 50.0

func lengthScore(c model.Content) float64 {
	score := float64(contentWordCount(c)) / contentLengthCeiling
	if score > 1 {
		return 1
	}
	return score
}

func contentWordCount(c interface{}) int {
	switch v := c.(type) {
	case string:
		return len(strings.Fields(v))
	case map[string]interface{}:
		total := 0
		for _, val := range v {
			total += contentWordCount(val)
		}
		return total
	case []interface{}:
		total := 0
		for _, elem := range v {
			total += contentWordCount(elem)
		}
		return total
	default:
		return 0
	}
}

// TokenOptimizationStrategy is the CUSTOM default: among proposals
// whose confidence is at or above the median confidence, it picks the
// one minimizing TokenUsage.Total(), breaking ties by higher
// confidence and then by the same deterministic (createdAt, id)
// tie-break VotingStrategy uses.
type TokenOptimizationStrategy struct{}

func (s TokenOptimizationStrategy) Name() string { return "CUSTOM" }

func (s TokenOptimizationStrategy) Evaluate(task model.Task, proposals []model.Proposal) (*model.Decision, bool, error) {
	if len(proposals) == 0 {
		return nil, false, nil
	}

	threshold := medianConfidence(proposals)
	var eligible []model.Proposal
	for _, p := range proposals {
		if p.Confidence >= threshold {
			eligible = append(eligible, p)
		}
	}

	winner := eligible[0]
	for _, p := range eligible[1:] {
		if isCheaperWinner(p, winner) {
			winner = p
		}
	}

	return buildDecision(task, proposals, []model.Proposal{winner}, threshold, "lowest token usage among above-median confidence"), true, nil
}

func isCheaperWinner(candidate, current model.Proposal) bool {
	ct, cc := candidate.TokenUsage.Total(), current.TokenUsage.Total()
	if ct != cc {
		return ct < cc
	}
	if candidate.Confidence != current.Confidence {
		return candidate.Confidence > current.Confidence
	}
	if !candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.CreatedAt.Before(current.CreatedAt)
	}
	return candidate.ID < current.ID
}

func medianConfidence(proposals []model.Proposal) float64 {
	values := make([]float64, len(proposals))
	for i, p := range proposals {
		values[i] = p.Confidence
	}
	sort.Float64s(values)

	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}

// CustomStrategy wraps an operator-supplied evaluation function,
// giving the chain an escape hatch for domain-specific tie-breaking
// rules that neither VOTING nor REASONING_QUALITY can express.
type CustomStrategy struct {
	StrategyName string
	Fn           func(task model.Task, proposals []model.Proposal) (*model.Decision, bool, error)
}

func (s CustomStrategy) Name() string { return s.StrategyName }

func (s CustomStrategy) Evaluate(task model.Task, proposals []model.Proposal) (*model.Decision, bool, error) {
	if s.Fn == nil {
		return nil, false, nil
	}
	return s.Fn(task, proposals)
}

func contentKey(content model.Content) string {
	switch v := content.(type) {
	case string:
		return v
	default:
		return jsonKey(v)
	}
}
