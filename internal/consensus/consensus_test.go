package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
)

func proposal(id, taskID string, content model.Content) model.Proposal {
	return model.Proposal{
		ID:         id,
		TaskID:     taskID,
		AgentID:    "agent-" + id,
		Confidence: 0.5,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestProposalManager_SubmitAndWaitFor(t *testing.T) {
	m := NewProposalManager()
	require.NoError(t, m.Submit(proposal("p1", "task-1", "a")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = m.Submit(proposal("p2", "task-1", "b"))
		close(done)
	}()

	got, err := m.WaitFor(ctx, "task-1", 2, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	<-done
}

func TestProposalManager_WaitFor_DeadlineReturnsPartial(t *testing.T) {
	m := NewProposalManager()
	require.NoError(t, m.Submit(proposal("p1", "task-2", "a")))

	got, err := m.WaitFor(context.Background(), "task-2", 5, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestProposalManager_WaitFor_ContextCancelled(t *testing.T) {
	m := NewProposalManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.WaitFor(ctx, "task-3", 5, time.Second)
	require.Error(t, err)
	kind, ok := orcerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, orcerr.KindCancelled, kind)
}

func TestProposalManager_Submit_RejectsInvalid(t *testing.T) {
	m := NewProposalManager()
	err := m.Submit(model.Proposal{})
	assert.Error(t, err)
}

func TestProposalManager_Clear(t *testing.T) {
	m := NewProposalManager()
	require.NoError(t, m.Submit(proposal("p1", "task-4", "a")))
	m.Clear("task-4")
	assert.Empty(t, m.Proposals("task-4"))
}

func TestVotingStrategy_SelectsMajority(t *testing.T) {
	s := VotingStrategy{Threshold: 0.5}
	p1 := proposal("p1", "t1", "yes")
	p1.Confidence = 0.6
	p2 := proposal("p2", "t1", "yes")
	p2.Confidence = 0.9
	p3 := proposal("p3", "t1", "no")
	p3.Confidence = 0.7

	decision, ok, err := s.Evaluate(model.Task{ID: "t1"}, []model.Proposal{p1, p2, p3})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"p2"}, decision.Selected)
	assert.Equal(t, "p2", decision.WinnerProposalID)
}

func TestVotingStrategy_DeclinesBelowThreshold(t *testing.T) {
	s := VotingStrategy{Threshold: 0.9}
	proposals := []model.Proposal{
		proposal("p1", "t1", "yes"),
		proposal("p2", "t1", "no"),
	}
	_, ok, err := s.Evaluate(model.Task{ID: "t1"}, proposals)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVotingStrategy_TopTie_Declines(t *testing.T) {
	s := VotingStrategy{Threshold: 0.5}
	proposals := []model.Proposal{
		proposal("p1", "t1", "yes"),
		proposal("p2", "t1", "yes"),
		proposal("p3", "t1", "no"),
		proposal("p4", "t1", "no"),
	}
	_, ok, err := s.Evaluate(model.Task{ID: "t1"}, proposals)
	require.NoError(t, err)
	assert.False(t, ok, "two groups tied for the largest share must decline even though the tied share meets the threshold")
}

func TestVotingStrategy_SingleProposalAlwaysMeetsThreshold(t *testing.T) {
	s := VotingStrategy{Threshold: 0.75}
	proposals := []model.Proposal{proposal("p1", "t1", "only")}

	decision, ok, err := s.Evaluate(model.Task{ID: "t1"}, proposals)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p1", decision.WinnerProposalID)
}

func TestReasoningQualityStrategy_PicksStructuredAnswerOverShortHighConfidenceOne(t *testing.T) {
	s := ReasoningQualityStrategy{CorrectnessWeight: 0.5, ClarityWeight: 0.25, EvidenceWeight: 0.25, MinScore: 0}

	structured := proposal("b1", "t1", map[string]interface{}{
		"steps": []interface{}{"identify the risk", "design mitigation", "review with team"},
		"pros":  []interface{}{"fast to ship", "low cost"},
		"cons":  []interface{}{"adds a dependency"},
		"risks": []interface{}{"could regress the cache"},
	})
	structured.Confidence = 0.6

	short := proposal("b2", "t1", "short")
	short.Confidence = 0.9

	decision, ok, err := s.Evaluate(model.Task{ID: "t1"}, []model.Proposal{structured, short})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b1", decision.WinnerProposalID)
}

func TestReasoningQualityStrategy_DeclinesBelowMinScore(t *testing.T) {
	s := ReasoningQualityStrategy{CorrectnessWeight: 0.5, ClarityWeight: 0.25, EvidenceWeight: 0.25, MinScore: 0.99}
	proposals := []model.Proposal{proposal("p1", "t1", "a"), proposal("p2", "t1", "b")}

	_, ok, err := s.Evaluate(model.Task{ID: "t1"}, proposals)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenOptimizationStrategy_PicksCheapestAmongAboveMedianConfidence(t *testing.T) {
	s := TokenOptimizationStrategy{}
	expensive := proposal("p1", "t1", "a")
	expensive.Confidence = 0.9
	expensive.TokenUsage = model.TokenUsage{In: 100}
	cheapButLowConfidence := proposal("p2", "t1", "b")
	cheapButLowConfidence.Confidence = 0.5
	cheapButLowConfidence.TokenUsage = model.TokenUsage{In: 10}
	cheapAndHighConfidence := proposal("p3", "t1", "c")
	cheapAndHighConfidence.Confidence = 0.9
	cheapAndHighConfidence.TokenUsage = model.TokenUsage{In: 50}

	decision, ok, err := s.Evaluate(model.Task{ID: "t1"}, []model.Proposal{expensive, cheapButLowConfidence, cheapAndHighConfidence})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p3", decision.WinnerProposalID)
}

func TestTokenOptimizationStrategy_TieBreaksByConfidenceThenID(t *testing.T) {
	s := TokenOptimizationStrategy{}
	now := time.Now().UTC()
	b := model.Proposal{ID: "b", TaskID: "t1", AgentID: "agent-b", Content: "x", Confidence: 0.9, TokenUsage: model.TokenUsage{In: 10}, CreatedAt: now}
	a := model.Proposal{ID: "a", TaskID: "t1", AgentID: "agent-a", Content: "y", Confidence: 0.9, TokenUsage: model.TokenUsage{In: 10}, CreatedAt: now}
	lowConfidence := model.Proposal{ID: "c", TaskID: "t1", AgentID: "agent-c", Content: "z", Confidence: 0.1, TokenUsage: model.TokenUsage{In: 5}, CreatedAt: now}

	decision, ok, err := s.Evaluate(model.Task{ID: "t1"}, []model.Proposal{b, a, lowConfidence})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", decision.WinnerProposalID)
}

func TestCustomStrategy_WrapsFunction(t *testing.T) {
	called := false
	s := CustomStrategy{
		StrategyName: "CUSTOM",
		Fn: func(task model.Task, proposals []model.Proposal) (*model.Decision, bool, error) {
			called = true
			return buildDecision(task, proposals, proposals[:1], 1, "custom pick"), true, nil
		},
	}
	decision, ok, err := s.Evaluate(model.Task{ID: "t1"}, []model.Proposal{proposal("p1", "t1", "a")})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, called)
	assert.Equal(t, "p1", decision.WinnerProposalID)
}

func TestConsensusModule_Decide_NoProposals(t *testing.T) {
	m := NewConsensusModule(VotingStrategy{Threshold: 0.5})
	_, err := m.Decide(model.Task{ID: "t1"}, nil)
	require.Error(t, err)
	kind, ok := orcerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, orcerr.KindConsensusStrategyFailed, kind)
}

func TestConsensusModule_Decide_FallsThroughToNextStrategy(t *testing.T) {
	m := NewConsensusModule(
		VotingStrategy{Threshold: 0.99},
		ReasoningQualityStrategy{CorrectnessWeight: 1, MinScore: 0},
	)
	proposals := []model.Proposal{proposal("p1", "t1", "a"), proposal("p2", "t1", "b")}

	decision, err := m.Decide(model.Task{ID: "t1"}, proposals)
	require.NoError(t, err)
	assert.Contains(t, decision.Rationale, "REASONING_QUALITY")
}

func TestConsensusModule_Decide_EveryStrategyDeclines(t *testing.T) {
	m := NewConsensusModule(VotingStrategy{Threshold: 0.99})
	proposals := []model.Proposal{proposal("p1", "t1", "a"), proposal("p2", "t1", "b")}

	_, err := m.Decide(model.Task{ID: "t1"}, proposals)
	require.Error(t, err)
	kind, ok := orcerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, orcerr.KindConsensusStrategyFailed, kind)
}

func TestNoProposalsDecision(t *testing.T) {
	d := NoProposalsDecision(model.Task{ID: "t1"})
	assert.Equal(t, "t1", d.TaskID)
	assert.Empty(t, d.Considered)
	assert.Empty(t, d.Selected)
	assert.Equal(t, "No proposals", d.Rationale)
	assert.False(t, d.ConsensusAchieved())
}
