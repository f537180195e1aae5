package workflow

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
)

// SoloExecutor dispatches to a single agent and reports its proposal
// directly as the decision, with no consensus pass.
type SoloExecutor struct {
	Limiter     *rate.Limiter
	MaxAttempts int
}

func NewSoloExecutor(limiter *rate.Limiter, maxAttempts int) *SoloExecutor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &SoloExecutor{Limiter: limiter, MaxAttempts: maxAttempts}
}

func (e *SoloExecutor) Strategy() model.RoutingStrategy { return model.RoutingSolo }

func (e *SoloExecutor) Execute(ctx context.Context, task model.Task, agents []string, invoke AgentInvoker) Outcome {
	if len(agents) == 0 {
		return Outcome{Kind: OutcomeFailure, Err: orcerr.New(orcerr.KindAgentUnavailable, "no candidate agent for solo execution").WithTask(task.ID)}
	}

	p, err := retryInvoke(ctx, e.Limiter, e.MaxAttempts, invoke, task, agents[0])
	if err != nil {
		if kind, ok := orcerr.KindOf(err); ok && kind == orcerr.KindCancelled {
			return Outcome{Kind: OutcomeWaiting, Err: err}
		}
		return Outcome{Kind: OutcomeFailure, Err: err}
	}

	return Outcome{
		Kind:      OutcomeSuccess,
		Proposals: []model.Proposal{p},
		Decision: &model.Decision{
			TaskID:           task.ID,
			Considered:       []model.ProposalRef{{ID: p.ID, TokenUsage: p.TokenUsage}},
			Selected:         []string{p.ID},
			WinnerProposalID: p.ID,
			Rationale:        "solo execution, single agent proposal accepted",
		},
	}
}
