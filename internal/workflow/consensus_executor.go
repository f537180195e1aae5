package workflow

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/CLIAIMONITOR/orchestrator/internal/consensus"
	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
)

// ConsensusExecutor fans a task out to every candidate agent in
// parallel, then runs the consensus module's strategy chain over the
// collected proposals to pick a winner.
type ConsensusExecutor struct {
	Limiter     *rate.Limiter
	MaxAttempts int
	Module      *consensus.ConsensusModule
}

func NewConsensusExecutor(limiter *rate.Limiter, maxAttempts int, module *consensus.ConsensusModule) *ConsensusExecutor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &ConsensusExecutor{Limiter: limiter, MaxAttempts: maxAttempts, Module: module}
}

func (e *ConsensusExecutor) Strategy() model.RoutingStrategy { return model.RoutingConsensus }

func (e *ConsensusExecutor) Execute(ctx context.Context, task model.Task, agents []string, invoke AgentInvoker) Outcome {
	parallel := &ParallelExecutor{Limiter: e.Limiter, MaxAttempts: e.MaxAttempts}
	fanOut := parallel.Execute(ctx, task, agents, invoke)
	if fanOut.Kind != OutcomeSuccess {
		return fanOut
	}

	decision, err := e.Module.Decide(task, fanOut.Proposals)
	if err != nil {
		if kind, ok := orcerr.KindOf(err); ok && kind == orcerr.KindConsensusStrategyFailed {
			return Outcome{Kind: OutcomeFailure, Proposals: fanOut.Proposals, Err: err}
		}
		return Outcome{Kind: OutcomeFailure, Proposals: fanOut.Proposals, Err: err}
	}

	return Outcome{Kind: OutcomeSuccess, Proposals: fanOut.Proposals, Decision: decision}
}
