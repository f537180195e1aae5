package workflow

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
)

// ParallelExecutor fans a task out to every candidate agent
// concurrently and collects whatever proposals come back, leaving
// selection among them to a later consensus pass.
type ParallelExecutor struct {
	Limiter     *rate.Limiter
	MaxAttempts int
}

func NewParallelExecutor(limiter *rate.Limiter, maxAttempts int) *ParallelExecutor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &ParallelExecutor{Limiter: limiter, MaxAttempts: maxAttempts}
}

func (e *ParallelExecutor) Strategy() model.RoutingStrategy { return model.RoutingParallel }

func (e *ParallelExecutor) Execute(ctx context.Context, task model.Task, agents []string, invoke AgentInvoker) Outcome {
	if len(agents) == 0 {
		return Outcome{Kind: OutcomeFailure, Err: orcerr.New(orcerr.KindAgentUnavailable, "no candidate agents for parallel execution").WithTask(task.ID)}
	}

	var mu sync.Mutex
	var proposals []model.Proposal
	var errs []error

	var wg sync.WaitGroup
	for _, agentID := range agents {
		agentID := agentID
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := retryInvoke(ctx, e.Limiter, e.MaxAttempts, invoke, task, agentID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			proposals = append(proposals, p)
		}()
	}
	wg.Wait()

	if len(proposals) == 0 {
		return Outcome{Kind: OutcomeFailure, Err: orcerr.New(orcerr.KindAgentUnavailable, "every agent failed in parallel execution").WithTask(task.ID)}
	}

	return Outcome{Kind: OutcomeSuccess, Proposals: proposals}
}
