package workflow

import (
	"context"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
)

// SequentialExecutor drives agents one at a time in the order given,
// passing each proposal forward as checkpoint state so a later call can
// resume from wherever it left off if the workflow is interrupted.
type SequentialExecutor struct {
	Limiter     *rate.Limiter
	MaxAttempts int
}

func NewSequentialExecutor(limiter *rate.Limiter, maxAttempts int) *SequentialExecutor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &SequentialExecutor{Limiter: limiter, MaxAttempts: maxAttempts}
}

func (e *SequentialExecutor) Strategy() model.RoutingStrategy { return model.RoutingSequential }

func (e *SequentialExecutor) Execute(ctx context.Context, task model.Task, agents []string, invoke AgentInvoker) Outcome {
	if len(agents) == 0 {
		return Outcome{Kind: OutcomeFailure, Err: orcerr.New(orcerr.KindAgentUnavailable, "no candidate agents for sequential execution").WithTask(task.ID)}
	}

	var proposals []model.Proposal
	for i, agentID := range agents {
		select {
		case <-ctx.Done():
			return Outcome{
				Kind:       OutcomeWaiting,
				Proposals:  proposals,
				Checkpoint: map[string]string{"resume_from_index": strconv.Itoa(i)},
				Err:        orcerr.Wrap(orcerr.KindCancelled, "sequential execution cancelled", ctx.Err()),
			}
		default:
		}

		p, err := retryInvoke(ctx, e.Limiter, e.MaxAttempts, invoke, task, agentID)
		if err != nil {
			return Outcome{
				Kind:       OutcomeFailure,
				Proposals:  proposals,
				Checkpoint: map[string]string{"resume_from_index": strconv.Itoa(i)},
				Err:        err,
			}
		}
		proposals = append(proposals, p)
	}

	return Outcome{Kind: OutcomeSuccess, Proposals: proposals}
}
