// Package workflow implements C7: one executor per RoutingStrategy,
// each producing a Success/Waiting/Failure Outcome. It is grounded on
// the teacher's internal/supervisor dispatch-then-report shape, with
// cooperative cancellation threaded through context.Context the way
// internal/bootstrap/state.go's ReconstructMemory did.
package workflow

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
)

// OutcomeKind is the three-way result a workflow executor reports.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "SUCCESS"
	OutcomeWaiting OutcomeKind = "WAITING"
	OutcomeFailure OutcomeKind = "FAILURE"
)

// Outcome is what an Executor returns after driving a Task to
// completion, a pause point, or a failure.
type Outcome struct {
	Kind       OutcomeKind
	Proposals  []model.Proposal
	Decision   *model.Decision
	Err        error
	Checkpoint map[string]string
}

// AgentInvoker dispatches a task to one agent and returns its proposal.
// Implementations live in the orchestrator, which owns the actual agent
// transport; workflow only depends on this narrow seam.
type AgentInvoker func(ctx context.Context, task model.Task, agentID string) (model.Proposal, error)

// Executor drives one Task through a single RoutingStrategy.
type Executor interface {
	Strategy() model.RoutingStrategy
	Execute(ctx context.Context, task model.Task, agents []string, invoke AgentInvoker) Outcome
}

// Registry maps a RoutingStrategy to its Executor.
type Registry struct {
	executors map[model.RoutingStrategy]Executor
}

func NewRegistry(executors ...Executor) *Registry {
	r := &Registry{executors: make(map[model.RoutingStrategy]Executor)}
	for _, e := range executors {
		r.executors[e.Strategy()] = e
	}
	return r
}

// Register adds or replaces the executor for its own Strategy(),
// letting the engine extend the registry after construction.
func (r *Registry) Register(e Executor) {
	r.executors[e.Strategy()] = e
}

func (r *Registry) Get(strategy model.RoutingStrategy) (Executor, error) {
	e, ok := r.executors[strategy]
	if !ok {
		return nil, orcerr.New(orcerr.KindNoWorkflowForStrategy, "no workflow executor registered for strategy "+string(strategy))
	}
	return e, nil
}

// retryInvoke wraps invoke with a bounded-backoff retry loop for
// agent_unavailable failures, using a token-bucket limiter so a flapping
// agent cannot starve the rest of the fleet's retry budget.
func retryInvoke(ctx context.Context, limiter *rate.Limiter, maxAttempts int, invoke AgentInvoker, task model.Task, agentID string) (model.Proposal, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return model.Proposal{}, orcerr.Wrap(orcerr.KindCancelled, "retry limiter wait cancelled", err)
			}
		}
		p, err := invoke(ctx, task, agentID)
		if err == nil {
			return p, nil
		}
		lastErr = err
		if !orcerr.Retryable(err) {
			return model.Proposal{}, err
		}
		select {
		case <-ctx.Done():
			return model.Proposal{}, orcerr.Wrap(orcerr.KindCancelled, "invoke retry cancelled", ctx.Err())
		case <-time.After(backoffDelay(attempt)):
		}
	}
	return model.Proposal{}, orcerr.Wrap(orcerr.KindAgentUnavailable, "agent unavailable after retries", lastErr).WithAgent(agentID)
}

func backoffDelay(attempt int) time.Duration {
	base := 50 * time.Millisecond
	delay := base << attempt
	if delay > 2*time.Second {
		delay = 2 * time.Second
	}
	return delay
}
