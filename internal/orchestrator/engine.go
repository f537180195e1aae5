// Package orchestrator implements C8: the top-level engine composing
// the event bus, state machine, agent registry, routing, workflow
// executors, and consensus module behind a per-Task execution mutex.
// It generalizes the teacher's internal/captain/captain.go (the
// top-level orchestrator wiring spawner/memory/decision engine behind
// one facade) and internal/server/server.go's wire-everything-together
// New(...) constructor shape; the per-Task mutex mirrors
// internal/agents/spawner.go's spawnMu.
package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/CLIAIMONITOR/orchestrator/internal/consensus"
	"github.com/CLIAIMONITOR/orchestrator/internal/events"
	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
	"github.com/CLIAIMONITOR/orchestrator/internal/registry"
	"github.com/CLIAIMONITOR/orchestrator/internal/repository"
	"github.com/CLIAIMONITOR/orchestrator/internal/routing"
	"github.com/CLIAIMONITOR/orchestrator/internal/statemachine"
	"github.com/CLIAIMONITOR/orchestrator/internal/workflow"
)

// Engine is the orchestration core.
type Engine struct {
	tasks         *repository.TaskRepository
	proposalsRepo *repository.ProposalRepository
	decisionsRepo *repository.DecisionRepository
	snapshots     *repository.ContextSnapshotRepository

	sm        *statemachine.StateMachine
	reg       *registry.Registry
	workflows *workflow.Registry
	proposals *consensus.ProposalManager
	module    *consensus.ConsensusModule
	bus       *events.Bus
	invoke    workflow.AgentInvoker

	consensusWaitFor time.Duration

	mu          sync.Mutex
	taskLocks   map[string]*sync.Mutex
	checkpoints map[string]map[string]string

	shutdownOnce sync.Once
	cancelAll    context.CancelFunc
	runCtx       context.Context

	log *logrus.Entry
}

// Deps bundles the Engine's collaborators, composed once at process
// start and otherwise unexported to keep the constructor call site
// readable.
type Deps struct {
	Tasks         *repository.TaskRepository
	ProposalsRepo *repository.ProposalRepository
	DecisionsRepo *repository.DecisionRepository
	Snapshots     *repository.ContextSnapshotRepository
	StateMachine  *statemachine.StateMachine
	Registry      *registry.Registry
	Workflows     *workflow.Registry
	Proposals     *consensus.ProposalManager
	Consensus     *consensus.ConsensusModule
	Bus           *events.Bus
	Invoke        workflow.AgentInvoker

	// ConsensusWaitFor bounds how long runConsensus waits for at least
	// one proposal before deciding over whatever has arrived so far.
	ConsensusWaitFor time.Duration
}

func New(deps Deps) *Engine {
	runCtx, cancel := context.WithCancel(context.Background())
	return &Engine{
		tasks:            deps.Tasks,
		proposalsRepo:    deps.ProposalsRepo,
		decisionsRepo:    deps.DecisionsRepo,
		snapshots:        deps.Snapshots,
		sm:               deps.StateMachine,
		reg:              deps.Registry,
		workflows:        deps.Workflows,
		proposals:        deps.Proposals,
		module:           deps.Consensus,
		bus:              deps.Bus,
		invoke:           deps.Invoke,
		consensusWaitFor: deps.ConsensusWaitFor,
		taskLocks:        make(map[string]*sync.Mutex),
		checkpoints:      make(map[string]map[string]string),
		cancelAll:        cancel,
		runCtx:           runCtx,
		log:              logrus.WithField("component", "orchestrator"),
	}
}

// RegisterWorkflow adds an executor to the engine's workflow registry
// after construction.
func (e *Engine) RegisterWorkflow(ex workflow.Executor) {
	e.workflows.Register(ex)
}

// Events returns the engine's shared event bus.
func (e *Engine) Events() *events.Bus { return e.bus }

func (e *Engine) lockFor(taskID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.taskLocks[taskID]
	if !ok {
		l = &sync.Mutex{}
		e.taskLocks[taskID] = l
	}
	return l
}

// ExecuteTask drives task through routing, the matching workflow
// executor, and (when applicable) consensus, to a terminal status; a
// WAITING outcome instead returns early, leaving the task non-terminal
// with its checkpoint stored for ResumeTask. At most one executeTask/resumeTask call may run concurrently for a
// given TaskId; a concurrent call fails fast with concurrent_execution.
func (e *Engine) ExecuteTask(ctx context.Context, task model.Task, directive model.UserDirective) WorkflowResult {
	lock := e.lockFor(task.ID)
	if !lock.TryLock() {
		return e.concurrentExecutionResult(task.ID)
	}
	defer lock.Unlock()

	return e.runTask(ctx, task, directive, nil)
}

// ResumeTask re-enters the workflow for task.ID using the checkpoint
// recorded by a prior WAITING outcome (if any), honoring the same
// per-Task mutex as ExecuteTask.
func (e *Engine) ResumeTask(ctx context.Context, taskID string, checkpointID string) WorkflowResult {
	lock := e.lockFor(taskID)
	if !lock.TryLock() {
		return e.concurrentExecutionResult(taskID)
	}
	defer lock.Unlock()

	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return WorkflowResult{TaskID: taskID, Status: model.StatusFailed, Err: err, ErrorKind: kindOrDefault(err)}
	}

	e.mu.Lock()
	checkpoint := e.checkpoints[taskID]
	e.mu.Unlock()

	return e.runTask(ctx, *task, model.UserDirective{}, checkpoint)
}

func (e *Engine) concurrentExecutionResult(taskID string) WorkflowResult {
	err := orcerr.New(orcerr.KindConcurrentExecution, "task execution already in progress").WithTask(taskID)
	return WorkflowResult{TaskID: taskID, Status: model.StatusFailed, ErrorKind: orcerr.KindConcurrentExecution, Err: err}
}

// runTask implements the execution sequence from spec §4.7: insert or
// refresh the task row, route, transition to IN_PROGRESS, execute (or
// resume from checkpoint), decide consensus when applicable, and
// transition to a terminal status, emitting events at each step.
func (e *Engine) runTask(ctx context.Context, task model.Task, directive model.UserDirective, checkpoint map[string]string) WorkflowResult {
	existing, err := e.tasks.Get(ctx, task.ID)
	switch {
	case err == nil:
		task = *existing
	default:
		if kind, ok := orcerr.KindOf(err); !ok || kind != orcerr.KindNotFound {
			return WorkflowResult{TaskID: task.ID, Status: model.StatusFailed, Err: err, ErrorKind: kindOrDefault(err)}
		}
		if task.Status == "" {
			task.Status = model.StatusPending
		}
		if createErr := e.tasks.Create(ctx, &task); createErr != nil {
			return WorkflowResult{TaskID: task.ID, Status: model.StatusFailed, Err: createErr, ErrorKind: kindOrDefault(createErr)}
		}
		e.publish(events.TaskCreated, events.PriorityNormal, task.ID, map[string]interface{}{"task_id": task.ID, "type": string(task.Type)})
	}

	if task.Status.IsTerminal() {
		return e.currentResult(ctx, task)
	}

	decision := routing.Route(task, directive, func(capability string) []model.Agent { return e.reg.ByCapability(capability) })

	if task.Status == model.StatusPending {
		if err := e.sm.Transition(ctx, task.ID, model.StatusInProgress, map[string]string{"routing_strategy": string(decision.Strategy)}); err != nil {
			return e.terminalFailure(ctx, task, err)
		}
	}
	task.Routing = decision.Strategy

	e.publish(events.WorkflowStarted, events.PriorityNormal, task.ID, map[string]interface{}{"task_id": task.ID, "strategy": string(decision.Strategy)})

	executor, err := e.workflows.Get(decision.Strategy)
	if err != nil {
		return e.terminalFailure(ctx, task, err)
	}

	agents := decision.CandidateAgents
	if checkpoint != nil {
		agents = e.applyCheckpoint(decision.Strategy, agents, checkpoint)
	}

	outcome := executor.Execute(ctx, task, agents, e.invoke)

	switch outcome.Kind {
	case workflow.OutcomeWaiting:
		e.mu.Lock()
		e.checkpoints[task.ID] = outcome.Checkpoint
		e.mu.Unlock()
		return WorkflowResult{TaskID: task.ID, Status: task.Status, Proposals: outcome.Proposals, ErrorKind: kindOrDefault(outcome.Err), Err: outcome.Err}

	case workflow.OutcomeFailure:
		e.mu.Lock()
		e.checkpoints[task.ID] = outcome.Checkpoint
		e.mu.Unlock()
		return e.terminalFailure(ctx, task, outcome.Err)
	}

	e.persistProposals(ctx, outcome.Proposals)

	finalDecision := outcome.Decision
	if finalDecision == nil {
		finalDecision, err = e.decide(ctx, task, outcome.Proposals)
		if err != nil {
			return e.terminalFailure(ctx, task, err)
		}
	}
	if finalDecision != nil {
		finalDecision.TaskID = task.ID
		if finalDecision.ID == "" {
			finalDecision.ID = uuid.New().String()
		}
		if err := e.decisionsRepo.Create(ctx, finalDecision); err != nil {
			e.log.WithError(err).WithField("task_id", task.ID).Warn("failed to persist decision")
		}
	}

	e.mu.Lock()
	delete(e.checkpoints, task.ID)
	e.mu.Unlock()
	e.proposals.Clear(task.ID)

	if err := e.sm.Transition(ctx, task.ID, model.StatusCompleted, nil); err != nil {
		return e.terminalFailure(ctx, task, err)
	}

	e.publish(events.WorkflowCompleted, events.PriorityNormal, task.ID, map[string]interface{}{"task_id": task.ID, "status": string(model.StatusCompleted)})
	e.publish(events.TaskCompleted, events.PriorityNormal, task.ID, map[string]interface{}{"task_id": task.ID})

	return WorkflowResult{TaskID: task.ID, Status: model.StatusCompleted, Proposals: outcome.Proposals, Decision: finalDecision}
}

// applyCheckpoint narrows the candidate agent list for a resumed
// SEQUENTIAL workflow to the agents not yet invoked; other strategies
// ignore checkpoint state and simply re-run from the top.
func (e *Engine) applyCheckpoint(strategy model.RoutingStrategy, agents []string, checkpoint map[string]string) []string {
	if strategy != model.RoutingSequential {
		return agents
	}
	raw, ok := checkpoint["resume_from_index"]
	if !ok {
		return agents
	}
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 || idx >= len(agents) {
		return agents
	}
	return agents[idx:]
}

func (e *Engine) terminalFailure(ctx context.Context, task model.Task, cause error) WorkflowResult {
	kind := kindOrDefault(cause)
	if task.Status != model.StatusCompleted && task.Status != model.StatusFailed {
		_ = e.sm.Transition(ctx, task.ID, model.StatusFailed, map[string]string{"error_kind": string(kind)})
	}
	e.publish(events.WorkflowCompleted, events.PriorityHigh, task.ID, map[string]interface{}{
		"task_id": task.ID, "status": string(model.StatusFailed), "error_kind": string(kind),
	})
	return WorkflowResult{TaskID: task.ID, Status: model.StatusFailed, ErrorKind: kind, Err: cause}
}

func (e *Engine) currentResult(ctx context.Context, task model.Task) WorkflowResult {
	decisions, err := e.decisionsRepo.ListByTask(ctx, task.ID)
	var decision *model.Decision
	if err == nil && len(decisions) > 0 {
		decision = decisions[len(decisions)-1]
	}
	return WorkflowResult{TaskID: task.ID, Status: task.Status, Decision: decision}
}

func (e *Engine) persistProposals(ctx context.Context, proposals []model.Proposal) {
	for i := range proposals {
		p := proposals[i]
		_ = e.proposals.Submit(p)
		if err := e.proposalsRepo.Create(ctx, &p); err != nil {
			e.log.WithError(err).WithField("proposal_id", p.ID).Warn("failed to persist proposal")
		}
	}
}

// decide runs the consensus strategy chain over proposals, building
// the spec's "no proposals" Decision when the workflow produced none.
func (e *Engine) decide(ctx context.Context, task model.Task, proposals []model.Proposal) (*model.Decision, error) {
	if len(proposals) == 0 {
		return consensus.NoProposalsDecision(task), nil
	}
	decision, err := e.module.Decide(task, proposals)
	if err != nil {
		if kind, ok := orcerr.KindOf(err); ok && kind == orcerr.KindConsensusStrategyFailed {
			return consensus.NoProposalsDecision(task), nil
		}
		return nil, err
	}
	return decision, nil
}

// RunConsensus waits up to the configured deadline for at least one
// proposal, loads every proposal persisted for taskID, and runs the
// consensus strategy chain over them, persisting the resulting
// Decision.
func (e *Engine) RunConsensus(ctx context.Context, taskID string) (*model.Decision, error) {
	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if e.consensusWaitFor > 0 {
		if _, err := e.proposals.WaitFor(ctx, taskID, 1, e.consensusWaitFor); err != nil {
			return nil, err
		}
	}

	proposals, err := e.proposalsRepo.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	plain := make([]model.Proposal, len(proposals))
	for i, p := range proposals {
		plain[i] = *p
	}

	decision, err := e.decide(ctx, *task, plain)
	if err != nil {
		return nil, err
	}
	if err := e.decisionsRepo.Create(ctx, decision); err != nil {
		return nil, err
	}
	return decision, nil
}

// GetWorkflowState reports the task's current status and any pending
// resume checkpoint for strategy.
func (e *Engine) GetWorkflowState(ctx context.Context, taskID string, strategy model.RoutingStrategy) (model.TaskStatus, map[string]string, error) {
	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return "", nil, err
	}
	e.mu.Lock()
	checkpoint := e.checkpoints[taskID]
	e.mu.Unlock()
	return task.Status, checkpoint, nil
}

// GetStateHistory returns the append-only transition history for taskID.
func (e *Engine) GetStateHistory(ctx context.Context, taskID string) ([]model.TransitionRecord, error) {
	return e.sm.History(ctx, taskID)
}

// GetTaskContext returns the most recent context snapshot for taskID.
func (e *Engine) GetTaskContext(ctx context.Context, taskID string) (*model.ContextSnapshot, error) {
	return e.snapshots.Latest(ctx, taskID)
}

// UpdateTaskContext records a new context snapshot for taskID.
func (e *Engine) UpdateTaskContext(ctx context.Context, taskID, content string) (*model.ContextSnapshot, error) {
	snap := &model.ContextSnapshot{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.snapshots.Create(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (e *Engine) publish(eventType events.Type, priority int, target string, payload map[string]interface{}) {
	e.bus.Publish(events.New(eventType, "orchestrator", target, priority, payload))
}

func kindOrDefault(err error) orcerr.Kind {
	if err == nil {
		return ""
	}
	if kind, ok := orcerr.KindOf(err); ok {
		return kind
	}
	return orcerr.KindIOTransient
}

// Shutdown cancels all in-flight executions cooperatively, waits for
// per-task mutexes to drain within a bounded grace period, and closes
// the event bus.
func (e *Engine) Shutdown(grace time.Duration) {
	e.shutdownOnce.Do(func() {
		e.cancelAll()

		deadline := time.Now().Add(grace)
		for {
			if e.allLocksFree() || time.Now().After(deadline) {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}

		e.bus.Shutdown()
	})
}

func (e *Engine) allLocksFree() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range e.taskLocks {
		if !l.TryLock() {
			return false
		}
		l.Unlock()
	}
	return true
}
