// Package statemachine implements the per-Task transition table and
// append-only history (C4). It generalizes the teacher's
// internal/tasks/types.go validTransitions map and TransitionTo method,
// adding linearizability per TaskId via a per-key mutex the way the
// teacher's internal/agents/spawner.go serializes spawn attempts with
// its own spawnMu.
package statemachine

import (
	"context"
	"sync"
	"time"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
	"github.com/CLIAIMONITOR/orchestrator/internal/repository"
)

// validTransitions is the closed transition table from spec §4.2.
var validTransitions = map[model.TaskStatus][]model.TaskStatus{
	model.StatusPending:      {model.StatusInProgress, model.StatusFailed},
	model.StatusInProgress:   {model.StatusWaitingInput, model.StatusCompleted, model.StatusFailed},
	model.StatusWaitingInput: {model.StatusInProgress, model.StatusFailed},
	model.StatusCompleted:    {},
	model.StatusFailed:       {},
}

func isValidTransition(from, to model.TaskStatus) bool {
	for _, candidate := range validTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// StateMachine drives Task status transitions with per-task
// linearizability and an append-only transition history.
type StateMachine struct {
	tasks *repository.TaskRepository

	keyMu sync.Mutex
	locks map[string]*sync.Mutex
}

func New(tasks *repository.TaskRepository) *StateMachine {
	return &StateMachine{
		tasks: tasks,
		locks: make(map[string]*sync.Mutex),
	}
}

func (sm *StateMachine) lockFor(taskID string) *sync.Mutex {
	sm.keyMu.Lock()
	defer sm.keyMu.Unlock()
	l, ok := sm.locks[taskID]
	if !ok {
		l = &sync.Mutex{}
		sm.locks[taskID] = l
	}
	return l
}

// Transition validates and applies a single status change for taskID,
// appending a TransitionRecord to its history. Concurrent calls for the
// same taskID are serialized; calls for different tasks proceed
// independently.
func (sm *StateMachine) Transition(ctx context.Context, taskID string, to model.TaskStatus, metadata map[string]string) error {
	lock := sm.lockFor(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := sm.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Status.IsTerminal() {
		return orcerr.New(orcerr.KindInvalidTransition, "task is in a terminal state").WithTask(taskID)
	}
	if !isValidTransition(task.Status, to) {
		return orcerr.New(orcerr.KindInvalidTransition, string(task.Status)+" -> "+string(to)+" is not permitted").WithTask(taskID)
	}

	now := time.Now().UTC()
	if err := sm.tasks.UpdateStatus(ctx, taskID, to, now); err != nil {
		return err
	}
	return sm.tasks.AppendTransition(ctx, taskID, model.TransitionRecord{
		From:     task.Status,
		To:       to,
		At:       now,
		Metadata: metadata,
	})
}

// History returns the append-only list of transitions for taskID, in
// the order they were applied.
func (sm *StateMachine) History(ctx context.Context, taskID string) ([]model.TransitionRecord, error) {
	return sm.tasks.History(ctx, taskID)
}
