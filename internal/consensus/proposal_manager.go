// Package consensus implements C9: collecting proposals for a task and
// applying a strategy chain to decide among them. It is grounded on the
// teacher's internal/supervisor/decision.go StandardDecisionEngine,
// whose staged ASSESS -> SELECT -> ESTIMATE analysis is generalized
// here into a try-next-on-failure strategy chain.
package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
)

// ProposalManager collects proposals for a task and lets callers wait
// for a target count (or a deadline) before running consensus.
type ProposalManager struct {
	mu        sync.Mutex
	proposals map[string][]model.Proposal // taskID -> proposals
	waiters   map[string][]chan struct{}
}

func NewProposalManager() *ProposalManager {
	return &ProposalManager{
		proposals: make(map[string][]model.Proposal),
		waiters:   make(map[string][]chan struct{}),
	}
}

// Submit records a proposal and wakes any waiters for its task.
func (m *ProposalManager) Submit(p model.Proposal) error {
	if err := p.Validate(); err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "submit proposal", err)
	}

	m.mu.Lock()
	m.proposals[p.TaskID] = append(m.proposals[p.TaskID], p)
	waiters := m.waiters[p.TaskID]
	delete(m.waiters, p.TaskID)
	m.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	return nil
}

// WaitFor blocks until at least minCount proposals have been submitted
// for taskID, the deadline elapses, or ctx is cancelled, then returns
// whatever has been collected so far.
func (m *ProposalManager) WaitFor(ctx context.Context, taskID string, minCount int, deadline time.Duration) ([]model.Proposal, error) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for {
		m.mu.Lock()
		current := m.proposals[taskID]
		if len(current) >= minCount {
			m.mu.Unlock()
			return current, nil
		}
		wake := make(chan struct{})
		m.waiters[taskID] = append(m.waiters[taskID], wake)
		m.mu.Unlock()

		select {
		case <-wake:
			continue
		case <-timer.C:
			m.mu.Lock()
			result := m.proposals[taskID]
			m.mu.Unlock()
			return result, nil
		case <-ctx.Done():
			return nil, orcerr.Wrap(orcerr.KindCancelled, "wait for proposals cancelled", ctx.Err()).WithTask(taskID)
		}
	}
}

// Proposals returns a snapshot of everything submitted for taskID.
func (m *ProposalManager) Proposals(taskID string) []model.Proposal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Proposal, len(m.proposals[taskID]))
	copy(out, m.proposals[taskID])
	return out
}

// Clear drops all collected proposals for taskID, e.g. once a Decision
// has been recorded.
func (m *ProposalManager) Clear(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.proposals, taskID)
}

func newID() string { return uuid.New().String() }
