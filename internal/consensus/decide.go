package consensus

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
)

// ConsensusModule drives the ordered VOTING -> REASONING_QUALITY ->
// CUSTOM strategy chain, isolating a single strategy's failure from the
// rest of the chain the same way StandardDecisionEngine.RequiresEscalation
// tried each rule in turn and returned on first match.
type ConsensusModule struct {
	chain []Strategy
	log   *logrus.Entry
}

func NewConsensusModule(chain ...Strategy) *ConsensusModule {
	return &ConsensusModule{chain: chain, log: logrus.WithField("component", "consensus")}
}

// Decide runs the strategy chain in order against proposals and returns
// the first strategy's winning Decision. If every strategy declines or
// fails, it returns an orcerr.KindConsensusStrategyFailed error.
func (c *ConsensusModule) Decide(task model.Task, proposals []model.Proposal) (*model.Decision, error) {
	if len(proposals) == 0 {
		return nil, orcerr.New(orcerr.KindConsensusStrategyFailed, "no proposals to decide over").WithTask(task.ID)
	}

	for _, strategy := range c.chain {
		decision, ok, err := strategy.Evaluate(task, proposals)
		if err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{
				"task_id": task.ID, "strategy": strategy.Name(),
			}).Warn("consensus strategy failed, trying next strategy")
			continue
		}
		if !ok {
			c.log.WithFields(logrus.Fields{
				"task_id": task.ID, "strategy": strategy.Name(),
			}).Debug("consensus strategy declined, trying next strategy")
			continue
		}
		decision.Rationale = strategy.Name() + ": " + decision.Rationale
		return decision, nil
	}

	return nil, orcerr.New(orcerr.KindConsensusStrategyFailed, "every consensus strategy declined or failed").WithTask(task.ID)
}

// NoProposalsDecision builds the Decision a caller should persist when
// no proposals were collected for a task before consensus ran: empty
// considered/selected, no winner, rationale "No proposals".
func NoProposalsDecision(task model.Task) *model.Decision {
	return &model.Decision{
		ID:         newID(),
		TaskID:     task.ID,
		Considered: []model.ProposalRef{},
		Selected:   []string{},
		Rationale:  "No proposals",
		DecidedAt:  time.Now().UTC(),
	}
}

func buildDecision(task model.Task, considered []model.Proposal, selected []model.Proposal, agreementRate float64, rationale string) *model.Decision {
	considerRefs := make([]model.ProposalRef, len(considered))
	for i, p := range considered {
		considerRefs[i] = model.ProposalRef{ID: p.ID, TokenUsage: p.TokenUsage}
	}
	selectedIDs := make([]string, len(selected))
	for i, p := range selected {
		selectedIDs[i] = p.ID
	}

	d := &model.Decision{
		ID:            newID(),
		TaskID:        task.ID,
		Considered:    considerRefs,
		Selected:      selectedIDs,
		AgreementRate: &agreementRate,
		Rationale:     rationale,
		DecidedAt:     time.Now().UTC(),
	}
	if len(selected) == 1 {
		d.WinnerProposalID = selected[0].ID
	}
	return d
}

func jsonKey(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
