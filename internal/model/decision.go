package model

import "time"

// ProposalRef is the (id, token usage) slice of a Proposal that a
// Decision needs in order to compute token-savings accounting without
// holding the full proposal content.
type ProposalRef struct {
	ID         string     `json:"id"`
	TokenUsage TokenUsage `json:"token_usage"`
}

// Decision is the outcome of applying consensus over a Task's proposals.
type Decision struct {
	ID               string            `json:"id"`
	TaskID           string            `json:"task_id"`
	Considered       []ProposalRef     `json:"considered"`
	Selected         []string          `json:"selected"` // subset of considered ids
	WinnerProposalID string            `json:"winner_proposal_id,omitempty"`
	AgreementRate    *float64          `json:"agreement_rate,omitempty"`
	Rationale        string            `json:"rationale,omitempty"`
	DecidedAt        time.Time         `json:"decided_at"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// TokenSavingsAbsolute is max(0, Σconsidered.tokens − Σselected.tokens).
func (d Decision) TokenSavingsAbsolute() int64 {
	considered := d.sumConsidered()
	selected := d.sumSelected()
	savings := considered - selected
	if savings < 0 {
		return 0
	}
	return savings
}

// TokenSavingsPercent is savings/considered, or 0 when nothing was
// considered (avoids a division by zero).
func (d Decision) TokenSavingsPercent() float64 {
	considered := d.sumConsidered()
	if considered == 0 {
		return 0
	}
	return float64(d.TokenSavingsAbsolute()) / float64(considered)
}

func (d Decision) sumConsidered() int64 {
	var total int64
	for _, p := range d.Considered {
		total += p.TokenUsage.Total()
	}
	return total
}

func (d Decision) sumSelected() int64 {
	selected := make(map[string]bool, len(d.Selected))
	for _, id := range d.Selected {
		selected[id] = true
	}
	var total int64
	for _, p := range d.Considered {
		if selected[p.ID] {
			total += p.TokenUsage.Total()
		}
	}
	return total
}

// ConsensusAchieved reports whether any proposal was selected.
func (d Decision) ConsensusAchieved() bool {
	return len(d.Selected) > 0
}
