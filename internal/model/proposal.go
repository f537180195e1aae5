package model

import (
	"fmt"
	"time"
)

// TokenUsage records input/output token counts charged to a Proposal.
type TokenUsage struct {
	In  int64 `json:"in"`
	Out int64 `json:"out"`
}

// Total is the sum of input and output tokens.
func (u TokenUsage) Total() int64 {
	return u.In + u.Out
}

// Content is the recursive tagged-variant tree an agent's output is
// represented as: null, bool, number, string, list, or string-keyed map.
// encoding/json already decodes JSON into exactly this shape (nil,
// bool, float64, string, []interface{}, map[string]interface{}), so no
// custom constructors are needed — only the structural predicate below.
type Content = interface{}

// ValidateContent is the pure structural predicate from spec §9: a
// Content value is valid iff every node it contains is one of the six
// permitted shapes, recursively.
func ValidateContent(c Content) error {
	switch v := c.(type) {
	case nil, bool, string, float64, int, int64:
		return nil
	case []interface{}:
		for i, elem := range v {
			if err := ValidateContent(elem); err != nil {
				return fmt.Errorf("list element %d: %w", i, err)
			}
		}
		return nil
	case map[string]interface{}:
		for k, elem := range v {
			if err := ValidateContent(elem); err != nil {
				return fmt.Errorf("map key %q: %w", k, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported content node type %T", c)
	}
}

// Proposal is a single agent's output for a Task.
type Proposal struct {
	ID         string            `json:"id"`
	TaskID     string            `json:"task_id"`
	AgentID    string            `json:"agent_id"`
	InputType  string            `json:"input_type"`
	Content    Content           `json:"content"`
	Confidence float64           `json:"confidence"` // [0,1]
	TokenUsage TokenUsage        `json:"token_usage"`
	CreatedAt  time.Time         `json:"created_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Validate enforces the Proposal invariants from spec §3.
func (p *Proposal) Validate() error {
	if p.ID == "" || p.TaskID == "" || p.AgentID == "" {
		return fmt.Errorf("proposal id, task id, and agent id must not be blank")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence must be in [0,1], got %f", p.Confidence)
	}
	if p.TokenUsage.In < 0 || p.TokenUsage.Out < 0 {
		return fmt.Errorf("token usage must not be negative")
	}
	return ValidateContent(p.Content)
}
