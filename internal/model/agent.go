package model

// AgentStatus is the Agent Registry's mutable state for an agent (C5).
type AgentStatus string

const (
	AgentOnline  AgentStatus = "ONLINE"
	AgentOffline AgentStatus = "OFFLINE"
	AgentBusy    AgentStatus = "BUSY"
)

// CapabilityScore pairs a capability with the agent's strength at it,
// used by routing to prefer the best-fit agent for a Task.
type CapabilityScore struct {
	Capability string `json:"capability"`
	Score      int    `json:"score"` // 0..100
}

// Agent is a read-mostly snapshot of a registered execution capability.
// AgentRegistry owns the only mutable copy; everything else reads a
// value copy returned by the registry.
type Agent struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	DisplayName  string             `json:"display_name"`
	Status       AgentStatus        `json:"status"`
	Capabilities []string           `json:"capabilities"`
	Strengths    []CapabilityScore  `json:"strengths"`
}

// HasCapability reports whether the agent declares the given capability.
func (a Agent) HasCapability(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// UserDirective captures parsed hints about how a submitter wants a Task
// routed, each with an independent confidence in [0,1].
type UserDirective struct {
	ForceConsensus         bool
	ForceConsensusConf     float64
	PreventConsensus       bool
	PreventConsensusConf   float64
	AssignToAgent          string
	AssignToAgentConf      float64
	AssignedAgents         []string
	IsEmergency            bool
}
