package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
)

func TestClassifyDescription(t *testing.T) {
	cases := []struct {
		description string
		want        model.TaskType
	}{
		{"design the new schema interface", model.TaskArchitecture},
		{"investigate why latency regressed", model.TaskResearch},
		{"review and audit the PR", model.TaskReview},
		{"add regression test coverage", model.TaskTesting},
		{"write the README guide", model.TaskDocumentation},
		{"fix the crash on startup", model.TaskBugfix},
		{"implement the new endpoint", model.TaskImplementation},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyDescription(c.description), c.description)
	}
}

func noAgents(string) []model.Agent { return nil }

func agentsFor(ids ...string) func(string) []model.Agent {
	return func(string) []model.Agent {
		agents := make([]model.Agent, len(ids))
		for i, id := range ids {
			agents[i] = model.Agent{ID: id}
		}
		return agents
	}
}

func TestRoute_UserDirectiveAssignToAgentWins(t *testing.T) {
	task := model.Task{Type: model.TaskImplementation, Risk: 9, Complexity: 9}
	directive := model.UserDirective{AssignToAgent: "agent-7"}

	decision := Route(task, directive, noAgents)
	assert.Equal(t, model.RoutingSolo, decision.Strategy)
	assert.Equal(t, []string{"agent-7"}, decision.CandidateAgents)
}

func TestRoute_UserDirectiveAssignedAgentsWins(t *testing.T) {
	task := model.Task{Type: model.TaskImplementation}
	directive := model.UserDirective{AssignedAgents: []string{"a", "b"}}

	decision := Route(task, directive, noAgents)
	assert.Equal(t, model.RoutingParallel, decision.Strategy)
	assert.Equal(t, []string{"a", "b"}, decision.CandidateAgents)
}

func TestRoute_PreventConsensusForcesSolo(t *testing.T) {
	task := model.Task{Risk: 9, Complexity: 9}
	decision := Route(task, model.UserDirective{PreventConsensus: true}, noAgents)
	assert.Equal(t, model.RoutingSolo, decision.Strategy)
}

func TestRoute_ForceConsensus(t *testing.T) {
	task := model.Task{Risk: 1, Complexity: 1}
	decision := Route(task, model.UserDirective{ForceConsensus: true}, noAgents)
	assert.Equal(t, model.RoutingConsensus, decision.Strategy)
}

func TestRoute_EmergencyForcesSoloEvenWithDependencies(t *testing.T) {
	task := model.Task{Dependencies: []string{"dep-1"}}
	decision := Route(task, model.UserDirective{IsEmergency: true}, noAgents)
	assert.Equal(t, model.RoutingSolo, decision.Strategy)
}

func TestRoute_DependenciesRouteSequential(t *testing.T) {
	task := model.Task{Dependencies: []string{"dep-1"}, Risk: 2, Complexity: 2}
	decision := Route(task, model.UserDirective{}, noAgents)
	assert.Equal(t, model.RoutingSequential, decision.Strategy)
}

func TestRoute_HighRiskRoutesConsensus(t *testing.T) {
	task := model.Task{Risk: 7, Complexity: 1}
	decision := Route(task, model.UserDirective{}, noAgents)
	assert.Equal(t, model.RoutingConsensus, decision.Strategy)
}

func TestRoute_HighComplexityRoutesConsensus(t *testing.T) {
	task := model.Task{Risk: 1, Complexity: 8}
	decision := Route(task, model.UserDirective{}, noAgents)
	assert.Equal(t, model.RoutingConsensus, decision.Strategy)
}

func TestRoute_DefaultsToSolo(t *testing.T) {
	task := model.Task{Risk: 1, Complexity: 1}
	decision := Route(task, model.UserDirective{}, noAgents)
	assert.Equal(t, model.RoutingSolo, decision.Strategy)
}

func TestRoute_PopulatesCandidatesFromCapabilityLookup(t *testing.T) {
	task := model.Task{Type: model.TaskImplementation, Risk: 1, Complexity: 1}
	decision := Route(task, model.UserDirective{}, agentsFor("agent-a", "agent-b"))
	assert.ElementsMatch(t, []string{"agent-a", "agent-b"}, decision.CandidateAgents)
}
