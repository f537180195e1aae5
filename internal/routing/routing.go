// Package routing implements C6: deciding a RoutingDecision for a Task,
// honoring any UserDirective override. It generalizes the teacher's
// internal/router/router.go SkillRouter.ClassifyQuery/RouteQuery
// keyword-bucket classification from a fixed skill vocabulary to the
// task Type/Complexity/Risk inputs spec §4 names.
package routing

import (
	"strings"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
)

// RoutingDecision is the routing module's output for a Task.
type RoutingDecision struct {
	Strategy       model.RoutingStrategy `json:"strategy"`
	CandidateAgents []string             `json:"candidate_agents"`
	Reason          string               `json:"reason"`
}

// typeKeywords buckets a task's free-text Description into the same
// kind of keyword classification the teacher used to bucket incoming
// queries into skill categories.
var typeKeywords = map[model.TaskType][]string{
	model.TaskArchitecture:  {"design", "architecture", "schema", "interface"},
	model.TaskResearch:      {"investigate", "explore", "compare", "survey"},
	model.TaskReview:        {"review", "audit", "critique"},
	model.TaskTesting:       {"test", "verify", "regression"},
	model.TaskDocumentation: {"document", "readme", "guide"},
	model.TaskBugfix:        {"bug", "fix", "crash", "regression"},
}

// ClassifyDescription infers a TaskType from free text when the caller
// did not already set one, mirroring the teacher's ClassifyQuery
// fallback-to-keyword-bucket behavior. Buckets are checked in a fixed
// order, so a keyword shared by two buckets ("regression") resolves to
// TESTING rather than BUGFIX.
func ClassifyDescription(description string) model.TaskType {
	lower := strings.ToLower(description)
	order := []model.TaskType{
		model.TaskArchitecture, model.TaskResearch, model.TaskReview,
		model.TaskTesting, model.TaskDocumentation, model.TaskBugfix,
	}
	for _, t := range order {
		for _, kw := range typeKeywords[t] {
			if strings.Contains(lower, kw) {
				return t
			}
		}
	}
	return model.TaskImplementation
}

// Route decides the RoutingStrategy and candidate agent set for a
// task, registry lookup injected via capabilityLookup so this package
// stays free of a direct dependency on internal/registry's concrete
// type (mirroring the teacher's router package, which took its agent
// pool as a plain parameter rather than importing persistence).
func Route(task model.Task, directive model.UserDirective, capabilityLookup func(capability string) []model.Agent) RoutingDecision {
	if directive.AssignToAgent != "" {
		return RoutingDecision{
			Strategy:        model.RoutingSolo,
			CandidateAgents: []string{directive.AssignToAgent},
			Reason:          "user directive assigned a specific agent",
		}
	}
	if len(directive.AssignedAgents) > 0 {
		return RoutingDecision{
			Strategy:        model.RoutingParallel,
			CandidateAgents: directive.AssignedAgents,
			Reason:          "user directive assigned an explicit agent set",
		}
	}

	candidates := capabilityLookup(string(task.Type))
	ids := make([]string, 0, len(candidates))
	for _, a := range candidates {
		ids = append(ids, a.ID)
	}

	strategy := selectStrategy(task, directive)
	return RoutingDecision{
		Strategy:        strategy,
		CandidateAgents: ids,
		Reason:          strategyReason(strategy, task, directive),
	}
}

func selectStrategy(task model.Task, directive model.UserDirective) model.RoutingStrategy {
	if directive.PreventConsensus {
		return model.RoutingSolo
	}
	if directive.ForceConsensus {
		return model.RoutingConsensus
	}
	if directive.IsEmergency {
		return model.RoutingSolo
	}
	if len(task.Dependencies) > 0 {
		return model.RoutingSequential
	}
	// High-risk or high-complexity tasks benefit from independent
	// proposals and a consensus pass; low-stakes tasks go solo.
	if task.Risk >= 7 || task.Complexity >= 8 {
		return model.RoutingConsensus
	}
	return model.RoutingSolo
}

func strategyReason(strategy model.RoutingStrategy, task model.Task, directive model.UserDirective) string {
	switch {
	case directive.PreventConsensus:
		return "user directive prevented consensus"
	case directive.ForceConsensus:
		return "user directive forced consensus"
	case directive.IsEmergency:
		return "emergency directive routes solo for lowest latency"
	case len(task.Dependencies) > 0:
		return "task has unresolved dependencies, routing sequentially"
	case task.Risk >= 7 || task.Complexity >= 8:
		return "risk or complexity exceeds solo threshold"
	default:
		return "default solo routing"
	}
}
