// Package registry implements the agent directory (C5): an in-memory
// capability index with O(1) lookup, atomic status updates, and
// pluggable health checks. It generalizes the teacher's
// internal/persistence/store.go CleanupStaleAgents liveness sweep from
// a single hardcoded process-exists check to an injectable HealthCheck.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
)

// HealthCheck reports whether an agent is still alive. Implementations
// may shell out to a process table, ping a socket, or check a
// heartbeat timestamp; the registry only consumes the boolean result.
type HealthCheck func(ctx context.Context, agent model.Agent) bool

// Registry is the agent directory.
type Registry struct {
	mu           sync.RWMutex
	agents       map[string]model.Agent
	byCapability map[string]map[string]struct{} // capability -> set of agent ids

	healthCheck   HealthCheck
	sweepInterval time.Duration
	log           *logrus.Entry

	stop chan struct{}
	once sync.Once
}

func New(hc HealthCheck, sweepInterval time.Duration) *Registry {
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	return &Registry{
		agents:        make(map[string]model.Agent),
		byCapability:  make(map[string]map[string]struct{}),
		healthCheck:   hc,
		sweepInterval: sweepInterval,
		log:           logrus.WithField("component", "registry"),
		stop:          make(chan struct{}),
	}
}

// Register adds or replaces an agent and indexes its capabilities.
func (r *Registry) Register(agent model.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.agents[agent.ID]; ok {
		r.unindexCapabilities(existing)
	}
	r.agents[agent.ID] = agent
	r.indexCapabilities(agent)
}

func (r *Registry) indexCapabilities(agent model.Agent) {
	for _, cap := range agent.Capabilities {
		set, ok := r.byCapability[cap]
		if !ok {
			set = make(map[string]struct{})
			r.byCapability[cap] = set
		}
		set[agent.ID] = struct{}{}
	}
}

func (r *Registry) unindexCapabilities(agent model.Agent) {
	for _, cap := range agent.Capabilities {
		if set, ok := r.byCapability[cap]; ok {
			delete(set, agent.ID)
			if len(set) == 0 {
				delete(r.byCapability, cap)
			}
		}
	}
}

// Deregister removes an agent from the directory entirely.
func (r *Registry) Deregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.agents[agentID]; ok {
		r.unindexCapabilities(existing)
		delete(r.agents, agentID)
	}
}

// Get returns the current record for agentID.
func (r *Registry) Get(agentID string) (model.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	if !ok {
		return model.Agent{}, orcerr.New(orcerr.KindNotFound, "agent not registered").WithAgent(agentID)
	}
	return a, nil
}

// SetStatus atomically updates an agent's status.
func (r *Registry) SetStatus(agentID string, status model.AgentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return orcerr.New(orcerr.KindNotFound, "agent not registered").WithAgent(agentID)
	}
	a.Status = status
	r.agents[agentID] = a
	return nil
}

// ByCapability returns every agent advertising capability whose status
// is not OFFLINE (ONLINE and BUSY agents alike), in O(k) where k is the
// number of matching agents. The order of the result is not defined.
func (r *Registry) ByCapability(capability string) []model.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byCapability[capability]
	agents := make([]model.Agent, 0, len(ids))
	for id := range ids {
		if a, ok := r.agents[id]; ok && a.Status != model.AgentOffline {
			agents = append(agents, a)
		}
	}
	return agents
}

// All returns a snapshot of every registered agent.
func (r *Registry) All() []model.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agents := make([]model.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	return agents
}

// StartHealthSweep launches a background goroutine that periodically
// runs HealthCheck against every registered agent and marks failures
// OFFLINE, the same liveness-sweep role the teacher's
// CleanupStaleAgents played against its JSON-backed agent store.
func (r *Registry) StartHealthSweep(ctx context.Context) {
	if r.healthCheck == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep(ctx)
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Registry) sweep(ctx context.Context) {
	for _, agent := range r.All() {
		if agent.Status == model.AgentOffline {
			continue
		}
		if !r.healthCheck(ctx, agent) {
			r.log.WithField("agent_id", agent.ID).Warn("agent failed health check, marking offline")
			_ = r.SetStatus(agent.ID, model.AgentOffline)
		}
	}
}

// Stop halts the background health sweep.
func (r *Registry) Stop() {
	r.once.Do(func() { close(r.stop) })
}
