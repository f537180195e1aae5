// Command orchestratord is the orchestration process: it wires the
// relational store, repositories, event bus, agent registry, routing,
// workflow executors, consensus module, context indexer, and bootstrap
// pipeline behind the orchestration engine, then serves the §6
// presentation bridge. It generalizes the teacher's cmd/cliaimonitor
// main.go wire-everything-and-serve entrypoint shape.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/CLIAIMONITOR/orchestrator/internal/bootstrap"
	"github.com/CLIAIMONITOR/orchestrator/internal/config"
	"github.com/CLIAIMONITOR/orchestrator/internal/consensus"
	ctxidx "github.com/CLIAIMONITOR/orchestrator/internal/context"
	"github.com/CLIAIMONITOR/orchestrator/internal/events"
	"github.com/CLIAIMONITOR/orchestrator/internal/httpapi"
	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/notifications"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
	"github.com/CLIAIMONITOR/orchestrator/internal/orchestrator"
	"github.com/CLIAIMONITOR/orchestrator/internal/registry"
	"github.com/CLIAIMONITOR/orchestrator/internal/repository"
	"github.com/CLIAIMONITOR/orchestrator/internal/statemachine"
	"github.com/CLIAIMONITOR/orchestrator/internal/store"
	"github.com/CLIAIMONITOR/orchestrator/internal/workflow"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	log := logrus.WithField("component", "orchestratord")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	st, err := store.Open(cfg.Database.Path, cfg.Database.PoolSize)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer st.Shutdown()

	repos := wireRepositories(st)

	bus, err := events.NewEmbeddedBus(events.NewSQLiteStore(st))
	if err != nil {
		log.WithError(err).Fatal("failed to start event bus")
	}
	defer bus.Shutdown()

	reg := registry.New(nil, 30*time.Second)
	for _, a := range cfg.Agents {
		reg.Register(model.Agent{ID: a.ID, Type: a.Type, DisplayName: a.DisplayName, Status: model.AgentOnline, Capabilities: a.Capabilities})
	}
	reg.StartHealthSweep(context.Background())
	defer reg.Stop()

	sm := statemachine.New(repos.tasks)

	limiter := rate.NewLimiter(rate.Limit(5), 10)
	consensusModule := consensus.NewConsensusModule(
		consensus.VotingStrategy{Threshold: cfg.Consensus.Voting.Threshold},
		consensus.ReasoningQualityStrategy{
			CorrectnessWeight: cfg.Consensus.ReasoningQuality.Weights.Correctness,
			ClarityWeight:     cfg.Consensus.ReasoningQuality.Weights.Clarity,
			EvidenceWeight:    cfg.Consensus.ReasoningQuality.Weights.Evidence,
			MinScore:          0,
		},
		consensus.TokenOptimizationStrategy{},
	)

	workflows := workflow.NewRegistry(
		workflow.NewSoloExecutor(limiter, 3),
		workflow.NewParallelExecutor(limiter, 3),
		workflow.NewSequentialExecutor(limiter, 3),
		workflow.NewConsensusExecutor(limiter, 3, consensusModule),
	)

	invoke := notImplementedInvoker(log)

	engine := orchestrator.New(orchestrator.Deps{
		Tasks:            repos.tasks,
		ProposalsRepo:    repos.proposals,
		DecisionsRepo:    repos.decisions,
		Snapshots:        repos.snapshots,
		StateMachine:     sm,
		Registry:         reg,
		Workflows:        workflows,
		Proposals:        consensus.NewProposalManager(),
		Consensus:        consensusModule,
		Bus:              bus,
		Invoke:           invoke,
		ConsensusWaitFor: 2 * time.Second,
	})

	embedder := ctxidx.NewHashEmbedder(256)
	embedLimiter := rate.NewLimiter(rate.Limit(20), 40)
	indexer := ctxidx.NewIndexer(repos.files, repos.chunks, repos.embeddings, embedder, embedLimiter)

	runBootstrapAndWatch(cfg, repos, indexer, log)

	wireNotifications(bus, cfg, log)

	srv := httpapi.New(engine, repos.tasks, bus)
	httpServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: srv.Router()}

	go func() {
		log.WithField("addr", cfg.Server.ListenAddr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	waitForShutdown(httpServer, engine, log)
}

// notImplementedInvoker stands in for the external agent transport: in
// this process the concrete dispatch mechanism (process spawn, RPC,
// queue) is injected by deployment configuration not present here, so
// every invocation reports the candidate agent unavailable rather than
// panicking or blocking forever.
func notImplementedInvoker(log *logrus.Entry) workflow.AgentInvoker {
	return func(ctx context.Context, task model.Task, agentID string) (model.Proposal, error) {
		log.WithField("agent_id", agentID).Warn("no agent transport configured, rejecting invocation")
		return model.Proposal{}, orcerr.New(orcerr.KindAgentUnavailable, "no agent transport configured").WithTask(task.ID).WithAgent(agentID)
	}
}

type repos struct {
	tasks      *repository.TaskRepository
	proposals  *repository.ProposalRepository
	decisions  *repository.DecisionRepository
	snapshots  *repository.ContextSnapshotRepository
	files      *repository.FileStateRepository
	chunks     *repository.ChunkRepository
	embeddings *repository.EmbeddingRepository
	links      *repository.LinkRepository
	progress   *repository.BootstrapProgressRepository
}

func wireRepositories(st *store.Store) repos {
	return repos{
		tasks:      repository.NewTaskRepository(st),
		proposals:  repository.NewProposalRepository(st),
		decisions:  repository.NewDecisionRepository(st),
		snapshots:  repository.NewContextSnapshotRepository(st),
		files:      repository.NewFileStateRepository(st),
		chunks:     repository.NewChunkRepository(st),
		embeddings: repository.NewEmbeddingRepository(st),
		links:      repository.NewLinkRepository(st),
		progress:   repository.NewBootstrapProgressRepository(st),
	}
}

func runBootstrapAndWatch(cfg *config.Config, r repos, indexer *ctxidx.Indexer, log *logrus.Entry) {
	tracker := bootstrap.NewProgressTracker(r.progress)
	maxSizeBytes := int64(cfg.Indexing.MaxFileSizeMB) * 1024 * 1024
	orc := bootstrap.NewOrchestrator(tracker, r.files, indexer, cfg.Indexing.WatchPaths, cfg.Indexing.AllowedExtensions, maxSizeBytes)

	go func() {
		if err := orc.Run(context.Background()); err != nil {
			log.WithError(err).Error("bootstrap run failed")
		}
	}()

	watcherMaxSize := maxSizeBytes * int64(cfg.Watcher.MaxFileSizeFactor)
	debounce := time.Duration(cfg.Watcher.DebounceMS) * time.Millisecond
	batchWindow := debounce * 2

	for _, root := range cfg.Indexing.WatchPaths {
		daemon, err := bootstrap.NewWatcherDaemon(root, cfg.Indexing.AllowedExtensions, nil, debounce, batchWindow, watcherMaxSize, r.files, indexer)
		if err != nil {
			log.WithError(err).WithField("root", root).Error("failed to start watcher")
			continue
		}
		if err := daemon.Start(context.Background()); err != nil {
			log.WithError(err).WithField("root", root).Error("failed to start watcher")
			continue
		}
		log.WithField("root", root).Info("watching for changes")
	}
}

// wireNotifications subscribes a toast notifier to WAITING_INPUT events
// and to events whose payload carries any error_kind, the desktop-alert
// role the teacher's
// internal/notifications/toast.go played for supervisor escalations.
func wireNotifications(bus *events.Bus, cfg *config.Config, log *logrus.Entry) {
	notifier := notifications.NewToastNotifierWithURL("orchestrator", "http://"+cfg.Server.ListenAddr)
	if !notifier.IsSupported() {
		log.Info("toast notifications not supported on this platform, skipping")
		return
	}

	ch := bus.Subscribe("all", []events.Type{events.WorkflowCompleted, events.TaskCreated})
	go func() {
		for ev := range ch {
			status, _ := ev.Payload["status"].(string)
			if status == string(model.StatusWaitingInput) {
				_ = notifier.NotifySupervisorNeedsInput("task " + ev.Target + " is waiting on input")
				continue
			}
			if errorKind, ok := ev.Payload["error_kind"].(string); ok && errorKind != "" {
				_ = notifier.ShowToast("Task Failed", "task "+ev.Target+": "+errorKind)
			}
		}
	}()
}

func waitForShutdown(httpServer *http.Server, engine *orchestrator.Engine, log *logrus.Entry) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(ctx)
	engine.Shutdown(5 * time.Second)
}
