// Command dbctl is a read-only admin CLI over the orchestration store:
// task/proposal/decision/context lookups and bootstrap-progress
// summaries, for an operator inspecting a running database. It keeps
// the teacher's flag-subcommand-then-exit shape but dispatches against
// internal/store and internal/repository instead of a driver opened
// directly against a single agent_control table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/repository"
	"github.com/CLIAIMONITOR/orchestrator/internal/store"
)

func main() {
	dbPath := flag.String("db", "data/orchestrator.db", "path to the SQLite database")
	action := flag.String("action", "", "action to perform: get-task, list-tasks, get-proposals, get-decisions, get-context, bootstrap-status")
	taskID := flag.String("task", "", "task ID")
	status := flag.String("status", "", "task status filter for list-tasks (PENDING, IN_PROGRESS, WAITING_INPUT, COMPLETED, FAILED)")
	jsonOutput := flag.Bool("json", true, "output as JSON")
	flag.Parse()

	if *action == "" {
		fmt.Fprintf(os.Stderr, "Usage: dbctl -db <path> -action <action> [-task <id>] [-status <status>] [-json]\n")
		fmt.Fprintf(os.Stderr, "Actions: get-task, list-tasks, get-proposals, get-decisions, get-context, bootstrap-status\n")
		os.Exit(1)
	}

	st, err := store.Open(*dbPath, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Shutdown()

	ctx := context.Background()
	result, err := dispatch(ctx, st, *action, *taskID, *status)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", *action, err)
		os.Exit(1)
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Printf("%+v\n", result)
}

func dispatch(ctx context.Context, st *store.Store, action, taskID, status string) (interface{}, error) {
	switch action {
	case "get-task":
		if taskID == "" {
			return nil, fmt.Errorf("-task is required")
		}
		return repository.NewTaskRepository(st).Get(ctx, taskID)

	case "list-tasks":
		if status == "" {
			return nil, fmt.Errorf("-status is required")
		}
		return repository.NewTaskRepository(st).ListByStatus(ctx, model.TaskStatus(status))

	case "get-proposals":
		if taskID == "" {
			return nil, fmt.Errorf("-task is required")
		}
		return repository.NewProposalRepository(st).ListByTask(ctx, taskID)

	case "get-decisions":
		if taskID == "" {
			return nil, fmt.Errorf("-task is required")
		}
		return repository.NewDecisionRepository(st).ListByTask(ctx, taskID)

	case "get-context":
		if taskID == "" {
			return nil, fmt.Errorf("-task is required")
		}
		return repository.NewContextSnapshotRepository(st).History(ctx, taskID)

	case "bootstrap-status":
		return repository.NewBootstrapProgressRepository(st).ListNonCompleted(ctx)

	default:
		return nil, fmt.Errorf("unknown action: %s", action)
	}
}
