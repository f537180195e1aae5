package orchestrator

import (
	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
)

// WorkflowResult is the outcome of one executeTask/resumeTask call.
type WorkflowResult struct {
	TaskID    string
	Status    model.TaskStatus
	Proposals []model.Proposal
	Decision  *model.Decision
	ErrorKind orcerr.Kind
	Err       error
}
