package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validTask() Task {
	now := time.Now().UTC()
	return Task{
		ID:         "t1",
		Title:      "do the thing",
		Type:       TaskImplementation,
		Complexity: 5,
		Risk:       5,
		CreatedAt:  now,
	}
}

func TestTask_Validate_AcceptsMinimalValidTask(t *testing.T) {
	task := validTask()
	assert.NoError(t, task.Validate())
}

func TestTask_Validate_RejectsBlankID(t *testing.T) {
	task := validTask()
	task.ID = ""
	assert.Error(t, task.Validate())
}

func TestTask_Validate_RejectsBlankTitle(t *testing.T) {
	task := validTask()
	task.Title = ""
	assert.Error(t, task.Validate())
}

func TestTask_Validate_RejectsComplexityOutOfRange(t *testing.T) {
	task := validTask()
	task.Complexity = 0
	assert.Error(t, task.Validate())

	task2 := validTask()
	task2.Complexity = 11
	assert.Error(t, task2.Validate())
}

func TestTask_Validate_RejectsRiskOutOfRange(t *testing.T) {
	task := validTask()
	task.Risk = 0
	assert.Error(t, task.Validate())

	task2 := validTask()
	task2.Risk = 11
	assert.Error(t, task2.Validate())
}

func TestTask_Validate_RejectsSelfDependency(t *testing.T) {
	task := validTask()
	task.Dependencies = []string{task.ID}
	assert.Error(t, task.Validate())
}

func TestTask_Validate_AllowsDependencyOnAnotherTask(t *testing.T) {
	task := validTask()
	task.Dependencies = []string{"other-task"}
	assert.NoError(t, task.Validate())
}

func TestTask_Validate_RejectsUpdatedAtBeforeCreatedAt(t *testing.T) {
	task := validTask()
	task.UpdatedAt = task.CreatedAt.Add(-time.Hour)
	assert.Error(t, task.Validate())
}

func TestTask_Validate_ZeroUpdatedAtIsNotAnError(t *testing.T) {
	task := validTask()
	assert.True(t, task.UpdatedAt.IsZero())
	assert.NoError(t, task.Validate())
}

func TestTask_Validate_RejectsDueAtBeforeCreatedAt(t *testing.T) {
	task := validTask()
	due := task.CreatedAt.Add(-time.Hour)
	task.DueAt = &due
	assert.Error(t, task.Validate())
}

func TestTask_Validate_AllowsDueAtAfterCreatedAt(t *testing.T) {
	task := validTask()
	due := task.CreatedAt.Add(time.Hour)
	task.DueAt = &due
	assert.NoError(t, task.Validate())
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.False(t, StatusWaitingInput.IsTerminal())
}
