package versionimport

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	types "github.com/openstats/datasetsvc/internal/domain"
)

func newTestEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})

	stage := func(ctx context.Context, in Input) error { return nil }
	env.RegisterActivityWithOptions(stage, activity.RegisterOptions{Name: ActivityValidate})
	env.RegisterActivityWithOptions(stage, activity.RegisterOptions{Name: ActivityImportData})
	env.RegisterActivityWithOptions(stage, activity.RegisterOptions{Name: ActivityExtractMetadata})
	env.RegisterActivityWithOptions(stage, activity.RegisterOptions{Name: ActivityComputeMapping})
	env.RegisterActivityWithOptions(stage, activity.RegisterOptions{Name: ActivityFinalize})
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in FailInput) error { return nil },
		activity.RegisterOptions{Name: ActivityMarkFailed},
	)
	return env
}

func TestWorkflowRunsStagesInOrder(t *testing.T) {
	env := newTestEnv(t)
	in := Input{ImportID: uuid.New()}

	var executed []string
	record := func(name string) func(mock.Arguments) {
		return func(mock.Arguments) { executed = append(executed, name) }
	}
	env.OnActivity(ActivityValidate, mock.Anything, in).Run(record(ActivityValidate)).Return(nil).Once()
	env.OnActivity(ActivityImportData, mock.Anything, in).Run(record(ActivityImportData)).Return(nil).Once()
	env.OnActivity(ActivityExtractMetadata, mock.Anything, in).Run(record(ActivityExtractMetadata)).Return(nil).Once()
	env.OnActivity(ActivityComputeMapping, mock.Anything, in).Run(record(ActivityComputeMapping)).Return(nil).Once()
	env.OnActivity(ActivityFinalize, mock.Anything, in).Run(record(ActivityFinalize)).Return(nil).Once()

	env.ExecuteWorkflow(WorkflowName, in)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.Equal(t, []string{
		ActivityValidate,
		ActivityImportData,
		ActivityExtractMetadata,
		ActivityComputeMapping,
		ActivityFinalize,
	}, executed)
	env.AssertNotCalled(t, ActivityMarkFailed, mock.Anything, mock.Anything)
}

func TestWorkflowMarksFailedAndHalts(t *testing.T) {
	env := newTestEnv(t)
	in := Input{ImportID: uuid.New()}

	env.OnActivity(ActivityValidate, mock.Anything, in).Return(nil).Once()
	env.OnActivity(ActivityImportData, mock.Anything, in).Return(nil).Once()
	env.OnActivity(ActivityExtractMetadata, mock.Anything, in).Return(
		temporal.NewNonRetryableApplicationError("unknown geographic level", "InvalidGeographicLevelError", nil),
	).Once()

	var fail FailInput
	env.OnActivity(ActivityMarkFailed, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		fail = args.Get(1).(FailInput)
	}).Return(nil).Once()

	env.ExecuteWorkflow(WorkflowName, in)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	require.Equal(t, in.ImportID, fail.ImportID)
	require.Equal(t, types.StageExtractMetadata, fail.Stage)
	require.NotEmpty(t, fail.Detail)
	env.AssertNotCalled(t, ActivityComputeMapping, mock.Anything, mock.Anything)
	env.AssertNotCalled(t, ActivityFinalize, mock.Anything, mock.Anything)
}

func TestWorkflowNonRetryableErrorIsNotRetried(t *testing.T) {
	env := newTestEnv(t)
	in := Input{ImportID: uuid.New()}

	calls := 0
	env.OnActivity(ActivityValidate, mock.Anything, in).Run(func(mock.Arguments) {
		calls++
	}).Return(temporal.NewNonRetryableApplicationError("already published", "Conflict", nil))
	env.OnActivity(ActivityMarkFailed, mock.Anything, mock.Anything).Return(nil).Once()

	env.ExecuteWorkflow(WorkflowName, in)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	require.Equal(t, 1, calls)
}

func TestWorkflowRejectsMissingImportID(t *testing.T) {
	env := newTestEnv(t)

	env.ExecuteWorkflow(WorkflowName, Input{})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertNotCalled(t, ActivityValidate, mock.Anything, mock.Anything)
}
