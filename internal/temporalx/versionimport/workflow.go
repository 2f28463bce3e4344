package versionimport

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow runs the staged import pipeline for one candidate version:
// Validate, ImportData, ExtractMetadata, ComputeMapping, Finalize. A stage
// failure marks the import Failed and halts; the version stays Draft. A
// re-triggered run resumes because completed stages skip themselves.
func Workflow(ctx workflow.Context, in Input) error {
	if in.ImportID == uuid.Nil {
		return fmt.Errorf("versionimport: missing import_id")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 4 * time.Hour,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: NonRetryableErrorTypes,
		},
	})

	for _, stage := range stageActivities {
		if err := workflow.ExecuteActivity(ctx, stage.Activity, in).Get(ctx, nil); err != nil {
			markFailed(ctx, in, FailInput{
				ImportID: in.ImportID,
				Stage:    stage.Stage,
				Detail:   err.Error(),
			})
			return err
		}
	}
	return nil
}

// markFailed records the terminal Failed state on a disconnected context so
// it still runs when the workflow itself is being cancelled.
func markFailed(ctx workflow.Context, in Input, fail FailInput) {
	dctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	dctx = workflow.WithActivityOptions(dctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})
	if err := workflow.ExecuteActivity(dctx, ActivityMarkFailed, fail).Get(dctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("failed to record import failure", "import_id", in.ImportID, "error", err)
	}
}
