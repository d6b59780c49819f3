package cron

import (
	"context"
	"fmt"

	"github.com/stagepasshq/stagepass-backend/internal/reviews"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
)

const disclosureSweepBatchSize = 200

type disclosureSweeper interface {
	SweepDisclosures(ctx context.Context, batchSize int) (*reviews.SweepResult, error)
}

// ReviewDisclosureJobParams configure the review disclosure sweep.
type ReviewDisclosureJobParams struct {
	Logger  *logger.Logger
	Reviews disclosureSweeper
}

// NewReviewDisclosureJob builds the job that reveals lone reviews whose
// disclosure window has elapsed.
func NewReviewDisclosureJob(params ReviewDisclosureJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reviews == nil {
		return nil, fmt.Errorf("review sweeper required")
	}
	return &reviewDisclosureJob{
		logg:    params.Logger,
		reviews: params.Reviews,
	}, nil
}

type reviewDisclosureJob struct {
	logg    *logger.Logger
	reviews disclosureSweeper
}

func (j *reviewDisclosureJob) Name() string { return "review-disclosure-sweep" }

func (j *reviewDisclosureJob) Run(ctx context.Context) error {
	result, err := j.reviews.SweepDisclosures(ctx, disclosureSweepBatchSize)
	if err != nil {
		return fmt.Errorf("sweep review disclosures: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"examined": result.Examined,
		"revealed": result.Revealed,
	})
	j.logg.Info(logCtx, "review disclosure sweep done")
	return nil
}
