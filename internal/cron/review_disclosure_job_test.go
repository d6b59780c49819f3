package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stagepasshq/stagepass-backend/internal/reviews"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
)

type fakeSweeper struct {
	result *reviews.SweepResult
	err    error
	batch  int
}

func (f *fakeSweeper) SweepDisclosures(ctx context.Context, batchSize int) (*reviews.SweepResult, error) {
	f.batch = batchSize
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestReviewDisclosureJob_runsSweep(t *testing.T) {
	sweeper := &fakeSweeper{result: &reviews.SweepResult{Examined: 5, Revealed: 2}}
	job, err := NewReviewDisclosureJob(ReviewDisclosureJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Reviews: sweeper,
	})
	if err != nil {
		t.Fatalf("NewReviewDisclosureJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.batch != disclosureSweepBatchSize {
		t.Fatalf("expected batch size %d, got %d", disclosureSweepBatchSize, sweeper.batch)
	}
}

func TestReviewDisclosureJob_propagatesSweepError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db unavailable")}
	job, err := NewReviewDisclosureJob(ReviewDisclosureJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Reviews: sweeper,
	})
	if err != nil {
		t.Fatalf("NewReviewDisclosureJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error to surface")
	}
}
