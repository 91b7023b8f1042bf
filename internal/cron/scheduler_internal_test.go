package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type blockingJob struct {
	release chan struct{}
	started chan struct{}
	runs    atomic.Int32
}

func (j *blockingJob) Name() string     { return "slow" }
func (j *blockingJob) Schedule() string { return "* * * * *" }
func (j *blockingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	close(j.started)
	select {
	case <-j.release:
	case <-ctx.Done():
	}
	return nil
}

func TestScheduler_TickSkipsOverlappingRun(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	job := &blockingJob{release: make(chan struct{}), started: make(chan struct{})}
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}

	done := make(chan bool)
	go func() { done <- s.tick(context.Background(), job) }()

	select {
	case <-job.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first tick did not start")
	}
	if s.tick(context.Background(), job) {
		t.Error("overlapping tick ran")
	}

	close(job.release)
	if !<-done {
		t.Error("first tick reported skipped")
	}
	if job.runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", job.runs.Load())
	}
}
