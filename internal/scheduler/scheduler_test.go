package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"clinicbook/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	})
}

func TestScheduler_RunsJobImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)

	s := New(testLogger())
	s.Register("sweep", time.Hour, func(ctx context.Context) (int64, error) {
		ran <- struct{}{}
		return 3, nil
	})

	s.Start()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the job to run immediately on start")
	}

	s.Stop()

	statuses := s.Status()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 job status, got %d", len(statuses))
	}
	if statuses[0].Runs != 1 {
		t.Errorf("expected 1 run, got %d", statuses[0].Runs)
	}
	if statuses[0].LastCount != 3 {
		t.Errorf("expected last count 3, got %d", statuses[0].LastCount)
	}
	if statuses[0].LastError != "" {
		t.Errorf("expected no error, got %q", statuses[0].LastError)
	}
}

func TestScheduler_FailingRunDoesNotStopTicker(t *testing.T) {
	ran := make(chan struct{}, 4)

	s := New(testLogger())
	s.Register("flaky", 5*time.Millisecond, func(ctx context.Context) (int64, error) {
		ran <- struct{}{}
		return 0, errors.New("database unavailable")
	})

	s.Start()

	// Wait for the immediate run plus at least one ticker run.
	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("expected the job to keep running after a failure")
		}
	}
	s.Stop()

	status := s.Status()[0]
	if status.Runs < 2 {
		t.Errorf("expected at least 2 runs, got %d", status.Runs)
	}
	if status.LastError == "" {
		t.Error("expected the failure to be recorded")
	}
}

func TestScheduler_PanicRecordedAsFailure(t *testing.T) {
	ran := make(chan struct{}, 1)

	s := New(testLogger())
	s.Register("panicky", time.Hour, func(ctx context.Context) (int64, error) {
		defer func() { ran <- struct{}{} }()
		panic("nil dereference in sweep")
	})

	s.Start()
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the job to run")
	}
	s.Stop()

	status := s.Status()[0]
	if status.Runs != 1 {
		t.Errorf("expected 1 run, got %d", status.Runs)
	}
	if status.LastError == "" {
		t.Error("expected the panic recorded as an error")
	}
}

func TestScheduler_StopWaitsForJobs(t *testing.T) {
	started := make(chan struct{})
	finished := false

	s := New(testLogger())
	s.Register("slow", time.Hour, func(ctx context.Context) (int64, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished = true
		return 0, nil
	})

	s.Start()
	<-started
	s.Stop()

	if !finished {
		t.Error("expected Stop to wait for the in-flight run")
	}
}
