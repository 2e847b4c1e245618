package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"doradura/internal/config"
	"doradura/internal/constants"
	"doradura/internal/queue"
	"doradura/internal/storage"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	running int
	maxSeen int
	onRun   func(ctx context.Context, job *storage.Job)
}

func (f *fakeRunner) Run(ctx context.Context, job *storage.Job) {
	f.mu.Lock()
	f.calls = append(f.calls, job.ID)
	f.running++
	if f.running > f.maxSeen {
		f.maxSeen = f.running
	}
	f.mu.Unlock()

	if f.onRun != nil {
		f.onRun(ctx, job)
	}

	f.mu.Lock()
	f.running--
	f.mu.Unlock()
}

func newSchedulerHarness(t *testing.T) (*storage.JobRepository, *config.Config, func()) {
	t.Helper()
	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	cfg := config.Default()
	cfg.MaxConcurrent = 2
	return storage.NewJobRepository(db), cfg, func() { db.Close() }
}

func TestRecover_RepromotesProcessingAndRequeuesPending(t *testing.T) {
	jobs, cfg, closeDB := newSchedulerHarness(t)
	defer closeDB()

	processing := &storage.Job{UserID: 1, ChatID: 1, URL: "u1", Format: "mp3", Priority: 100}
	if err := jobs.Insert(processing); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := jobs.UpdateStatus(processing.ID, constants.StatusProcessing); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	pending := &storage.Job{UserID: 1, ChatID: 1, URL: "u2", Format: "mp3", Priority: 0}
	if err := jobs.Insert(pending); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	q := queue.New()
	s := New(q, jobs, &fakeRunner{}, cfg)
	if err := s.Recover(); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}

	got, _ := jobs.GetByID(processing.ID)
	if got.Status != constants.StatusPending {
		t.Errorf("Status = %q, want %q after recovery", got.Status, constants.StatusPending)
	}

	first, _ := q.Pop()
	if first.JobID != processing.ID {
		t.Errorf("expected the higher-priority recovered job first, got %q", first.JobID)
	}
}

func TestRun_RequeuesJobWorkerLeftPending(t *testing.T) {
	jobs, cfg, closeDB := newSchedulerHarness(t)
	defer closeDB()
	cfg.PollIntervalMs = 5
	cfg.InterDispatchDelayMs = 0

	job := &storage.Job{UserID: 1, ChatID: 1, URL: "u1", Format: "mp3"}
	if err := jobs.Insert(job); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	q := queue.New()
	q.Push(job.ID, job.Priority)

	runner := &fakeRunner{onRun: func(ctx context.Context, j *storage.Job) {
		_ = jobs.IncrementRetry(j.ID, "network blip")
	}}
	s := New(q, jobs, runner, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	deadline := time.After(time.Second)
waitLoop:
	for {
		if q.Len() > 0 {
			break waitLoop
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the job to be requeued")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	runner.mu.Lock()
	calls := len(runner.calls)
	runner.mu.Unlock()
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRun_BoundsConcurrencyToMaxConcurrent(t *testing.T) {
	jobs, cfg, closeDB := newSchedulerHarness(t)
	defer closeDB()
	cfg.MaxConcurrent = 1
	cfg.PollIntervalMs = 5
	cfg.InterDispatchDelayMs = 0

	var jobIDs []string
	for i := 0; i < 3; i++ {
		j := &storage.Job{UserID: 1, ChatID: 1, URL: "u", Format: "mp3"}
		if err := jobs.Insert(j); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		jobIDs = append(jobIDs, j.ID)
	}

	q := queue.New()
	for _, id := range jobIDs {
		q.Push(id, 0)
	}

	release := make(chan struct{})
	runner := &fakeRunner{onRun: func(ctx context.Context, j *storage.Job) {
		_ = jobs.MarkCompleted(j.ID)
		<-release
	}}
	s := New(q, jobs, runner, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	time.Sleep(50 * time.Millisecond)
	runner.mu.Lock()
	maxSeen := runner.maxSeen
	runner.mu.Unlock()

	close(release)
	cancel()
	<-done

	if maxSeen != 1 {
		t.Errorf("max concurrent observed = %d, want 1", maxSeen)
	}
}

func TestShutdown_RollsBackInFlightJobAfterGraceExpires(t *testing.T) {
	jobs, cfg, closeDB := newSchedulerHarness(t)
	defer closeDB()
	cfg.ShutdownGraceSec = 0
	cfg.PollIntervalMs = 5
	cfg.InterDispatchDelayMs = 0

	job := &storage.Job{UserID: 1, ChatID: 1, URL: "u1", Format: "mp3"}
	if err := jobs.Insert(job); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	q := queue.New()
	q.Push(job.ID, job.Priority)

	started := make(chan struct{})
	runner := &fakeRunner{onRun: func(ctx context.Context, j *storage.Job) {
		close(started)
		<-ctx.Done()
	}}
	s := New(q, jobs, runner, cfg)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	runDone := make(chan struct{})
	go func() { s.Run(bgCtx); close(runDone) }()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job dispatch")
	}

	s.Shutdown()

	got, err := jobs.GetByID(job.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != constants.StatusPending {
		t.Errorf("Status = %q, want %q after shutdown rollback", got.Status, constants.StatusPending)
	}

	cancelBg()
	<-runDone
}

func TestCancelJob_CancelsRunningJob(t *testing.T) {
	jobs, cfg, closeDB := newSchedulerHarness(t)
	defer closeDB()
	cfg.PollIntervalMs = 5

	job := &storage.Job{UserID: 1, ChatID: 1, URL: "u1", Format: "mp3"}
	if err := jobs.Insert(job); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	q := queue.New()
	q.Push(job.ID, job.Priority)

	started := make(chan struct{})
	canceled := make(chan struct{})
	runner := &fakeRunner{onRun: func(ctx context.Context, j *storage.Job) {
		close(started)
		<-ctx.Done()
		close(canceled)
	}}
	s := New(q, jobs, runner, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job dispatch")
	}

	if err := s.CancelJob(job.ID); err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job context to be canceled")
	}

	cancel()
	<-done
}

func TestCancelJob_NotYetDispatchedMarksFailed(t *testing.T) {
	jobs, cfg, closeDB := newSchedulerHarness(t)
	defer closeDB()

	job := &storage.Job{UserID: 1, ChatID: 1, URL: "u1", Format: "mp3"}
	if err := jobs.Insert(job); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	q := queue.New()
	s := New(q, jobs, &fakeRunner{}, cfg)

	if err := s.CancelJob(job.ID); err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}

	got, _ := jobs.GetByID(job.ID)
	if got.Status != constants.StatusFailed {
		t.Errorf("Status = %q, want %q", got.Status, constants.StatusFailed)
	}
}
