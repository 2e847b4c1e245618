// Package scheduler is the Scheduler Loop: it pops the highest-priority
// pending job from the Priority Queue, claims it in the Job Store, and
// dispatches a Worker under a bounded concurrency semaphore, pacing
// successive dispatches and recovering persisted state after a crash.
// Generalizes the teacher's Manager main loop (internal/downloader) to a
// priority-driven, crash-recoverable design.
package scheduler

import (
	"context"
	"sync"
	"time"

	"doradura/internal/config"
	"doradura/internal/constants"
	"doradura/internal/logger"
	"doradura/internal/queue"
	"doradura/internal/storage"
)

// Runner executes one job to completion or requeue, recording the
// outcome on the job row itself. Implemented by internal/worker.Worker.
type Runner interface {
	Run(ctx context.Context, job *storage.Job)
}

// Scheduler is the Scheduler Loop.
type Scheduler struct {
	Queue  *queue.Queue
	Jobs   *storage.JobRepository
	Worker Runner
	Config *config.Config

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	sem     chan struct{}
	wg      sync.WaitGroup
}

// New creates a Scheduler. Call Recover once at startup before Run.
func New(q *queue.Queue, jobs *storage.JobRepository, w Runner, cfg *config.Config) *Scheduler {
	return &Scheduler{
		Queue:   q,
		Jobs:    jobs,
		Worker:  w,
		Config:  cfg,
		cancels: make(map[string]context.CancelFunc),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Recover re-hydrates the Priority Queue from persisted state after a
// crash: rows left in processing are repromoted to pending (their
// in-flight work is assumed lost), then every pending row is pushed back
// onto the queue preserving its original enqueue order.
func (s *Scheduler) Recover() error {
	jobs, err := s.Jobs.LoadActiveForRecovery()
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.Status == constants.StatusProcessing {
			if err := s.Jobs.UpdateStatus(j.ID, constants.StatusPending); err != nil {
				logger.Log.Error().Str("jobID", j.ID).Err(err).Msg("failed to repromote in-flight job on recovery")
				continue
			}
		}
		s.Queue.PushAt(j.ID, j.Priority, j.CreatedAt)
	}
	logger.Log.Info().Int("count", len(jobs)).Msg("recovered jobs into priority queue")
	return nil
}

// Enqueue pushes a freshly-submitted job onto the Priority Queue.
func (s *Scheduler) Enqueue(job *storage.Job) {
	s.Queue.Push(job.ID, job.Priority)
}

// Run dispatches jobs until ctx is canceled. It blocks the calling
// goroutine; callers typically run it in its own goroutine and call
// Shutdown from elsewhere to stop it.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		item, ok := s.Queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.Config.PollInterval()):
			}
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		job, err := s.Jobs.GetByID(item.JobID)
		if err != nil || job == nil || job.Status != constants.StatusPending {
			<-s.sem
			continue
		}
		if err := s.Jobs.UpdateStatus(job.ID, constants.StatusProcessing); err != nil {
			logger.Log.Error().Str("jobID", job.ID).Err(err).Msg("failed to claim job")
			<-s.sem
			continue
		}

		jobCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancels[job.ID] = cancel
		s.mu.Unlock()

		s.wg.Add(1)
		go s.dispatch(job, jobCtx, cancel)

		select {
		case <-time.After(s.Config.InterDispatchDelay()):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) dispatch(job *storage.Job, jobCtx context.Context, cancel context.CancelFunc) {
	defer s.wg.Done()
	defer cancel()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, job.ID)
		s.mu.Unlock()
		<-s.sem
	}()

	s.Worker.Run(jobCtx, job)
	s.requeueIfPending(job.ID)
}

func (s *Scheduler) requeueIfPending(jobID string) {
	job, err := s.Jobs.GetByID(jobID)
	if err != nil || job == nil {
		return
	}
	if job.Status == constants.StatusPending {
		s.Queue.PushAt(job.ID, job.Priority, job.CreatedAt)
	}
}

// CancelJob cancels a running job immediately, or marks a not-yet-claimed
// one failed so it never starts.
func (s *Scheduler) CancelJob(jobID string) error {
	s.mu.Lock()
	cancel, running := s.cancels[jobID]
	s.mu.Unlock()
	if running {
		cancel()
		return nil
	}
	return s.Jobs.MarkFailed(jobID, "canceled")
}

// Shutdown waits up to Config.ShutdownGrace for in-flight Workers to
// finish on their own. Workers still running after the grace period are
// canceled; any of their jobs that didn't reach a terminal completed
// status are rolled back to pending so a fresh process picks them up.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	inFlight := make([]string, 0, len(s.cancels))
	for id := range s.cancels {
		inFlight = append(inFlight, id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(s.Config.ShutdownGrace()):
	}

	s.mu.Lock()
	for _, id := range inFlight {
		if cancel, ok := s.cancels[id]; ok {
			cancel()
		}
	}
	s.mu.Unlock()

	<-done

	for _, id := range inFlight {
		job, err := s.Jobs.GetByID(id)
		if err != nil || job == nil {
			continue
		}
		if job.Status != constants.StatusCompleted {
			if err := s.Jobs.UpdateStatus(id, constants.StatusPending); err != nil {
				logger.Log.Error().Str("jobID", id).Err(err).Msg("failed to roll back in-flight job on shutdown")
			}
		}
	}
}
