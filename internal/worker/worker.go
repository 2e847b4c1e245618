// Package worker implements the Worker: the per-job state machine the
// Scheduler Loop spawns for exactly one claimed job at a time. It carries
// a job through metadata, download, optional processing and upload,
// respecting the retry and operator-notification decisions the error
// taxonomy hands back. On exit it always removes the job's working
// directory and leaves the Job Store row completed, failed, or back in
// pending for a retry.
package worker

import (
	"context"
	"fmt"

	"doradura/internal/chatapi"
	"doradura/internal/config"
	"doradura/internal/constants"
	"doradura/internal/converter"
	apperr "doradura/internal/errors"
	"doradura/internal/history"
	"doradura/internal/logger"
	"doradura/internal/operator"
	"doradura/internal/paths"
	"doradura/internal/plan"
	"doradura/internal/progress"
	"doradura/internal/source"
	"doradura/internal/storage"
)

// UserProfiles is the external collaborator the Worker asks for a user's
// current subscription plan. Queried fresh at size-gate time rather than
// trusted from job-creation time, since a plan can change while a job
// waits in the Priority Queue.
type UserProfiles interface {
	PlanForUser(userID int64) (constants.Plan, error)
}

// Transcriber produces a transcript artifact (srt or txt) from a
// downloaded media file. Implemented by internal/transcribe.
type Transcriber interface {
	Transcribe(ctx context.Context, inputPath, outputDir, format string) (path string, sizeBytes int64, err error)
}

// Worker runs exactly one job at a time. A Scheduler owns the pool of
// Workers (one goroutine per dispatch permit); Worker itself holds no
// concurrency state.
type Worker struct {
	Jobs        *storage.JobRepository
	History     *history.Repository
	Registry    *source.Registry
	Users       UserProfiles
	Transcriber Transcriber
	Delivery    chatapi.Delivery
	Progress    *progress.Broker
	Notifier    operator.Notifier
	Config      *config.Config
}

// Run carries job through its full lifecycle. Every outcome (retry, fail,
// complete) is recorded on the job row itself; the Scheduler's only
// remaining duty after Run returns is to re-read the row and re-enqueue
// it if it is still pending.
func (w *Worker) Run(ctx context.Context, job *storage.Job) {
	w.Progress.Start(job.ID)
	defer w.Progress.Stop(job.ID)
	defer func() {
		if err := paths.CleanupJobDir(w.Config.DownloadsDir, job.ID); err != nil {
			logger.Log.Warn().Str("jobID", job.ID).Err(err).Msg("job directory cleanup failed")
		}
	}()

	if w.tryDeliverFromHistory(ctx, job) {
		return
	}

	src := w.Registry.Resolve(job.URL)
	if src == nil {
		w.terminate(job, "worker.resolveSource", apperr.New("worker.resolveSource", apperr.KindNoSourceForUrl, nil))
		return
	}

	meta, err := w.fetchMetadata(ctx, src, job)
	if err != nil {
		w.handleError(job, "worker.fetchMetadata", err)
		return
	}
	if meta.IsLivestream {
		w.terminate(job, "worker.fetchMetadata", apperr.New("worker.fetchMetadata", apperr.KindLiveStream, nil))
		return
	}

	userPlan, err := w.Users.PlanForUser(job.UserID)
	if err != nil {
		w.handleError(job, "worker.planForUser", apperr.New("worker.planForUser", apperr.KindInternal, err))
		return
	}

	if size, ok := src.EstimateSize(ctx, job.URL); ok && size > plan.MaxFileSize(w.Config, userPlan) {
		w.terminate(job, "worker.sizeGate", apperr.New("worker.sizeGate", apperr.KindTooLarge, nil))
		return
	}

	jobDir, err := paths.EnsureJobDir(w.Config.DownloadsDir, job.ID)
	if err != nil {
		w.handleError(job, "worker.ensureJobDir", apperr.New("worker.ensureJobDir", apperr.KindInternal, err))
		return
	}

	qualitySpec := job.QualitySpec
	if !plan.AllowsQuality(userPlan) {
		qualitySpec = ""
	}

	localPath, sizeBytes, err := w.download(ctx, src, job, jobDir, qualitySpec)
	if err != nil {
		w.handleError(job, "worker.download", err)
		return
	}

	if sizeBytes > 0 && sizeBytes > plan.MaxFileSize(w.Config, userPlan) {
		w.terminate(job, "worker.postDownloadSizeGate", apperr.New("worker.postDownloadSizeGate", apperr.KindTooLarge, nil))
		return
	}

	localPath, sizeBytes, err = w.process(ctx, job, jobDir, localPath, qualitySpec)
	if err != nil {
		w.handleError(job, "worker.process", err)
		return
	}

	ref, err := w.upload(ctx, job, localPath, meta)
	if err != nil {
		w.handleError(job, "worker.upload", err)
		return
	}

	w.complete(job, meta, sizeBytes, ref)
}

// tryDeliverFromHistory is the dedup pre-flight: a prior completed
// delivery for the same (user, url, format) skips the download path
// entirely and re-references the existing remote file.
func (w *Worker) tryDeliverFromHistory(ctx context.Context, job *storage.Job) bool {
	entry, err := w.History.FindDeliverable(job.UserID, job.URL, job.Format)
	if err != nil {
		logger.Log.Warn().Str("jobID", job.ID).Err(err).Msg("history dedup lookup failed")
		return false
	}
	if entry == nil {
		return false
	}

	meta := chatapi.Metadata{
		Title:        entry.Title,
		Artist:       entry.Artist,
		SizeBytes:    entry.SizeBytes,
		DurationSecs: int(entry.DurationSecs),
	}
	if err := w.Delivery.SendReference(ctx, job.ChatID, chatapi.RemoteFileRef(entry.RemoteFileID), meta); err != nil {
		logger.Log.Warn().Str("jobID", job.ID).Err(err).Msg("history redelivery failed, falling back to fresh download")
		return false
	}

	if err := w.History.Touch(entry.ID); err != nil {
		logger.Log.Warn().Str("jobID", job.ID).Err(err).Msg("history touch failed")
	}
	if err := w.Jobs.MarkCompleted(job.ID); err != nil {
		logger.Log.Error().Str("jobID", job.ID).Err(err).Msg("failed to mark deduped job completed")
	}
	return true
}

func (w *Worker) fetchMetadata(ctx context.Context, src source.DownloadSource, job *storage.Job) (source.Metadata, error) {
	w.publish(job, progress.PhaseFetchingMetadata, 0)
	mctx, cancel := context.WithTimeout(ctx, w.Config.MetadataTimeout())
	defer cancel()
	return src.GetMetadata(mctx, job.URL)
}

func (w *Worker) download(ctx context.Context, src source.DownloadSource, job *storage.Job, jobDir, qualitySpec string) (string, int64, error) {
	dctx, cancel := context.WithTimeout(ctx, w.Config.DownloadTimeout())
	defer cancel()

	req := source.Request{
		JobID:       job.ID,
		URL:         job.URL,
		Format:      job.Format,
		QualitySpec: qualitySpec,
		OutputDir:   jobDir,
	}
	onProgress := func(u progress.Update) {
		u.ChatID = job.ChatID
		w.Progress.Publish(u)
	}

	out, err := src.Download(dctx, req, onProgress)
	if err != nil {
		return "", 0, err
	}
	return out.LocalPath, out.SizeBytes, nil
}

func (w *Worker) process(ctx context.Context, job *storage.Job, jobDir, inputPath, qualitySpec string) (string, int64, error) {
	w.publish(job, progress.PhaseProcessing, 0)
	pctx, cancel := context.WithTimeout(ctx, w.Config.ProcessingTimeout())
	defer cancel()

	switch constants.Format(job.Format) {
	case constants.FormatMP3:
		res, err := converter.ExtractAudio(pctx, converter.AudioExtractOptions{
			InputPath:  inputPath,
			OutputDir:  jobDir,
			Format:     converter.AudioFormatMP3,
			Quality:    audioQualityFor(qualitySpec),
			FFmpegPath: w.Config.FFmpegPath,
		})
		if err != nil {
			return "", 0, apperr.New("worker.process", apperr.KindInternal, err)
		}
		return res.OutputPath, res.OutputSize, nil

	case constants.FormatMP4:
		res, err := converter.CompressVideo(pctx, inputPath, videoQualityFor(qualitySpec), "medium", w.Config.FFmpegPath)
		if err != nil {
			return "", 0, apperr.New("worker.process", apperr.KindInternal, err)
		}
		return res.OutputPath, res.OutputSize, nil

	case constants.FormatSRT, constants.FormatTXT:
		if w.Transcriber == nil {
			return "", 0, apperr.New("worker.process", apperr.KindInternal, fmt.Errorf("no transcriber configured"))
		}
		return w.Transcriber.Transcribe(pctx, inputPath, jobDir, job.Format)

	default:
		return "", 0, apperr.New("worker.process", apperr.KindInternal, fmt.Errorf("unsupported format: %s", job.Format))
	}
}

func (w *Worker) upload(ctx context.Context, job *storage.Job, localPath string, meta source.Metadata) (chatapi.RemoteFileRef, error) {
	w.publish(job, progress.PhaseUploading, 0)
	uctx, cancel := context.WithTimeout(ctx, w.Config.UploadTimeout())
	defer cancel()

	cmeta := chatapi.Metadata{Title: meta.Title, Artist: meta.Artist}
	asDocument := constants.Format(job.Format) == constants.FormatSRT || constants.Format(job.Format) == constants.FormatTXT
	return w.Delivery.Send(uctx, job.ChatID, localPath, cmeta, asDocument)
}

func (w *Worker) complete(job *storage.Job, meta source.Metadata, sizeBytes int64, ref chatapi.RemoteFileRef) {
	entry := &history.Entry{
		UserID:       job.UserID,
		URL:          job.URL,
		Format:       job.Format,
		Title:        meta.Title,
		Artist:       meta.Artist,
		SizeBytes:    sizeBytes,
		RemoteFileID: string(ref),
	}
	if err := w.History.Record(entry); err != nil {
		logger.Log.Warn().Str("jobID", job.ID).Err(err).Msg("history record failed")
	}
	if err := w.Jobs.MarkCompleted(job.ID); err != nil {
		logger.Log.Error().Str("jobID", job.ID).Err(err).Msg("failed to mark job completed")
	}
	w.publish(job, progress.PhaseUploading, 100)
}

// handleError classifies a mid-pipeline failure: notify the operator if
// the kind warrants it, then either consume a retry attempt (job goes
// back to pending for the Scheduler to re-dispatch) or fail the job
// terminally.
func (w *Worker) handleError(job *storage.Job, op string, err error) {
	kind := apperr.KindOf(err)
	if kind.NotifyOperator() {
		w.Notifier.Notify(job.ID, kind, op, err.Error())
	}

	if kind.Retriable() && job.RetryCount < w.Config.MaxRetries {
		if rerr := w.Jobs.IncrementRetry(job.ID, err.Error()); rerr != nil {
			logger.Log.Error().Str("jobID", job.ID).Err(rerr).Msg("failed to record retry")
		}
		logger.Log.Info().Str("jobID", job.ID).Str("kind", string(kind)).
			Int("retryCount", job.RetryCount+1).Msg("job scheduled for retry")
		return
	}

	w.fail(job, err)
}

// terminate fails a job without ever consuming a retry attempt, for
// kinds that are never worth retrying (no source, livestream, too
// large).
func (w *Worker) terminate(job *storage.Job, op string, err error) {
	kind := apperr.KindOf(err)
	if kind.NotifyOperator() {
		w.Notifier.Notify(job.ID, kind, op, err.Error())
	}
	w.fail(job, err)
}

func (w *Worker) fail(job *storage.Job, err error) {
	if ferr := w.Jobs.MarkFailed(job.ID, err.Error()); ferr != nil {
		logger.Log.Error().Str("jobID", job.ID).Err(ferr).Msg("failed to mark job failed")
	}
	logger.Log.Info().Str("jobID", job.ID).Str("kind", string(apperr.KindOf(err))).Msg("job failed terminally")
}

func (w *Worker) publish(job *storage.Job, phase progress.Phase, percent float64) {
	w.Progress.Publish(progress.Update{JobID: job.ID, ChatID: job.ChatID, Phase: phase, Percent: percent})
}

func audioQualityFor(spec string) converter.AudioQuality {
	switch spec {
	case "low":
		return converter.AudioQualityLow
	case "high":
		return converter.AudioQualityHigh
	case "best":
		return converter.AudioQualityBest
	default:
		return converter.AudioQualityMedium
	}
}

func videoQualityFor(spec string) converter.VideoQuality {
	switch spec {
	case "lossless":
		return converter.VideoQualityLossless
	case "high":
		return converter.VideoQualityHigh
	case "low":
		return converter.VideoQualityLow
	case "tiny":
		return converter.VideoQualityTiny
	default:
		return converter.VideoQualityMedium
	}
}
