package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/dayplan/internal/materializer"
	"github.com/benvon/dayplan/internal/metrics"
	"github.com/benvon/dayplan/internal/queue"
	"go.uber.org/zap"
)

// WindowMaterializer is the part of the materializer a prefetch job needs
type WindowMaterializer interface {
	Materialize(ctx context.Context, req materializer.Request) (*materializer.Result, error)
	MaxRangeDays() int
}

// Prefetcher processes materialize_window jobs
type Prefetcher struct {
	materializer WindowMaterializer
	jobQueue     queue.JobQueue // for re-enqueueing jobs with a delay
	logger       *zap.Logger
	baseDelay    time.Duration
}

// NewPrefetcher creates a new prefetcher. jobQueue may be nil, in which case
// failed jobs are requeued immediately instead of being delayed.
func NewPrefetcher(m WindowMaterializer, jobQueue queue.JobQueue, logger *zap.Logger) *Prefetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prefetcher{
		materializer: m,
		jobQueue:     jobQueue,
		logger:       logger,
		baseDelay:    5 * time.Second,
	}
}

// errPermanent marks job errors that a retry cannot fix
var errPermanent = errors.New("permanent job failure")

// ProcessMaterializeJob materializes the job's window. Partial unit failures
// are returned as an error so the window is retried; materialization is
// idempotent, so already-created instances are simply found again.
func (p *Prefetcher) ProcessMaterializeJob(ctx context.Context, job *queue.Job) error {
	window, err := materializer.NewDateRange(job.Start, job.End, p.materializer.MaxRangeDays())
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}

	result, err := p.materializer.Materialize(ctx, materializer.Request{
		UserID:      job.UserID,
		WorkspaceID: job.WorkspaceID,
		Range:       window,
		Visibility:  job.Visibility,
		Form:        "prefetch",
	})
	if err != nil {
		return fmt.Errorf("failed to materialize window %s: %w", window, err)
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("materialized window %s with %d failed units: %w", window, len(result.Failures), result.Failures[0].Err)
	}

	p.logger.Info("prefetch_window_materialized",
		zap.String("job_id", job.ID.String()),
		zap.String("user_id", job.UserID.String()),
		zap.String("workspace_id", job.WorkspaceID.String()),
		zap.String("range", window.String()),
		zap.Int("created", result.Created),
		zap.Int("existing", result.Existing),
	)
	return nil
}

// ProcessJob processes a job based on its type and settles the message
func (p *Prefetcher) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if job.IsExpired() {
		p.logger.Info("prefetch_job_expired", zap.String("job_id", job.ID.String()))
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack expired job: %w", ackErr)
		}
		return nil
	}

	switch job.Type {
	case queue.JobTypeMaterializeWindow:
		if err := p.ProcessMaterializeJob(ctx, job); err != nil {
			metrics.RecordPrefetch("failed")
			return p.handleJobError(ctx, msg, job, err)
		}
		metrics.RecordPrefetch("processed")
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	default:
		// unknown job type, send to DLQ
		if nackErr := msg.Nack(false); nackErr != nil {
			p.logger.Warn("failed_to_nack_unknown_job", zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// handleJobError retries with exponential backoff through the delayed queue,
// and dead-letters the job once its retries are spent
func (p *Prefetcher) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	if errors.Is(err, errPermanent) || !job.CanRetry() {
		p.logger.Error("prefetch_job_dead_lettered",
			zap.String("job_id", job.ID.String()),
			zap.Int("retry_count", job.RetryCount),
			zap.Error(err),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			p.logger.Warn("failed_to_nack_job_to_dlq", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (dead-lettered): %w", err)
	}

	if p.jobQueue != nil {
		delay := p.retryDelay(job.RetryCount)
		notBefore := time.Now().Add(delay)
		retry := *job
		retry.NotBefore = &notBefore
		retry.RetryCount = job.RetryCount + 1
		if retry.NotAfter != nil && retry.NotAfter.Before(notBefore) {
			// keep the retry alive long enough to run
			notAfter := notBefore.Add(queue.DefaultJobTTL)
			retry.NotAfter = &notAfter
		}

		enqueueErr := p.jobQueue.Enqueue(ctx, &retry)
		if enqueueErr == nil {
			if ackErr := msg.Ack(); ackErr != nil {
				p.logger.Warn("failed_to_ack_retried_job", zap.Error(ackErr))
			}
			p.logger.Warn("prefetch_job_retry_scheduled",
				zap.String("job_id", job.ID.String()),
				zap.Int("attempt", retry.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			return fmt.Errorf("job failed (retry scheduled): %w", err)
		}
		p.logger.Warn("failed_to_reenqueue_job", zap.String("job_id", job.ID.String()), zap.Error(enqueueErr))
	}

	job.IncrementRetry()
	p.logger.Warn("prefetch_job_requeued",
		zap.String("job_id", job.ID.String()),
		zap.Int("attempt", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Error(err),
	)
	if nackErr := msg.Nack(true); nackErr != nil {
		p.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (will retry): %w", err)
}

func (p *Prefetcher) retryDelay(retryCount int) time.Duration {
	return p.baseDelay * time.Duration(1<<retryCount)
}

// Run consumes messages until ctx is cancelled or the message channel closes
func (p *Prefetcher) Run(ctx context.Context, messages <-chan *queue.Message, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-messages:
			if !ok {
				p.logger.Info("message_channel_closed")
				return
			}
			if err := p.ProcessJob(ctx, msg); err != nil {
				p.logger.Error("failed_to_process_job",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
					zap.Error(err),
				)
			}
		}
	}
}
