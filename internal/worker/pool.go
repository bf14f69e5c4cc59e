package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"shijian-backend/internal/models"
	"shijian-backend/internal/services"
)

const (
	maxRetries  = 3
	lockTTL     = 5 * time.Minute
	pollTimeout = 5 * time.Second
)

// PoemChannel is the pub/sub channel carrying updates for one poem.
func PoemChannel(poemID uuid.UUID) string {
	return "poem_updates:" + poemID.String()
}

type analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error)
}

// Pool drains the poem analysis queue. Each job warms the analysis cache
// and announces the result to poem subscribers.
type Pool struct {
	queue       *redis.Client
	pubsub      *redis.Client
	analysis    analyzer
	workerCount int
	backoff     func(attempt int) time.Duration
	logger      *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(queue, pubsub *redis.Client, analysis *services.AnalysisService, workerCount int) *Pool {
	return newPool(queue, pubsub, analysis, workerCount)
}

func newPool(queue, pubsub *redis.Client, analysis analyzer, workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		queue:       queue,
		pubsub:      pubsub,
		analysis:    analysis,
		workerCount: workerCount,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
		logger: slog.Default().With("component", "worker"),
	}
}

func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("started analysis workers", "count", p.workerCount)
}

// Stop cancels in-flight polls and waits for every worker to return.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			p.logger.Debug("worker shutting down", "worker", id)
			return
		}

		result, err := p.queue.BLPop(ctx, pollTimeout, services.AnalysisQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				p.logger.Warn("queue poll failed", "worker", id, "error", err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		if err := p.process(ctx, result[1]); err != nil {
			p.logger.Warn("analysis job dropped", "worker", id, "error", err)
		}
	}
}

// process runs one queued job. Jobs for a poem already being analyzed by
// another worker are skipped.
func (p *Pool) process(ctx context.Context, raw string) error {
	var job models.AnalysisJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return fmt.Errorf("failed to parse job: %w", err)
	}

	lockKey := "analysis_lock:" + job.PoemID.String()
	locked, err := p.queue.SetNX(ctx, lockKey, job.ID.String(), lockTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to lock poem %s: %w", job.PoemID, err)
	}
	if !locked {
		return nil
	}
	defer p.queue.Del(context.Background(), lockKey)

	p.logger.Debug("processing analysis job", "job_id", job.ID, "poem_id", job.PoemID, "attempt", job.RetryCount+1)

	resp, err := p.analysis.Analyze(ctx, job.Request)
	if err == nil && resp.Model == services.FallbackModel {
		err = errors.New(resp.Note)
	}
	if err != nil {
		p.handleFailure(&job, err)
		return nil
	}

	p.publish(ctx, job.PoemID, models.WSMessage{
		Type:    models.WSAnalysisReady,
		Payload: models.AnalysisReadyEvent{PoemID: job.PoemID, Model: resp.Model, Cached: resp.Cached},
	})
	return nil
}

func (p *Pool) handleFailure(job *models.AnalysisJob, err error) {
	job.RetryCount++

	if job.RetryCount >= maxRetries {
		p.logger.Warn("analysis job failed permanently", "job_id", job.ID, "poem_id", job.PoemID, "error", err)
		return
	}

	p.logger.Info("analysis job failed, retrying", "job_id", job.ID, "attempt", job.RetryCount, "error", err)

	jobBytes, _ := json.Marshal(job)
	time.AfterFunc(p.backoff(job.RetryCount), func() {
		if err := p.queue.LPush(context.Background(), services.AnalysisQueue, string(jobBytes)).Err(); err != nil {
			p.logger.Error("failed to requeue analysis job", "job_id", job.ID, "error", err)
		}
	})
}

func (p *Pool) publish(ctx context.Context, poemID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := p.pubsub.Publish(ctx, PoemChannel(poemID), string(data)).Err(); err != nil {
		p.logger.Warn("failed to publish poem update", "poem_id", poemID, "error", err)
	}
}
