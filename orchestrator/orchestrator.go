package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bnb-chain/da-orchestrator/cache"
	"github.com/bnb-chain/da-orchestrator/config"
	"github.com/bnb-chain/da-orchestrator/db"
	"github.com/bnb-chain/da-orchestrator/external/da"
	"github.com/bnb-chain/da-orchestrator/logging"
	"github.com/bnb-chain/da-orchestrator/metrics"
	"github.com/bnb-chain/da-orchestrator/queue"
	"github.com/bnb-chain/da-orchestrator/types"
)

const (
	receiveRetryPause  = 1 * time.Second
	statusGaugePeriod  = 30 * time.Second
	ingestBatchLimit   = 256
	reconcileBatchSize = 64
)

// ChainReader is the read-only contract the orchestrator needs from the
// upstream node.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	StateDiff(ctx context.Context, blockNumber uint64) (*types.StateDiff, error)
}

// Orchestrator moves every L2 block through DA submission and verification.
// All per-block state lives in the tracker store; the queue only carries
// at-least-once work hints, so every handler is idempotent under redelivery.
type Orchestrator struct {
	blockDao db.BlockDao
	queue    queue.Queue
	chain    ChainReader
	daClient da.Client
	alerter  Alerter
	terminal cache.Cache
	cfg      *config.OrchestratorConfig

	holderPrefix string
}

func NewOrchestrator(
	blockDao db.BlockDao,
	q queue.Queue,
	chain ChainReader,
	daClient da.Client,
	alerter Alerter,
	cfg *config.OrchestratorConfig,
) *Orchestrator {
	terminal, err := cache.NewLocalCache(cache.DefaultCacheSize)
	if err != nil {
		panic(err)
	}
	hostname, _ := os.Hostname()
	return &Orchestrator{
		blockDao:     blockDao,
		queue:        q,
		chain:        chain,
		daClient:     daClient,
		alerter:      alerter,
		terminal:     terminal,
		cfg:          cfg,
		holderPrefix: fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}
}

func (o *Orchestrator) StartLoop() {
	ctx := context.Background()
	go o.ingestLoop(ctx)
	for i := 0; i < o.cfg.Workers; i++ {
		go o.workerLoop(ctx, i)
	}
	go o.statusGaugeLoop(ctx)
}

func (o *Orchestrator) workerLoop(ctx context.Context, id int) {
	holder := fmt.Sprintf("%s-w%d", o.holderPrefix, id)
	for {
		delivery, err := o.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Logger.Errorf("failed to receive task, err=%s", err.Error())
			time.Sleep(receiveRetryPause)
			continue
		}
		task := delivery.Task
		var handleErr error
		switch task.Kind {
		case queue.TaskProcess:
			handleErr = o.processTask(ctx, holder, task)
		case queue.TaskVerify:
			handleErr = o.verifyTask(ctx, task)
		default:
			logging.Logger.Errorf("unknown task kind %d for block %d, dead-lettering", task.Kind, task.BlockNumber)
			metrics.DeadLetterCounter.Inc()
		}
		if handleErr != nil {
			// unexpected store failure; leave the message to redelivery
			logging.Logger.Errorf("failed to handle %s task for block %d, err=%s", task.Kind, task.BlockNumber, handleErr.Error())
			if err = delivery.Nack(); err != nil {
				logging.Logger.Errorf("failed to nack task for block %d, err=%s", task.BlockNumber, err.Error())
			}
			continue
		}
		if err = delivery.Ack(); err != nil {
			logging.Logger.Errorf("failed to ack task for block %d, err=%s", task.BlockNumber, err.Error())
		}
	}
}

func (o *Orchestrator) statusGaugeLoop(ctx context.Context) {
	statuses := []db.Status{db.Created, db.Submitted, db.Success, db.TimedOutSubmission, db.TimedOutVerification}
	ticker := time.NewTicker(statusGaugePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, status := range statuses {
			count, err := o.blockDao.CountByStatus(status)
			if err != nil {
				logging.Logger.Errorf("failed to count records with status %s, err=%s", status, err.Error())
				continue
			}
			metrics.BlockStatusGauge.WithLabelValues(status.String()).Set(float64(count))
		}
	}
}

func (o *Orchestrator) verifyDelay() time.Duration {
	return time.Duration(o.cfg.VerifyDelaySec) * time.Second
}

func (o *Orchestrator) requeueDelay() time.Duration {
	return time.Duration(o.cfg.RequeueDelaySec) * time.Second
}

func (o *Orchestrator) lockStaleAfter() time.Duration {
	return time.Duration(o.cfg.LockStaleSec) * time.Second
}

func (o *Orchestrator) reseedAfter() time.Duration {
	return time.Duration(o.cfg.ReseedAfterSec) * time.Second
}

func (o *Orchestrator) ingestInterval() time.Duration {
	return time.Duration(o.cfg.IngestIntervalSec) * time.Second
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
