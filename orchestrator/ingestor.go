package orchestrator

import (
	"context"
	"time"

	"github.com/bnb-chain/da-orchestrator/db"
	"github.com/bnb-chain/da-orchestrator/logging"
	"github.com/bnb-chain/da-orchestrator/metrics"
	"github.com/bnb-chain/da-orchestrator/queue"
)

func (o *Orchestrator) ingestLoop(ctx context.Context) {
	ticker := time.NewTicker(o.ingestInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := o.ingest(ctx); err != nil {
			logging.Logger.Errorf("ingest pass failed, err=%s", err.Error())
			continue
		}
		if err := o.reconcile(ctx); err != nil {
			logging.Logger.Errorf("reconcile pass failed, err=%s", err.Error())
		}
	}
}

// ingest seeds a record and a process task for every block past the highest
// tracked one. Insert happens before enqueue, so a process message never
// references an untracked block; the reverse window (record without message)
// is covered by the reconciliation sweep.
func (o *Orchestrator) ingest(ctx context.Context) error {
	highest, err := o.blockDao.HighestTrackedBlockNumber()
	if err != nil {
		return err
	}
	next := o.cfg.StartBlock
	if next <= highest {
		next = highest + 1
	}
	latest, err := o.chain.LatestBlockNumber(ctx)
	if err != nil {
		// upstream hiccup; the next tick retries
		logging.Logger.Warningf("failed to fetch latest block number, err=%s", err.Error())
		return nil
	}

	count := 0
	for blockNumber := next; blockNumber <= latest && count < ingestBatchLimit; blockNumber++ {
		record := &db.BlockRecord{
			BlockNumber:       blockNumber,
			Status:            db.Created,
			SubmissionAttempt: 1,
		}
		if err = o.blockDao.InsertBlockRecordIfAbsent(record); err != nil {
			return err
		}
		if err = o.queue.Send(ctx, queue.Task{Kind: queue.TaskProcess, BlockNumber: blockNumber, Attempt: 1}, 0); err != nil {
			return err
		}
		metrics.LatestIngestedBlockGauge.Set(float64(blockNumber))
		count++
	}
	if count > 0 {
		logging.Logger.Infof("seeded %d new blocks up to %d", count, next+uint64(count)-1)
	}
	return nil
}

// reconcile re-enqueues work for records that have been sitting in a
// non-terminal status with no visible progress, recovering from lost enqueues
// after a crash between the store write and the queue send. Duplicate sends
// are harmless; the status preconditions discard them.
func (o *Orchestrator) reconcile(ctx context.Context) error {
	created, err := o.blockDao.StaleRecords(db.Created, o.reseedAfter(), reconcileBatchSize)
	if err != nil {
		return err
	}
	for _, record := range created {
		logging.Logger.Warningf("re-enqueueing stale CREATED block %d, attempt=%d", record.BlockNumber, record.SubmissionAttempt)
		task := queue.Task{Kind: queue.TaskProcess, BlockNumber: record.BlockNumber, Attempt: maxU64(record.SubmissionAttempt, 1)}
		if err = o.queue.Send(ctx, task, 0); err != nil {
			return err
		}
	}

	submitted, err := o.blockDao.StaleRecords(db.Submitted, o.reseedAfter(), reconcileBatchSize)
	if err != nil {
		return err
	}
	for _, record := range submitted {
		logging.Logger.Warningf("re-enqueueing stale SUBMITTED block %d, poll=%d", record.BlockNumber, record.VerificationAttempt+1)
		task := queue.Task{Kind: queue.TaskVerify, BlockNumber: record.BlockNumber, Attempt: record.VerificationAttempt + 1}
		if err = o.queue.Send(ctx, task, o.verifyDelay()); err != nil {
			return err
		}
	}
	return nil
}
