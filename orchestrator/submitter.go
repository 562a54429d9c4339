package orchestrator

import (
	"context"

	"github.com/bnb-chain/da-orchestrator/db"
	"github.com/bnb-chain/da-orchestrator/logging"
	"github.com/bnb-chain/da-orchestrator/metrics"
	"github.com/bnb-chain/da-orchestrator/queue"
	"github.com/bnb-chain/da-orchestrator/types"
)

// processTask drives one CREATED block through DA submission. Duplicate
// deliveries are discarded by the status precondition; the lock only guards
// the window between the precondition check and the status update so no two
// workers can have a submission in flight for the same block.
func (o *Orchestrator) processTask(ctx context.Context, holder string, task queue.Task) error {
	blockNumber := task.BlockNumber
	if status, ok := o.terminal.Get(blockNumber); ok {
		logging.Logger.Debugf("discarding process task for terminal block %d (%s)", blockNumber, status)
		return nil
	}
	record, err := o.blockDao.GetBlockRecord(blockNumber)
	if err != nil {
		return err
	}
	if record == nil {
		// a process message must never exist without a record
		logging.Logger.Errorf("process task for untracked block %d, dead-lettering", blockNumber)
		metrics.DeadLetterCounter.Inc()
		return nil
	}
	if record.Status != db.Created {
		if record.Status.Terminal() {
			o.terminal.Set(blockNumber, record.Status)
		}
		logging.Logger.Debugf("discarding duplicate process task for block %d, status=%s", blockNumber, record.Status)
		return nil
	}

	if task.Attempt >= o.cfg.SubmissionMaxAttempts {
		return o.timeOutSubmission(blockNumber, holder, task.Attempt)
	}

	if err = o.blockDao.AcquireLock(blockNumber, db.Created, holder, o.lockStaleAfter()); err != nil {
		if err == db.ErrPreconditionFailed {
			logging.Logger.Debugf("block %d is locked or moved on, discarding process task", blockNumber)
			return nil
		}
		return err
	}

	// the pre-lock snapshot may be stale; the counters under the lock are
	// authoritative
	record, err = o.blockDao.GetBlockRecord(blockNumber)
	if err != nil {
		o.releaseLock(blockNumber, holder)
		return err
	}
	if record == nil || record.Status != db.Created {
		o.releaseLock(blockNumber, holder)
		return nil
	}

	diff, err := o.chain.StateDiff(ctx, blockNumber)
	if err != nil {
		// transient upstream failure, the submission budget is not consumed
		logging.Logger.Warningf("failed to fetch state diff for block %d, requeueing attempt %d, err=%s",
			blockNumber, task.Attempt, err.Error())
		o.releaseLock(blockNumber, holder)
		return o.queue.Send(ctx, queue.Task{Kind: queue.TaskProcess, BlockNumber: blockNumber, Attempt: task.Attempt}, o.requeueDelay())
	}

	handle, err := o.daClient.Submit(ctx, types.EncodeStateDiff(diff))
	if err != nil {
		logging.Logger.Warningf("DA submission attempt %d for block %d failed, err=%s", task.Attempt, blockNumber, err.Error())
		// the consumed attempt is persisted by the same statement that
		// releases the lock; the reconciliation sweep reseeds from the stored
		// counter if the requeue below is lost
		nextAttempt := task.Attempt + 1
		uerr := o.blockDao.ConditionalUpdate(blockNumber, db.Created, holder, db.Mutation{
			Status:              db.Created,
			SubmissionAttempt:   maxU64(record.SubmissionAttempt, nextAttempt),
			VerificationAttempt: record.VerificationAttempt,
			TxHandle:            "",
		})
		if uerr != nil {
			if uerr == db.ErrPreconditionFailed {
				logging.Logger.Errorf("lost lock for block %d after failed DA submission", blockNumber)
				return nil
			}
			return uerr
		}
		return o.queue.Send(ctx, queue.Task{Kind: queue.TaskProcess, BlockNumber: blockNumber, Attempt: nextAttempt}, 0)
	}

	err = o.blockDao.ConditionalUpdate(blockNumber, db.Created, holder, db.Mutation{
		Status:              db.Submitted,
		SubmissionAttempt:   maxU64(record.SubmissionAttempt, task.Attempt),
		VerificationAttempt: 0,
		TxHandle:            handle,
	})
	if err != nil {
		if err == db.ErrPreconditionFailed {
			// the lock went stale mid-submission and another worker reclaimed
			// it; that worker owns the record now
			logging.Logger.Errorf("lost lock for block %d after DA submission, handle=%s", blockNumber, handle)
			return nil
		}
		return err
	}
	metrics.SubmittedCounter.Inc()
	logging.Logger.Infof("submitted block %d to the DA layer, handle=%s, attempt=%d", blockNumber, handle, task.Attempt)

	if err = o.queue.Send(ctx, queue.Task{Kind: queue.TaskVerify, BlockNumber: blockNumber, Attempt: 1}, o.verifyDelay()); err != nil {
		// the record is SUBMITTED either way; the reconciliation sweep will
		// re-enqueue the verify task if this send is truly lost
		logging.Logger.Errorf("failed to enqueue verify task for block %d, err=%s", blockNumber, err.Error())
	}
	return nil
}

// timeOutSubmission terminally fails a block whose submission budget is
// exhausted. Goes through the lock so a stale crashed-holder lock cannot wedge
// the record forever.
func (o *Orchestrator) timeOutSubmission(blockNumber uint64, holder string, attempt uint64) error {
	if err := o.blockDao.AcquireLock(blockNumber, db.Created, holder, o.lockStaleAfter()); err != nil {
		if err == db.ErrPreconditionFailed {
			return nil
		}
		return err
	}
	record, err := o.blockDao.GetBlockRecord(blockNumber)
	if err != nil {
		o.releaseLock(blockNumber, holder)
		return err
	}
	if record == nil {
		o.releaseLock(blockNumber, holder)
		return nil
	}
	err = o.blockDao.ConditionalUpdate(blockNumber, db.Created, holder, db.Mutation{
		Status:              db.TimedOutSubmission,
		SubmissionAttempt:   maxU64(record.SubmissionAttempt, attempt),
		VerificationAttempt: record.VerificationAttempt,
		TxHandle:            "",
	})
	if err != nil {
		if err == db.ErrPreconditionFailed {
			return nil
		}
		return err
	}
	o.terminal.Set(blockNumber, db.TimedOutSubmission)
	metrics.SubmissionTimeoutCounter.Inc()
	logging.Logger.Errorf("block %d exhausted the submission budget after %d attempts", blockNumber, attempt)
	o.alerter.Alert(AlertEvent{
		BlockNumber:         blockNumber,
		Status:              db.TimedOutSubmission,
		SubmissionAttempt:   maxU64(record.SubmissionAttempt, attempt),
		VerificationAttempt: record.VerificationAttempt,
	})
	return nil
}

func (o *Orchestrator) releaseLock(blockNumber uint64, holder string) {
	if err := o.blockDao.ReleaseLock(blockNumber, holder); err != nil {
		// a leaked lock is reclaimed by staleness, nothing else to do
		logging.Logger.Errorf("failed to release lock for block %d, err=%s", blockNumber, err.Error())
	}
}
