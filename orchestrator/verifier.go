package orchestrator

import (
	"context"

	"github.com/bnb-chain/da-orchestrator/db"
	"github.com/bnb-chain/da-orchestrator/external/da"
	"github.com/bnb-chain/da-orchestrator/logging"
	"github.com/bnb-chain/da-orchestrator/metrics"
	"github.com/bnb-chain/da-orchestrator/queue"
)

// verifyTask polls the DA layer for the finality of one submitted block. A
// rejected or orphaned transaction sends the record back to CREATED for a
// fresh submission cycle; everything else either finishes the record or
// schedules the next poll.
func (o *Orchestrator) verifyTask(ctx context.Context, task queue.Task) error {
	blockNumber := task.BlockNumber
	if status, ok := o.terminal.Get(blockNumber); ok {
		logging.Logger.Debugf("discarding verify task for terminal block %d (%s)", blockNumber, status)
		return nil
	}
	record, err := o.blockDao.GetBlockRecord(blockNumber)
	if err != nil {
		return err
	}
	if record == nil {
		logging.Logger.Errorf("verify task for untracked block %d, dead-lettering", blockNumber)
		metrics.DeadLetterCounter.Inc()
		return nil
	}
	if record.Status != db.Submitted {
		if record.Status.Terminal() {
			o.terminal.Set(blockNumber, record.Status)
		}
		logging.Logger.Debugf("discarding duplicate verify task for block %d, status=%s", blockNumber, record.Status)
		return nil
	}
	if record.TxHandle == "" {
		// invariant violation: SUBMITTED requires a transaction handle
		logging.Logger.Errorf("block %d is SUBMITTED with no transaction handle, dead-lettering verify task", blockNumber)
		metrics.DeadLetterCounter.Inc()
		return nil
	}

	status, err := o.daClient.Status(ctx, record.TxHandle)
	if err != nil {
		// a failed status query consumes the poll the same way an observed
		// pending transaction does
		logging.Logger.Warningf("failed to query DA status for block %d, handle=%s, err=%s",
			blockNumber, record.TxHandle, err.Error())
		status = da.TxStatusPending
	}

	switch status {
	case da.TxStatusFinalized:
		err = o.blockDao.ConditionalUpdate(blockNumber, db.Submitted, "", db.Mutation{
			Status:              db.Success,
			SubmissionAttempt:   record.SubmissionAttempt,
			VerificationAttempt: maxU64(record.VerificationAttempt, task.Attempt),
			TxHandle:            record.TxHandle,
		})
		if err != nil {
			if err == db.ErrPreconditionFailed {
				return nil
			}
			return err
		}
		o.terminal.Set(blockNumber, db.Success)
		metrics.FinalizedCounter.Inc()
		logging.Logger.Infof("block %d finalized on the DA layer, handle=%s", blockNumber, record.TxHandle)
		return nil

	case da.TxStatusPending:
		if task.Attempt < o.cfg.VerificationMaxAttempts {
			err = o.blockDao.ConditionalUpdate(blockNumber, db.Submitted, "", db.Mutation{
				Status:              db.Submitted,
				SubmissionAttempt:   record.SubmissionAttempt,
				VerificationAttempt: maxU64(record.VerificationAttempt, task.Attempt),
				TxHandle:            record.TxHandle,
			})
			if err != nil {
				if err == db.ErrPreconditionFailed {
					return nil
				}
				return err
			}
			return o.queue.Send(ctx, queue.Task{Kind: queue.TaskVerify, BlockNumber: blockNumber, Attempt: task.Attempt + 1}, o.verifyDelay())
		}
		return o.timeOutVerification(blockNumber, record, task.Attempt)

	case da.TxStatusRejectedOrNotFound:
		// the transaction will never finalize; hand the block back to the
		// submission phase with a fresh cycle
		newAttempt := record.SubmissionAttempt + 1
		err = o.blockDao.ConditionalUpdate(blockNumber, db.Submitted, "", db.Mutation{
			Status:              db.Created,
			SubmissionAttempt:   newAttempt,
			VerificationAttempt: 0,
			TxHandle:            "",
		})
		if err != nil {
			if err == db.ErrPreconditionFailed {
				return nil
			}
			return err
		}
		logging.Logger.Warningf("DA transaction for block %d was rejected or orphaned, handle=%s, resubmitting (attempt %d)",
			blockNumber, record.TxHandle, newAttempt)
		return o.queue.Send(ctx, queue.Task{Kind: queue.TaskProcess, BlockNumber: blockNumber, Attempt: newAttempt}, 0)
	}
	return nil
}

func (o *Orchestrator) timeOutVerification(blockNumber uint64, record *db.BlockRecord, attempt uint64) error {
	err := o.blockDao.ConditionalUpdate(blockNumber, db.Submitted, "", db.Mutation{
		Status:              db.TimedOutVerification,
		SubmissionAttempt:   record.SubmissionAttempt,
		VerificationAttempt: maxU64(record.VerificationAttempt, attempt),
		TxHandle:            record.TxHandle,
	})
	if err != nil {
		if err == db.ErrPreconditionFailed {
			return nil
		}
		return err
	}
	o.terminal.Set(blockNumber, db.TimedOutVerification)
	metrics.VerificationTimeoutCounter.Inc()
	logging.Logger.Errorf("block %d exhausted the verification budget after %d polls, handle=%s",
		blockNumber, attempt, record.TxHandle)
	o.alerter.Alert(AlertEvent{
		BlockNumber:         blockNumber,
		Status:              db.TimedOutVerification,
		SubmissionAttempt:   record.SubmissionAttempt,
		VerificationAttempt: maxU64(record.VerificationAttempt, attempt),
	})
	return nil
}
