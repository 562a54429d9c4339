package db

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrPreconditionFailed signals that a conditional update found the record
	// no longer in the expected state. Workers treat it as a duplicate or
	// concurrent delivery and discard the message.
	ErrPreconditionFailed = errors.New("block record is not in the expected state")
)

// Mutation is the full replacement value set applied by a conditional update.
// The lock is always released by the same statement.
type Mutation struct {
	Status              Status
	SubmissionAttempt   uint64
	VerificationAttempt uint64
	TxHandle            string
}

type BlockDao interface {
	GetBlockRecord(blockNumber uint64) (*BlockRecord, error)
	HighestTrackedBlockNumber() (uint64, error)
	InsertBlockRecordIfAbsent(record *BlockRecord) error
	AcquireLock(blockNumber uint64, expected Status, holder string, staleAfter time.Duration) error
	ReleaseLock(blockNumber uint64, holder string) error
	ConditionalUpdate(blockNumber uint64, expected Status, holder string, mut Mutation) error
	StaleRecords(status Status, olderThan time.Duration, limit int) ([]*BlockRecord, error)
	CountByStatus(status Status) (int64, error)
}

type BlockSvcDB struct {
	db *gorm.DB
}

func NewBlockSvcDB(db *gorm.DB) BlockDao {
	return &BlockSvcDB{
		db,
	}
}

func (d *BlockSvcDB) GetBlockRecord(blockNumber uint64) (*BlockRecord, error) {
	record := BlockRecord{}
	err := d.db.Model(BlockRecord{}).Where("block_number = ?", blockNumber).Take(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (d *BlockSvcDB) HighestTrackedBlockNumber() (uint64, error) {
	record := BlockRecord{}
	err := d.db.Model(BlockRecord{}).Order("block_number desc").Take(&record).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return record.BlockNumber, nil
}

// InsertBlockRecordIfAbsent creates the record and swallows duplicate-entry
// errors so the ingestor is idempotent across restarts and redeliveries.
func (d *BlockSvcDB) InsertBlockRecordIfAbsent(record *BlockRecord) error {
	err := d.db.Create(record).Error
	if err != nil && IsDuplicateEntryErr(err) {
		return nil
	}
	return err
}

// AcquireLock takes the worker lock in a single conditional statement. The row
// must be in the expected status and either unlocked or held by a worker whose
// lock is older than staleAfter, which makes crashed holders reclaimable.
func (d *BlockSvcDB) AcquireLock(blockNumber uint64, expected Status, holder string, staleAfter time.Duration) error {
	now := time.Now().Unix()
	cutoff := now - int64(staleAfter.Seconds())
	tx := d.db.Model(BlockRecord{}).
		Where("block_number = ? AND status = ? AND (lock_holder = '' OR locked_at < ?)", blockNumber, expected, cutoff).
		Updates(map[string]interface{}{
			"lock_holder": holder,
			"locked_at":   now,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

// ReleaseLock clears the lock without touching status. Used when a worker
// backs out of an attempt, e.g. the upstream fetch failed.
func (d *BlockSvcDB) ReleaseLock(blockNumber uint64, holder string) error {
	return d.db.Model(BlockRecord{}).
		Where("block_number = ? AND lock_holder = ?", blockNumber, holder).
		Updates(map[string]interface{}{
			"lock_holder": "",
			"locked_at":   0,
		}).Error
}

// ConditionalUpdate applies mut iff the record still carries the expected
// status and lock holder (empty holder means the row must be unlocked), and
// releases the lock in the same statement. A zero row count means some other
// delivery won the race.
func (d *BlockSvcDB) ConditionalUpdate(blockNumber uint64, expected Status, holder string, mut Mutation) error {
	tx := d.db.Model(BlockRecord{}).
		Where("block_number = ? AND status = ? AND lock_holder = ?", blockNumber, expected, holder).
		Updates(map[string]interface{}{
			"status":               mut.Status,
			"submission_attempt":   mut.SubmissionAttempt,
			"verification_attempt": mut.VerificationAttempt,
			"tx_handle":            mut.TxHandle,
			"lock_holder":          "",
			"locked_at":            0,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

// StaleRecords returns non-terminal records in the given status untouched for
// longer than olderThan. They likely lost their queue message in a
// non-transactional update/enqueue window and are re-enqueued by the ingestor
// sweep.
func (d *BlockSvcDB) StaleRecords(status Status, olderThan time.Duration, limit int) ([]*BlockRecord, error) {
	records := make([]*BlockRecord, 0)
	cutoff := time.Now().Add(-olderThan)
	err := d.db.Model(BlockRecord{}).
		Where("status = ? AND updated_at < ?", status, cutoff).
		Order("block_number asc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (d *BlockSvcDB) CountByStatus(status Status) (int64, error) {
	var count int64
	err := d.db.Model(BlockRecord{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

func InitTables(db *gorm.DB) {
	if err := db.AutoMigrate(&BlockRecord{}); err != nil {
		panic(err)
	}
}
