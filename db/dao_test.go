package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) (BlockDao, *gorm.DB) {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "orchestrator.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	InitTables(gormDB)
	return NewBlockSvcDB(gormDB), gormDB
}

func TestInsertBlockRecordIfAbsent(t *testing.T) {
	dao, _ := newTestDB(t)

	require.NoError(t, dao.InsertBlockRecordIfAbsent(&BlockRecord{BlockNumber: 100, Status: Created, SubmissionAttempt: 1}))
	// a duplicate insert is swallowed and must not clobber the existing row
	require.NoError(t, dao.InsertBlockRecordIfAbsent(&BlockRecord{BlockNumber: 100, Status: Created, SubmissionAttempt: 7}))

	record, err := dao.GetBlockRecord(100)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, Created, record.Status)
	require.Equal(t, uint64(1), record.SubmissionAttempt)
}

func TestGetBlockRecordAbsent(t *testing.T) {
	dao, _ := newTestDB(t)
	record, err := dao.GetBlockRecord(42)
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestHighestTrackedBlockNumber(t *testing.T) {
	dao, _ := newTestDB(t)

	highest, err := dao.HighestTrackedBlockNumber()
	require.NoError(t, err)
	require.Equal(t, uint64(0), highest)

	require.NoError(t, dao.InsertBlockRecordIfAbsent(&BlockRecord{BlockNumber: 3, Status: Created, SubmissionAttempt: 1}))
	require.NoError(t, dao.InsertBlockRecordIfAbsent(&BlockRecord{BlockNumber: 7, Status: Created, SubmissionAttempt: 1}))

	highest, err = dao.HighestTrackedBlockNumber()
	require.NoError(t, err)
	require.Equal(t, uint64(7), highest)
}

func TestConditionalUpdate(t *testing.T) {
	dao, _ := newTestDB(t)
	require.NoError(t, dao.InsertBlockRecordIfAbsent(&BlockRecord{BlockNumber: 100, Status: Created, SubmissionAttempt: 1}))

	// wrong expected status is a precondition failure, not an error
	err := dao.ConditionalUpdate(100, Submitted, "", Mutation{Status: Success})
	require.ErrorIs(t, err, ErrPreconditionFailed)

	require.NoError(t, dao.ConditionalUpdate(100, Created, "", Mutation{
		Status:            Submitted,
		SubmissionAttempt: 1,
		TxHandle:          "H",
	}))

	record, err := dao.GetBlockRecord(100)
	require.NoError(t, err)
	require.Equal(t, Submitted, record.Status)
	require.Equal(t, "H", record.TxHandle)
	require.Empty(t, record.LockHolder)

	// replaying the same transition finds the precondition gone
	err = dao.ConditionalUpdate(100, Created, "", Mutation{Status: Submitted, SubmissionAttempt: 1, TxHandle: "H"})
	require.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestAcquireLockMutualExclusion(t *testing.T) {
	dao, _ := newTestDB(t)
	require.NoError(t, dao.InsertBlockRecordIfAbsent(&BlockRecord{BlockNumber: 100, Status: Created, SubmissionAttempt: 1}))

	require.NoError(t, dao.AcquireLock(100, Created, "worker-a", time.Minute))

	// a second worker cannot pass while the lock is fresh
	err := dao.AcquireLock(100, Created, "worker-b", time.Minute)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	// wrong status precondition also fails
	err = dao.AcquireLock(100, Submitted, "worker-b", time.Minute)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	require.NoError(t, dao.ReleaseLock(100, "worker-a"))
	require.NoError(t, dao.AcquireLock(100, Created, "worker-b", time.Minute))
}

func TestAcquireLockReclaimsStale(t *testing.T) {
	dao, gormDB := newTestDB(t)
	require.NoError(t, dao.InsertBlockRecordIfAbsent(&BlockRecord{BlockNumber: 100, Status: Created, SubmissionAttempt: 1}))
	require.NoError(t, dao.AcquireLock(100, Created, "crashed-worker", time.Minute))

	// backdate the lock past the liveness threshold
	stale := time.Now().Add(-10 * time.Minute).Unix()
	require.NoError(t, gormDB.Model(BlockRecord{}).Where("block_number = ?", 100).
		Update("locked_at", stale).Error)

	require.NoError(t, dao.AcquireLock(100, Created, "worker-b", time.Minute))
	record, err := dao.GetBlockRecord(100)
	require.NoError(t, err)
	require.Equal(t, "worker-b", record.LockHolder)
}

func TestConditionalUpdateRequiresHolder(t *testing.T) {
	dao, _ := newTestDB(t)
	require.NoError(t, dao.InsertBlockRecordIfAbsent(&BlockRecord{BlockNumber: 100, Status: Created, SubmissionAttempt: 1}))
	require.NoError(t, dao.AcquireLock(100, Created, "worker-a", time.Minute))

	// an update that does not carry the holder cannot slip past the lock
	err := dao.ConditionalUpdate(100, Created, "", Mutation{Status: Submitted, SubmissionAttempt: 1, TxHandle: "H"})
	require.ErrorIs(t, err, ErrPreconditionFailed)

	require.NoError(t, dao.ConditionalUpdate(100, Created, "worker-a", Mutation{
		Status:            Submitted,
		SubmissionAttempt: 1,
		TxHandle:          "H",
	}))
	record, err := dao.GetBlockRecord(100)
	require.NoError(t, err)
	require.Equal(t, Submitted, record.Status)
	require.Empty(t, record.LockHolder)
	require.Zero(t, record.LockedAt)
}

func TestStaleRecords(t *testing.T) {
	dao, gormDB := newTestDB(t)
	require.NoError(t, dao.InsertBlockRecordIfAbsent(&BlockRecord{BlockNumber: 1, Status: Created, SubmissionAttempt: 1}))
	require.NoError(t, dao.InsertBlockRecordIfAbsent(&BlockRecord{BlockNumber: 2, Status: Created, SubmissionAttempt: 1}))

	records, err := dao.StaleRecords(Created, time.Hour, 10)
	require.NoError(t, err)
	require.Empty(t, records)

	backdated := time.Now().Add(-2 * time.Hour)
	require.NoError(t, gormDB.Model(BlockRecord{}).Where("block_number = ?", 1).
		Update("updated_at", backdated).Error)

	records, err = dao.StaleRecords(Created, time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, uint64(1), records[0].BlockNumber)
}

func TestCountByStatus(t *testing.T) {
	dao, _ := newTestDB(t)
	require.NoError(t, dao.InsertBlockRecordIfAbsent(&BlockRecord{BlockNumber: 1, Status: Created, SubmissionAttempt: 1}))
	require.NoError(t, dao.InsertBlockRecordIfAbsent(&BlockRecord{BlockNumber: 2, Status: Created, SubmissionAttempt: 1}))
	require.NoError(t, dao.ConditionalUpdate(2, Created, "", Mutation{Status: Submitted, SubmissionAttempt: 1, TxHandle: "H"}))

	count, err := dao.CountByStatus(Created)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	count, err = dao.CountByStatus(Submitted)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}
