package db

import "time"

type Status int

const (
	Created              Status = 0
	Submitted            Status = 1
	Success              Status = 2
	TimedOutSubmission   Status = 3
	TimedOutVerification Status = 4
)

func (s Status) Terminal() bool {
	return s == Success || s == TimedOutSubmission || s == TimedOutVerification
}

func (s Status) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Submitted:
		return "SUBMITTED"
	case Success:
		return "SUCCESS"
	case TimedOutSubmission:
		return "TIMED_OUT_SUBMISSION"
	case TimedOutVerification:
		return "TIMED_OUT_VERIFICATION"
	}
	return "UNKNOWN"
}

// BlockRecord is the per-block orchestration row. Status moves only through
// conditional updates gated on the expected prior status, so concurrent and
// redelivered messages for the same block produce a single winner.
type BlockRecord struct {
	Id                  int64
	BlockNumber         uint64 `gorm:"NOT NULL;uniqueIndex:idx_block_record_number"`
	Status              Status `gorm:"NOT NULL;index:idx_block_record_status"`
	SubmissionAttempt   uint64 `gorm:"NOT NULL"`
	VerificationAttempt uint64 `gorm:"NOT NULL"`
	TxHandle            string `gorm:"size:256"` // DA transaction handle, set while SUBMITTED and onwards
	LockHolder          string `gorm:"size:128"` // empty when unlocked
	LockedAt            int64  // unix seconds, 0 when unlocked
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (*BlockRecord) TableName() string {
	return "block_record"
}
