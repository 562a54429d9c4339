package db

import (
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrDuplicateEntryCode = 1062
)

func MysqlErrCode(err error) int {
	mysqlErr, ok := err.(*mysql.MySQLError)
	if !ok {
		return 0
	}
	return int(mysqlErr.Number)
}

// IsDuplicateEntryErr covers both the mysql and the sqlite dialect.
func IsDuplicateEntryErr(err error) bool {
	if MysqlErrCode(err) == ErrDuplicateEntryCode {
		return true
	}
	return strings.Contains(err.Error(), "Duplicate entry") ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}
