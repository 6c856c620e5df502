// Package errors provides database error classification for the durable
// breaker and rate limit stores.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// DatabaseErrorType represents the type of database error.
type DatabaseErrorType int

const (
	// ErrorTypeUnknown represents an unknown database error.
	ErrorTypeUnknown DatabaseErrorType = iota
	// ErrorTypeDuplicateKey represents a duplicate key constraint violation (MySQL 1062).
	ErrorTypeDuplicateKey
	// ErrorTypeDataTooLong represents a data too long error (MySQL 1406).
	ErrorTypeDataTooLong
	// ErrorTypeNotFound represents a record not found error.
	ErrorTypeNotFound
	// ErrorTypeDeadlock represents a deadlock (MySQL 1213) or lock wait timeout (MySQL 1205).
	ErrorTypeDeadlock
	// ErrorTypeConnectionError represents a database connection error.
	ErrorTypeConnectionError
	// ErrorTypeInvalidValue represents an invalid value error.
	ErrorTypeInvalidValue
)

// DatabaseError wraps a database error with classification information.
type DatabaseError struct {
	Type         DatabaseErrorType
	OriginalErr  error
	MySQLErrCode uint16
	Message      string
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.MySQLErrCode > 0 {
		return fmt.Sprintf("%s (MySQL error %d): %v", e.Message, e.MySQLErrCode, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// ClassifyDBError classifies a database error into a specific error type.
//
// Typed errors are checked first:
//   - gorm.ErrRecordNotFound → ErrorTypeNotFound
//   - MySQL 1062 → ErrorTypeDuplicateKey
//   - MySQL 1213/1205 → ErrorTypeDeadlock
//   - MySQL 2006/2013 and mysql.ErrInvalidConn → ErrorTypeConnectionError
//
// Message heuristics are the fallback for drivers that return plain errors.
func ClassifyDBError(err error) *DatabaseError {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DatabaseError{
			Type:        ErrorTypeNotFound,
			OriginalErr: err,
			Message:     "record not found",
		}
	}

	if errors.Is(err, mysql.ErrInvalidConn) {
		return &DatabaseError{
			Type:        ErrorTypeConnectionError,
			OriginalErr: err,
			Message:     "database connection error",
		}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return classifyMySQLError(mysqlErr)
	}

	if isConnectionError(err.Error()) {
		return &DatabaseError{
			Type:        ErrorTypeConnectionError,
			OriginalErr: err,
			Message:     "database connection error",
		}
	}

	return &DatabaseError{
		Type:        ErrorTypeUnknown,
		OriginalErr: err,
		Message:     "unknown database error",
	}
}

func classifyMySQLError(err *mysql.MySQLError) *DatabaseError {
	dbErr := &DatabaseError{
		Type:         ErrorTypeUnknown,
		OriginalErr:  err,
		MySQLErrCode: err.Number,
		Message:      "MySQL error",
	}

	switch err.Number {
	case 1062: // ER_DUP_ENTRY
		dbErr.Type = ErrorTypeDuplicateKey
		dbErr.Message = "duplicate key constraint violation"
	case 1406: // ER_DATA_TOO_LONG
		dbErr.Type = ErrorTypeDataTooLong
		dbErr.Message = "data too long for column"
	case 1213: // ER_LOCK_DEADLOCK
		dbErr.Type = ErrorTypeDeadlock
		dbErr.Message = "deadlock detected"
	case 1205: // ER_LOCK_WAIT_TIMEOUT
		dbErr.Type = ErrorTypeDeadlock
		dbErr.Message = "lock wait timeout exceeded"
	case 2006, 2013: // CR_SERVER_GONE_ERROR, CR_SERVER_LOST
		dbErr.Type = ErrorTypeConnectionError
		dbErr.Message = "database connection error"
	case 1048, 1265, 1366: // ER_BAD_NULL_ERROR, ER_WARN_DATA_TRUNCATED, ER_TRUNCATED_WRONG_VALUE
		dbErr.Type = ErrorTypeInvalidValue
		dbErr.Message = "invalid or truncated value"
	}

	return dbErr
}

var connectionKeywords = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"connection lost",
	"can't connect",
	"dial tcp",
	"bad connection",
}

// isConnectionError checks if the error message indicates a connection problem.
func isConnectionError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, keyword := range connectionKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// IsNotFoundError checks if the error is a record not found error.
func IsNotFoundError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeNotFound
}

// IsDuplicateKeyError checks if the error is a duplicate key constraint violation.
func IsDuplicateKeyError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeDuplicateKey
}

// IsTransientError reports whether repeating the statement may succeed:
// deadlocks, lock wait timeouts and dropped connections.
func IsTransientError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && (dbErr.Type == ErrorTypeDeadlock || dbErr.Type == ErrorTypeConnectionError)
}
