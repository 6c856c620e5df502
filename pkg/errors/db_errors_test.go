package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyDBError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyDBError(nil))
	assert.False(t, IsTransientError(nil))
}

func TestClassifyDBError_GORMRecordNotFound(t *testing.T) {
	dbErr := ClassifyDBError(fmt.Errorf("get circuit: %w", gorm.ErrRecordNotFound))

	assert.NotNil(t, dbErr)
	assert.Equal(t, ErrorTypeNotFound, dbErr.Type)
	assert.True(t, errors.Is(dbErr, gorm.ErrRecordNotFound))
	assert.True(t, IsNotFoundError(gorm.ErrRecordNotFound))
}

func TestClassifyDBError_MySQLCodes(t *testing.T) {
	tests := []struct {
		name      string
		code      uint16
		expected  DatabaseErrorType
		transient bool
	}{
		{"duplicate entry", 1062, ErrorTypeDuplicateKey, false},
		{"data too long", 1406, ErrorTypeDataTooLong, false},
		{"deadlock", 1213, ErrorTypeDeadlock, true},
		{"lock wait timeout", 1205, ErrorTypeDeadlock, true},
		{"server gone away", 2006, ErrorTypeConnectionError, true},
		{"server lost", 2013, ErrorTypeConnectionError, true},
		{"null column", 1048, ErrorTypeInvalidValue, false},
		{"unknown code", 1146, ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mysqlErr := &mysql.MySQLError{Number: tt.code, Message: tt.name}
			dbErr := ClassifyDBError(mysqlErr)

			assert.Equal(t, tt.expected, dbErr.Type)
			assert.Equal(t, tt.code, dbErr.MySQLErrCode)
			assert.Contains(t, dbErr.Error(), fmt.Sprintf("MySQL error %d", tt.code))
			assert.Equal(t, tt.transient, IsTransientError(mysqlErr))
		})
	}

	assert.True(t, IsDuplicateKeyError(&mysql.MySQLError{Number: 1062}))
}

func TestClassifyDBError_ConnectionHeuristics(t *testing.T) {
	tests := []string{
		"dial tcp 127.0.0.1:3306: connect: connection refused",
		"read: Connection Reset by peer",
		"i/o timeout",
		"driver: bad connection",
	}

	for _, msg := range tests {
		t.Run(msg, func(t *testing.T) {
			dbErr := ClassifyDBError(errors.New(msg))
			assert.Equal(t, ErrorTypeConnectionError, dbErr.Type)
			assert.True(t, IsTransientError(errors.New(msg)))
		})
	}

	assert.True(t, IsTransientError(mysql.ErrInvalidConn))
}

func TestClassifyDBError_Unknown(t *testing.T) {
	dbErr := ClassifyDBError(errors.New("something odd"))
	assert.Equal(t, ErrorTypeUnknown, dbErr.Type)
	assert.Equal(t, "unknown database error: something odd", dbErr.Error())
}
