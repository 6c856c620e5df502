package data

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"OracleGate/internal/model"
	pkglog "OracleGate/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// auditOperatorSystem marks transitions caused by guarded calls.
const auditOperatorSystem = "system"

// AuditLog is the GORM model for circuit_audit_logs table
type AuditLog struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	Circuit    string    `gorm:"column:circuit;type:varchar(64);not null;index"`
	ActionType string    `gorm:"column:action_type;type:varchar(50);not null"`
	Details    string    `gorm:"column:details;type:json"`
	Operator   string    `gorm:"column:operator;type:varchar(64);default:system;not null"`
	RequestID  string    `gorm:"column:request_id;type:varchar(32)"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "circuit_audit_logs"
}

// AuditLoggerImpl implements biz.AuditLogger. With the MySQL store events are
// written asynchronously to circuit_audit_logs; with any other store they are
// only logged.
type AuditLoggerImpl struct {
	db      *gorm.DB
	logChan chan *AuditLog
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	logger  *log.Helper
}

// NewAuditLogger creates a new audit logger. The cleanup drains queued events.
func NewAuditLogger(d *Data, logger log.Logger) (*AuditLoggerImpl, func()) {
	al := &AuditLoggerImpl{
		logChan: make(chan *AuditLog, 1000), // Buffer size 1000 to prevent blocking
		done:    make(chan struct{}),
		logger:  log.NewHelper(log.With(logger, "module", "data/audit")),
	}
	if d != nil {
		al.db = d.db
	}

	if al.db == nil {
		close(al.done)
		return al, func() {}
	}

	// Start background goroutine for async logging
	go al.start()

	return al, al.close
}

// start processes audit log events from channel
func (a *AuditLoggerImpl) start() {
	defer close(a.done)
	for event := range a.logChan {
		ctx := context.Background()
		if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
			a.logger.Errorw("msg", "failed to write audit log",
				"circuit", event.Circuit,
				"action_type", event.ActionType,
				"error", err)
		} else {
			a.logger.Debugw("msg", "audit log written",
				"circuit", event.Circuit,
				"action_type", event.ActionType)
		}
	}
}

func (a *AuditLoggerImpl) close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.logChan)
	}
	a.mu.Unlock()
	<-a.done
}

// LogCircuitTripped logs a breaker opening
func (a *AuditLoggerImpl) LogCircuitTripped(ctx context.Context, circuit string, from model.CircuitState, failureCount int, trippedAt time.Time) {
	a.record(ctx, circuit, AuditEventCircuitTripped, auditOperatorSystem, map[string]interface{}{
		"from":          string(from),
		"failure_count": failureCount,
		"tripped_at":    trippedAt.UTC().Format(time.RFC3339),
	})
}

// LogCircuitRecovered logs a breaker closing after a successful call
func (a *AuditLoggerImpl) LogCircuitRecovered(ctx context.Context, circuit string, from model.CircuitState, openFor time.Duration) {
	a.record(ctx, circuit, AuditEventCircuitRecovered, auditOperatorSystem, map[string]interface{}{
		"from":             string(from),
		"open_for_seconds": openFor.Seconds(),
	})
}

// LogCircuitReset logs a manual reset. The operator is the calling module.
func (a *AuditLoggerImpl) LogCircuitReset(ctx context.Context, circuit string, previous *model.CircuitRecord) {
	details := map[string]interface{}{}
	if previous != nil {
		details["from"] = string(previous.State)
		details["failure_count"] = previous.FailureCount
	}
	operator := pkglog.GetRequestContext(ctx).SourceModule
	if operator == "" {
		operator = "admin"
	}
	a.record(ctx, circuit, AuditEventCircuitReset, operator, details)
}

func (a *AuditLoggerImpl) record(ctx context.Context, circuit string, action AuditEventType, operator string, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("msg", "failed to marshal audit log details", "error", err)
		return
	}

	event := &AuditLog{
		Circuit:    circuit,
		ActionType: action.String(),
		Details:    string(detailsJSON),
		Operator:   operator,
		RequestID:  pkglog.GetRequestID(ctx),
	}

	if a.db == nil {
		a.logger.Infow("msg", "circuit audit",
			"circuit", circuit,
			"action_type", event.ActionType,
			"operator", operator,
			"request_id", event.RequestID,
			"details", event.Details)
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	// Send to channel (non-blocking)
	select {
	case a.logChan <- event:
	default:
		a.logger.Warnw("msg", "audit log channel full, dropping event",
			"circuit", circuit,
			"action_type", event.ActionType)
	}
}
