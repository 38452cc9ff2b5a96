// Package audit records tunnel lifecycle and gated-query events.
//
// The Auditor wraps a GORM database and writes to the tunnel_events table;
// every record is also emitted on the standard logger. A global singleton is
// installed via InitGlobal; the package-level helpers are nil-safe, so events
// logged before initialization are silently dropped. Entries older than the
// retention period are removed by PurgeOlderThan, which main schedules daily.
package audit

import (
	"log"
	"time"

	"github.com/perimetra/tunnelgate/internal/database"
	"github.com/perimetra/tunnelgate/internal/logutil"
	"gorm.io/gorm"
)

// Event types recorded in the audit log.
const (
	EventConnectStarted   = "connect_started"
	EventConnectSucceeded = "connect_succeeded"
	EventConnectFailed    = "connect_failed"
	EventDisconnected     = "disconnected"
	EventProcessExited    = "process_exited"
	EventQueryExecuted    = "query_executed"
	EventQueryRejected    = "query_rejected"
)

// DefaultRetentionDays is the default number of days to keep audit records.
const DefaultRetentionDays = 90

// Entry contains the fields needed to create one audit record.
type Entry struct {
	AttemptID   string
	EventType   string
	Environment string
	Details     string
	DurationMs  int64
}

// Auditor records and queries tunnel events.
type Auditor struct {
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time // injectable clock for testing
}

// NewAuditor creates an Auditor writing to db. If retentionDays is 0,
// DefaultRetentionDays is used.
func NewAuditor(db *gorm.DB, retentionDays int) *Auditor {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Auditor{
		db:            db,
		retentionDays: retentionDays,
		nowFn:         time.Now,
	}
}

// Log writes an audit record to the database and the standard logger.
func (a *Auditor) Log(entry Entry) error {
	record := database.TunnelEvent{
		AttemptID:   entry.AttemptID,
		EventType:   entry.EventType,
		Environment: entry.Environment,
		Details:     entry.Details,
		DurationMs:  entry.DurationMs,
	}

	if err := a.db.Create(&record).Error; err != nil {
		log.Printf("[audit] failed to write event: %v", err)
		return err
	}

	log.Printf("[audit] %s env=%s attempt=%s details=%s",
		entry.EventType,
		logutil.SanitizeForLog(entry.Environment),
		entry.AttemptID,
		logutil.SanitizeForLog(entry.Details),
	)
	return nil
}

// Recent returns up to limit events, newest first.
func (a *Auditor) Recent(limit int) ([]database.TunnelEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []database.TunnelEvent
	err := a.db.Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error
	return events, err
}

// PurgeOlderThan removes records beyond the retention period and returns the
// number deleted.
func (a *Auditor) PurgeOlderThan() (int64, error) {
	cutoff := a.nowFn().AddDate(0, 0, -a.retentionDays)
	res := a.db.Where("created_at < ?", cutoff).Delete(&database.TunnelEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[audit] purged %d events older than %d days", res.RowsAffected, a.retentionDays)
	}
	return res.RowsAffected, nil
}

var global *Auditor

// InitGlobal installs the process-wide Auditor.
func InitGlobal(a *Auditor) {
	global = a
}

// Get returns the global Auditor, or nil before InitGlobal.
func Get() *Auditor {
	return global
}

// LogEvent records an event through the global Auditor. Safe to call before
// InitGlobal; the event is dropped.
func LogEvent(entry Entry) {
	if global == nil {
		return
	}
	global.Log(entry)
}
