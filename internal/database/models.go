package database

import "time"

// TunnelEvent is one audit record: a tunnel lifecycle transition or a gated
// query. Tunnel state itself is never persisted; these records exist for
// operator visibility only.
type TunnelEvent struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AttemptID   string    `gorm:"index;size:36" json:"attempt_id"`
	EventType   string    `gorm:"not null;index" json:"event_type"`
	Environment string    `gorm:"index" json:"environment"`
	Details     string    `json:"details"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
