package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredPubSub = "pubsub"
	SyncTriggeredSystem = "system"
)

type SyncRun struct {
	ID          uint       `gorm:"primary_key" json:"id"`
	RequestId   string     `gorm:"uniqueIndex;size:64;not null" json:"request_id"`
	CompanyCode string     `gorm:"index;size:50;not null" json:"company_code"`
	Status      string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy string     `gorm:"size:20" json:"triggered_by"`
	ModulesJSON []byte     `gorm:"type:json" json:"modules"`
	StatsJSON   []byte     `gorm:"type:json" json:"stats"`
	ErrorCount  int        `json:"error_count"`
	StartedAt   *time.Time `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	DurationMs  int64      `json:"duration_ms"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncRunError struct {
	ID              uint      `gorm:"primary_key" json:"id"`
	SyncRunId       uint      `gorm:"index;not null" json:"sync_run_id"`
	CompanyCode     string    `gorm:"index;size:50;not null" json:"company_code"`
	Module          string    `gorm:"size:50" json:"module"`
	ErrorKind       string    `gorm:"size:32" json:"error_kind"`
	EntityKey       string    `gorm:"size:128" json:"entity_key"`
	Message         string    `gorm:"type:text" json:"message"`
	BrokenRulesJSON []byte    `gorm:"type:json" json:"broken_rules"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// AcknowledgedChange logs every feed change this service acknowledged.
type AcknowledgedChange struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	ChangeId       string    `gorm:"uniqueIndex;size:128;not null" json:"change_id"`
	CompanyCode    string    `gorm:"index;size:50" json:"company_code"`
	ChangeType     string    `gorm:"size:64" json:"change_type"`
	Outcome        string    `gorm:"size:20" json:"outcome"`
	SyncRunId      uint      `gorm:"index" json:"sync_run_id"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(&SyncRun{}, &SyncRunError{}, &AcknowledgedChange{})
}
