package model

import (
	"time"

	"gorm.io/datatypes"
)

type QueueMessageState string

const (
	QueueStatePending    QueueMessageState = "PENDING"
	QueueStateProcessing QueueMessageState = "PROCESSING"
	QueueStateCompleted  QueueMessageState = "COMPLETED"
	QueueStateFailed     QueueMessageState = "FAILED"
)

const QueueTypeRecomputeLevelAggregates = "RECOMPUTE_LEVEL_AGGREGATES"

type QueueMessage struct {
	UUIDBase
	Type    string            `gorm:"size:100;not null;index" json:"type"`
	Payload datatypes.JSON    `json:"payload"`
	State   QueueMessageState `gorm:"size:20;not null;index:idx_queue_state_run_at,priority:1" json:"state"`
	RunAt   time.Time         `gorm:"not null;index:idx_queue_state_run_at,priority:2" json:"runAt"`

	DedupeKey string `gorm:"size:255;index" json:"dedupeKey,omitempty"`
	// PendingDedupeKey 仅在 PENDING 时等于 DedupeKey，唯一索引保证同一 key 只有一条待处理消息
	PendingDedupeKey *string `gorm:"size:255;uniqueIndex" json:"-"`

	ProcessingStartedAt *time.Time                  `json:"processingStartedAt,omitempty"`
	ProcessingAttempts  int                         `gorm:"default:0" json:"processingAttempts"`
	Log                 datatypes.JSONSlice[string] `json:"log"`
}

func (QueueMessage) TableName() string {
	return "queue_messages"
}
