package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/pkg/enums"
)

// OutboxEvent is a domain event written in the same transaction as the state change it describes.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null" json:"eventType"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null" json:"aggregateType"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null" json:"aggregateId"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	PublishedAt   *time.Time                `gorm:"column:published_at" json:"publishedAt,omitempty"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0" json:"attemptCount"`
	LastError     *string                   `gorm:"column:last_error" json:"lastError,omitempty"`
}

// OutboxDLQ keeps events the publisher gave up on.
type OutboxDLQ struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EventID       uuid.UUID                  `gorm:"column:event_id;type:uuid;not null" json:"eventId"`
	EventType     enums.OutboxEventType      `gorm:"column:event_type;type:event_type_enum;not null" json:"eventType"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;type:aggregate_type_enum;not null" json:"aggregateType"`
	AggregateID   uuid.UUID                  `gorm:"column:aggregate_id;type:uuid;not null" json:"aggregateId"`
	Payload       json.RawMessage            `gorm:"column:payload_json;type:jsonb;not null" json:"payload"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"column:error_reason;type:text;not null" json:"errorReason"`
	ErrorMessage  *string                    `gorm:"column:error_message" json:"errorMessage,omitempty"`
	AttemptCount  int                        `gorm:"column:attempt_count;not null;default:0" json:"attemptCount"`
	FailedAt      time.Time                  `gorm:"column:failed_at;autoCreateTime" json:"failedAt"`
}

func (OutboxDLQ) TableName() string {
	return "outbox_dlq"
}
