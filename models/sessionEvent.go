package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// SessionEventRecord is the transactional outbox row for session
// completion events. It is written inside the same transaction that
// archives or purges the session; the dispatcher publishes it to
// Pub/Sub after commit.
type SessionEventRecord struct {
	ID          int       `gorm:"primary_key;index:idx_session_event_dispatch,priority:3" json:"id"`
	BusinessId  string    `gorm:"size:64;not null;index" json:"business_id"`
	OccurredAt  time.Time `gorm:"index;not null" json:"occurred_at"`
	SessionId   int       `gorm:"not null" json:"session_id"`
	SessionType string    `gorm:"size:30;not null" json:"session_type"`
	Action      string    `gorm:"size:50;not null" json:"action"`
	Payload     []byte    `gorm:"type:blob" json:"payload"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_session_event_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_session_event_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// createSessionEvent writes the outbox row inside the caller's
// transaction. It does NOT publish; the dispatcher picks it up after
// commit.
func createSessionEvent(tx *gorm.DB, businessId string, sessionId int, sessionType string, action string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	record := SessionEventRecord{
		BusinessId:    businessId,
		OccurredAt:    time.Now().UTC(),
		SessionId:     sessionId,
		SessionType:   sessionType,
		Action:        action,
		Payload:       body,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(tx.Statement.Context),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToSessionEventMessage(record SessionEventRecord) config.SessionEventMessage {
	return config.SessionEventMessage{
		ID:            record.ID,
		BusinessId:    record.BusinessId,
		OccurredAt:    record.OccurredAt,
		SessionId:     record.SessionId,
		SessionType:   record.SessionType,
		Action:        record.Action,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}
