package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxPublishBackoff = 10 * time.Minute

// OutboxDispatcher drains session event records written by the models
// layer inside their completing transactions. One dispatcher goroutine
// per instance; concurrent instances coordinate through row locks.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

// Run polls until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()
	for {
		batch := d.claimBatch(ctx)
		for _, rec := range batch {
			d.deliver(ctx, rec)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// claimBatch marks a batch of due records PROCESSING under this
// dispatcher's id and returns them. Due means PENDING or FAILED with the
// backoff elapsed, plus PROCESSING rows whose lock went stale because a
// dispatcher died mid-batch. Rows that already burned through
// MaxAttempts are parked DEAD here instead of being claimed again.
func (d *OutboxDispatcher) claimBatch(ctx context.Context) []models.SessionEventRecord {
	if d.DB == nil {
		return nil
	}
	now := time.Now().UTC()

	var batch []models.SessionEventRecord
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		due := tx.
			Where("(publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)) OR (publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?)",
				[]string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now,
				models.OutboxPublishStatusProcessing, now.Add(-d.LockTimeout)).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := due.Find(&batch).Error; err != nil {
			return err
		}

		kept := batch[:0]
		for _, rec := range batch {
			if d.MaxAttempts > 0 && rec.PublishAttempts >= d.MaxAttempts {
				if err := d.settle(tx, rec.ID, parkDead, fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts), nil); err != nil {
					return err
				}
				continue
			}
			rec.PublishAttempts++
			if err := tx.Model(&models.SessionEventRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusProcessing,
				"locked_at":          &now,
				"locked_by":          &d.DispatcherID,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
			kept = append(kept, rec)
		}
		batch = kept
		return nil
	})
	if err != nil {
		d.logf(logrus.Fields{}, "outbox claim failed: "+err.Error())
		return nil
	}
	return batch
}

// deliver publishes one claimed record and settles its row.
func (d *OutboxDispatcher) deliver(ctx context.Context, rec models.SessionEventRecord) {
	fields := logrus.Fields{
		"field":        "OutboxDispatcher",
		"business_id":  rec.BusinessId,
		"record_id":    rec.ID,
		"session_type": rec.SessionType,
		"action":       rec.Action,
		"attempt":      rec.PublishAttempts,
	}

	msg := models.ConvertToSessionEventMessage(rec)
	pubID, err := config.PublishSessionEventWithResult(ctx, rec.BusinessId, msg)
	db := d.DB.WithContext(ctx)

	if err == nil {
		now := time.Now().UTC()
		_ = db.Model(&models.SessionEventRecord{}).
			Where("id = ?", rec.ID).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusSent,
				"published_at":       &now,
				"pub_sub_message_id": &pubID,
				"locked_at":          nil,
				"locked_by":          nil,
				"next_attempt_at":    nil,
			}).Error
		return
	}

	if d.MaxAttempts > 0 && rec.PublishAttempts >= d.MaxAttempts {
		_ = d.settle(db, rec.ID, parkDead, err.Error(), nil)
		d.logf(fields, "outbox publish moved to DEAD after max attempts: "+err.Error())
		return
	}

	next := time.Now().UTC().Add(d.backoffAfter(rec.PublishAttempts))
	_ = d.settle(db, rec.ID, requeueFailed, err.Error(), &next)
	fields["next_attempt_at"] = next.Format(time.RFC3339Nano)
	d.logf(fields, "outbox publish failed: "+err.Error())
}

type settleMode int

const (
	parkDead settleMode = iota
	requeueFailed
)

// settle releases a row's lock and records the outcome of a failed or
// exhausted delivery.
func (d *OutboxDispatcher) settle(db *gorm.DB, recordID int, mode settleMode, reason string, next *time.Time) error {
	status := models.OutboxPublishStatusDead
	if mode == requeueFailed {
		status = models.OutboxPublishStatusFailed
	}
	return db.Model(&models.SessionEventRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"publish_status":     status,
			"last_publish_error": &reason,
			"next_attempt_at":    next,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
}

// backoffAfter doubles from InitialBackoff per attempt, capped.
func (d *OutboxDispatcher) backoffAfter(attempt int) time.Duration {
	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= maxPublishBackoff {
			return maxPublishBackoff
		}
	}
	return backoff
}

func (d *OutboxDispatcher) logf(fields logrus.Fields, msg string) {
	if d.Logger == nil {
		return
	}
	if _, ok := fields["field"]; !ok {
		fields["field"] = "OutboxDispatcher"
	}
	d.Logger.WithFields(fields).Error(msg)
}
