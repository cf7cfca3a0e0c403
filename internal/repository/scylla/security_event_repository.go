package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"buddiesfinder/internal/models"
	"buddiesfinder/internal/util"
)

type SecurityEventRepository struct {
	client *ScyllaClient
}

func NewSecurityEventRepository(client *ScyllaClient) *SecurityEventRepository {
	return &SecurityEventRepository{client: client}
}

func (r *SecurityEventRepository) Name() string { return "scylla" }

// Write stores the event in its day/bucket partition and, for known
// accounts, in the per-user timeline.
func (r *SecurityEventRepository) Write(ctx context.Context, event *models.SecurityEvent) error {
	id, err := gocql.ParseUUID(event.EventID)
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", event.EventID, err)
	}

	batch := r.client.Session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	batch.Query(r.client.Prepared.InsertEvent.Statement(),
		event.EventDate, event.EventBucket, event.EventTime, id, string(event.EventType), event.UserID,
		event.Email, event.Reason, event.Factor, event.IPAddress, event.UserAgent, event.RequestID)
	if event.UserID != 0 {
		batch.Query(r.client.Prepared.InsertEventByUser.Statement(),
			event.UserID, event.EventTime, id, string(event.EventType), event.Reason, event.IPAddress)
	}

	if err := r.client.Session.ExecuteBatch(batch); err != nil {
		util.Error("Failed to write security event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(event.EventType)),
			zap.Error(err))
		return fmt.Errorf("failed to write security event: %w", err)
	}
	return nil
}

// ForUser returns the most recent events of an account, newest first.
func (r *SecurityEventRepository) ForUser(ctx context.Context, userID int64, limit int) ([]models.SecurityEvent, error) {
	iter := r.client.Session.Query(r.client.Prepared.EventsByUser.Statement(), userID, limit).WithContext(ctx).Iter()

	var (
		out       []models.SecurityEvent
		event     models.SecurityEvent
		id        gocql.UUID
		eventType string
	)
	for iter.Scan(&event.EventTime, &id, &eventType, &event.Reason, &event.IPAddress) {
		event.EventID = id.String()
		event.EventType = models.SecurityEventType(eventType)
		event.UserID = userID
		out = append(out, event)
		event = models.SecurityEvent{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read security events: %w", err)
	}
	return out, nil
}
