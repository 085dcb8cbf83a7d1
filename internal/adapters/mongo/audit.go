package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tumaini/tikiti/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditSink is the write-only append log of engine actions. Failures are
// logged and swallowed: audit must never veto a booking or a reconciliation.
type AuditSink struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditSink(db *mongo.Database, logger observability.Logger) *AuditSink {
	return &AuditSink{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type auditDoc struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	ActorID   uuid.UUID `bson:"actor_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditSink) Record(ctx context.Context, action string, actorID uuid.UUID, data map[string]interface{}) {
	doc := auditDoc{
		ID:        uuid.New(),
		Action:    action,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Data:      bson.M(data),
	}
	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		a.logger.WithField("action", action).Error("failed to insert audit log", err)
	}
}
