package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tumaini/tikiti/internal/domain"
	"github.com/tumaini/tikiti/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Catalog is the read-only view of the external event catalog collaborator.
// The booking engine never writes here.
type Catalog struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalog(db *mongo.Database, logger observability.Logger) *Catalog {
	return &Catalog{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

type eventDoc struct {
	ID    uuid.UUID `bson:"_id"`
	Title string    `bson:"title"`
	Venue string    `bson:"venue"`
	Date  time.Time `bson:"date"`
	Open  bool      `bson:"open"`
}

func (c *Catalog) GetEvent(ctx context.Context, id uuid.UUID) (*domain.EventInfo, error) {
	var doc eventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		c.logger.WithField("event_id", id).Error("failed to get event", err)
		return nil, err
	}
	return &domain.EventInfo{
		ID:    doc.ID,
		Title: doc.Title,
		Venue: doc.Venue,
		Date:  doc.Date,
		Open:  doc.Open,
	}, nil
}
