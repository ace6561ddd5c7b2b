// Package mongo stores the history of finished resolutions. Documents carry
// the outcome and timing of an attempt but never a link.
package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"torrentstream/resolver/internal/domain"
)

const (
	DefaultCollection = "resolution_attempts"
	defaultListLimit  = 50
	maxListLimit      = 500
)

type AttemptRepository struct {
	collection *mongo.Collection
	retention  time.Duration
}

type attemptDoc struct {
	ID         string    `bson:"_id"`
	MediaID    string    `bson:"mediaId,omitempty"`
	Title      string    `bson:"title,omitempty"`
	Source     string    `bson:"source,omitempty"`
	Fallback   bool      `bson:"fallback,omitempty"`
	Status     string    `bson:"status"`
	Kind       string    `bson:"kind,omitempty"`
	ElapsedMS  int64     `bson:"elapsedMs"`
	FinishedAt time.Time `bson:"finishedAt"`
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// NewAttemptRepository returns a repository whose documents expire after
// retention. A zero retention keeps documents forever.
func NewAttemptRepository(client *mongo.Client, dbName string, retention time.Duration) *AttemptRepository {
	return &AttemptRepository{
		collection: client.Database(dbName).Collection(DefaultCollection),
		retention:  retention,
	}
}

func (r *AttemptRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "mediaId", Value: 1}, {Key: "finishedAt", Value: -1}}},
	}
	finished := mongo.IndexModel{Keys: bson.D{{Key: "finishedAt", Value: -1}}}
	if r.retention > 0 {
		finished.Options = options.Index().SetExpireAfterSeconds(int32(r.retention / time.Second))
	}
	models = append(models, finished)
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

// Record inserts one attempt. Recording the same request twice keeps the first.
func (r *AttemptRepository) Record(ctx context.Context, attempt domain.ResolutionAttempt) error {
	_, err := r.collection.InsertOne(ctx, toDoc(attempt))
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

// List returns the newest attempts first, optionally for a single media.
func (r *AttemptRepository) List(ctx context.Context, mediaID string, limit int) ([]domain.ResolutionAttempt, error) {
	query := bson.M{}
	if mediaID != "" {
		query["mediaId"] = mediaID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "finishedAt", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []attemptDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromDocs(docs), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func toDoc(a domain.ResolutionAttempt) attemptDoc {
	finished := a.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	return attemptDoc{
		ID:         a.RequestID,
		MediaID:    a.MediaID,
		Title:      a.Title,
		Source:     string(a.Source),
		Fallback:   a.Fallback,
		Status:     a.Status,
		Kind:       string(a.Kind),
		ElapsedMS:  a.ElapsedMS,
		FinishedAt: finished.UTC(),
	}
}

func fromDoc(doc attemptDoc) domain.ResolutionAttempt {
	return domain.ResolutionAttempt{
		RequestID:  doc.ID,
		MediaID:    doc.MediaID,
		Title:      doc.Title,
		Source:     domain.SourceKind(doc.Source),
		Fallback:   doc.Fallback,
		Status:     doc.Status,
		Kind:       domain.FailureKind(doc.Kind),
		ElapsedMS:  doc.ElapsedMS,
		FinishedAt: doc.FinishedAt.UTC(),
	}
}

func fromDocs(docs []attemptDoc) []domain.ResolutionAttempt {
	out := make([]domain.ResolutionAttempt, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDoc(doc))
	}
	return out
}
