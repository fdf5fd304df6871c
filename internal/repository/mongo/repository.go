// Package mongo persists stream session history. History is optional; the
// rest of the system runs fine without a configured MongoDB.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"magnetcast/internal/domain"
)

type Repository struct {
	collection *mongo.Collection
}

type streamDoc struct {
	ID         string `bson:"_id"`
	Query      string `bson:"query,omitempty"`
	Magnet     string `bson:"magnet"`
	Name       string `bson:"name"`
	FilePath   string `bson:"filePath"`
	FileLength int64  `bson:"fileLength"`
	StartedAt  int64  `bson:"startedAt"`
	EndedAt    int64  `bson:"endedAt,omitempty"`
	EndReason  string `bson:"endReason,omitempty"`
}

func NewRepository(client *mongo.Client, dbName, collectionName string) *Repository {
	return &Repository{collection: client.Database(dbName).Collection(collectionName)}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "startedAt", Value: -1}}},
		{Keys: bson.D{{Key: "endReason", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *Repository) Create(ctx context.Context, rec domain.StreamRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	// A restarted stream of the same torrent reuses the info-hash id, so
	// replace rather than insert.
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": string(rec.ID)},
		toDoc(rec),
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *Repository) Finish(ctx context.Context, id domain.SessionID, reason string) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": string(id)},
		bson.M{"$set": bson.M{
			"endedAt":   time.Now().UTC().Unix(),
			"endReason": reason,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]domain.StreamRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []streamDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	records := make([]domain.StreamRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, fromDoc(doc))
	}
	return records, nil
}

// Get returns one history record by session id.
func (r *Repository) Get(ctx context.Context, id domain.SessionID) (domain.StreamRecord, error) {
	var doc streamDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.StreamRecord{}, domain.ErrNotFound
		}
		return domain.StreamRecord{}, err
	}
	return fromDoc(doc), nil
}

func toDoc(rec domain.StreamRecord) streamDoc {
	doc := streamDoc{
		ID:         string(rec.ID),
		Query:      rec.Query,
		Magnet:     rec.Magnet,
		Name:       rec.Name,
		FilePath:   rec.FilePath,
		FileLength: rec.FileLength,
		StartedAt:  rec.StartedAt.UTC().Unix(),
		EndReason:  rec.EndReason,
	}
	if !rec.EndedAt.IsZero() {
		doc.EndedAt = rec.EndedAt.UTC().Unix()
	}
	return doc
}

func fromDoc(doc streamDoc) domain.StreamRecord {
	rec := domain.StreamRecord{
		ID:         domain.SessionID(doc.ID),
		Query:      doc.Query,
		Magnet:     doc.Magnet,
		Name:       doc.Name,
		FilePath:   doc.FilePath,
		FileLength: doc.FileLength,
		StartedAt:  time.Unix(doc.StartedAt, 0).UTC(),
		EndReason:  doc.EndReason,
	}
	if doc.EndedAt != 0 {
		rec.EndedAt = time.Unix(doc.EndedAt, 0).UTC()
	}
	return rec
}
