package docstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"diffsync/pkg/document"
)

// mongoRecord is the BSON shape of a stored document. The document name is
// the collection _id, so lookups and upserts are single-key operations.
type mongoRecord struct {
	Name      string    `bson:"_id"`
	Content   string    `bson:"content"`
	Version   int64     `bson:"version"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (r mongoRecord) document() document.Document {
	return document.NewWithVersion(r.Content, uint64(r.Version))
}

func (r mongoRecord) info() DocumentInfo {
	return DocumentInfo{
		Name:      r.Name,
		Version:   uint64(r.Version),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// MongoStore persists documents in a MongoDB collection. Version bumps are
// performed server-side with $inc, so concurrent updates from multiple
// processes never produce duplicate versions.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to MongoDB, verifies the connection, and seeds the
// default document if the collection does not contain one yet.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to ping MongoDB")
	}

	s := &MongoStore{
		client:     client,
		collection: client.Database(database).Collection("documents"),
	}

	if _, err := EnsureDocument(ctx, s, DefaultDocumentName); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to seed default document")
	}

	return s, nil
}

// Load returns the named document, or ErrNotFound if it does not exist.
func (s *MongoStore) Load(ctx context.Context, name string) (document.Document, error) {
	var rec mongoRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return document.Document{}, ErrNotFound
	}
	if err != nil {
		return document.Document{}, errors.Wrapf(err, "failed to load document %q", name)
	}
	return rec.document(), nil
}

// Save writes the document as-is, preserving created_at across overwrites.
func (s *MongoStore) Save(ctx context.Context, name string, doc document.Document) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"content":    doc.Content,
			"version":    int64(doc.Version),
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.collection.UpdateOne(ctx, bson.M{"_id": name}, update, opts); err != nil {
		return errors.Wrapf(err, "failed to save document %q", name)
	}
	return nil
}

// Update replaces the content and bumps the version in one atomic upsert,
// returning the stored state.
func (s *MongoStore) Update(ctx context.Context, name, content string) (document.Document, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"content":    content,
			"updated_at": now,
		},
		"$inc": bson.M{
			"version": int64(1),
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var rec mongoRecord
	if err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": name}, update, opts).Decode(&rec); err != nil {
		return document.Document{}, errors.Wrapf(err, "failed to update document %q", name)
	}
	return rec.document(), nil
}

// List returns metadata for all documents, most recently updated first.
func (s *MongoStore) List(ctx context.Context) ([]DocumentInfo, error) {
	opts := options.Find().SetSort(bson.M{"updated_at": -1})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	defer cursor.Close(ctx)

	infos := make([]DocumentInfo, 0)
	for cursor.Next(ctx) {
		var rec mongoRecord
		if err := cursor.Decode(&rec); err != nil {
			return nil, errors.Wrap(err, "failed to decode document record")
		}
		infos = append(infos, rec.info())
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, "cursor error while listing documents")
	}
	return infos, nil
}

// Stats reports the document count and the most recent update time.
func (s *MongoStore) Stats(ctx context.Context) (Stats, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return Stats{}, errors.Wrap(err, "failed to count documents")
	}

	stats := Stats{TotalDocuments: count}

	opts := options.FindOne().SetSort(bson.M{"updated_at": -1})
	var rec mongoRecord
	err = s.collection.FindOne(ctx, bson.M{}, opts).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return stats, nil
	}
	if err != nil {
		return Stats{}, errors.Wrap(err, "failed to find latest document")
	}
	stats.LatestUpdate = rec.UpdatedAt
	return stats, nil
}

// Close disconnects the underlying MongoDB client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return errors.Wrap(err, "failed to disconnect from MongoDB")
	}
	return nil
}
